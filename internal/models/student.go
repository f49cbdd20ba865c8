package models

import "time"

// Gender categories used for stratification.
type Gender string

const (
	GenderMale   Gender = "Masculino"
	GenderFemale Gender = "Femenino"
	GenderOther  Gender = "Otro"
)

// Genders returns the gender categories in display order.
func Genders() []Gender {
	return []Gender{GenderMale, GenderFemale, GenderOther}
}

// NormalizeGender maps free text onto a known category, defaulting to GenderOther.
func NormalizeGender(raw string) Gender {
	switch Gender(raw) {
	case GenderMale, GenderFemale:
		return Gender(raw)
	default:
		return GenderOther
	}
}

// AgeBand is one of the four fixed age brackets.
type AgeBand string

const (
	AgeBandUnder18 AgeBand = "<18"
	AgeBand18to20  AgeBand = "18-20"
	AgeBand21to23  AgeBand = "21-23"
	AgeBandOver23  AgeBand = ">23"
)

// AgeBands returns the bands in ascending order.
func AgeBands() []AgeBand {
	return []AgeBand{AgeBandUnder18, AgeBand18to20, AgeBand21to23, AgeBandOver23}
}

// AgeBandFor classifies an age. Unknown or non-positive ages fall into AgeBandOver23.
func AgeBandFor(age *int) AgeBand {
	if age == nil || *age <= 0 {
		return AgeBandOver23
	}
	switch a := *age; {
	case a < 18:
		return AgeBandUnder18
	case a <= 20:
		return AgeBand18to20
	case a <= 23:
		return AgeBand21to23
	default:
		return AgeBandOver23
	}
}

// Student is a tutored student as held in the snapshot.
type Student struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Age       *int       `json:"age,omitempty"`
	Gender    Gender     `json:"gender"`
	Group     string     `json:"group"`
	Class     string     `json:"class,omitempty"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

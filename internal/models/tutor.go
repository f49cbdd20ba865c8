package models

import "time"

// Tutor is a registered tutor and the groups it supervises.
type Tutor struct {
	ID           string   `json:"id"`
	FullName     string   `json:"full_name"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`
	Groups       []string `json:"groups"`
}

// HasGroup reports whether name is in the tutor's group list.
func (t Tutor) HasGroup(name string) bool {
	for _, g := range t.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// TutorOverview is the payload returned after login and by GET /tutors/me.
type TutorOverview struct {
	Tutor          Tutor           `json:"tutor"`
	Groups         []GroupOverview `json:"groups"`
	CacheUpdatedAt time.Time       `json:"cache_updated_at"`
}

// GroupOverview lists the students of one group.
type GroupOverview struct {
	Name     string            `json:"name"`
	Students []StudentOverview `json:"students"`
}

// StudentOverview bundles a student with its latest recommendations and raw responses.
type StudentOverview struct {
	Student         Student                 `json:"student"`
	Recommendations map[Instrument]string   `json:"recommendations"`
	Responses       []QuestionnaireResponse `json:"responses"`
}

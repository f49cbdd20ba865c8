package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type academicTerm int

const (
	termFullYear academicTerm = iota
	termJanApr
	termMayAug
	termSepDec
)

var termNames = map[academicTerm]string{
	termFullYear: "Todo",
	termJanApr:   "Ene-Abr",
	termMayAug:   "May-Ago",
	termSepDec:   "Sep-Dic",
}

var termAliases = map[string]academicTerm{
	"todo":    termFullYear,
	"all":     termFullYear,
	"ene-abr": termJanApr,
	"jan-apr": termJanApr,
	"may-ago": termMayAug,
	"may-aug": termMayAug,
	"sep-dic": termSepDec,
	"sep-dec": termSepDec,
}

var monthLabels = [...]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

// AcademicPeriod is a half-open [Start, End) range named like "Ene-Abr 2024".
// "Todo <year>" has zero bounds and matches every date.
type AcademicPeriod struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Unbounded reports whether the period matches every date.
func (p AcademicPeriod) Unbounded() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

// Contains reports whether t falls inside the period.
func (p AcademicPeriod) Contains(t time.Time) bool {
	if p.Unbounded() {
		return true
	}
	return !t.Before(p.Start) && t.Before(p.End)
}

// ParseAcademicPeriod accepts "<term> <year>" where term is one of Ene-Abr,
// May-Ago, Sep-Dic or Todo. English abbreviations and en-dashes are accepted.
// The year of "Todo" only labels the period; it does not filter.
func ParseAcademicPeriod(raw string, loc *time.Location) (AcademicPeriod, error) {
	normalized := strings.NewReplacer("–", "-", "—", "-").Replace(strings.TrimSpace(raw))
	fields := strings.Fields(normalized)
	if len(fields) != 2 {
		return AcademicPeriod{}, fmt.Errorf("period %q must look like \"Ene-Abr 2024\"", raw)
	}
	term, ok := termAliases[strings.ToLower(fields[0])]
	if !ok {
		return AcademicPeriod{}, fmt.Errorf("unknown term %q", fields[0])
	}
	year, err := strconv.Atoi(fields[1])
	if err != nil || year < 1900 || year > 9999 {
		return AcademicPeriod{}, fmt.Errorf("invalid year %q", fields[1])
	}
	return newAcademicPeriod(term, year, loc), nil
}

// AcademicPeriodFor returns the four-month term containing t.
func AcademicPeriodFor(t time.Time, loc *time.Location) AcademicPeriod {
	local := t.In(orUTC(loc))
	term := termSepDec
	switch {
	case local.Month() <= time.April:
		term = termJanApr
	case local.Month() <= time.August:
		term = termMayAug
	}
	return newAcademicPeriod(term, local.Year(), loc)
}

// MonthLabel renders a month bucket such as "Mar 2024".
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", monthLabels[month-1], year)
}

func newAcademicPeriod(term academicTerm, year int, loc *time.Location) AcademicPeriod {
	name := fmt.Sprintf("%s %d", termNames[term], year)
	if term == termFullYear {
		return AcademicPeriod{Name: name}
	}
	loc = orUTC(loc)
	var startMonth time.Month
	switch term {
	case termJanApr:
		startMonth = time.January
	case termMayAug:
		startMonth = time.May
	default:
		startMonth = time.September
	}
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, loc)
	return AcademicPeriod{
		Name:  name,
		Start: start,
		End:   start.AddDate(0, 4, 0),
	}
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

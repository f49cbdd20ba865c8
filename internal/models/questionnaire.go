package models

import "time"

// Instrument identifies a questionnaire.
type Instrument string

const (
	InstrumentBAI Instrument = "BAI"
	InstrumentBDI Instrument = "BDI"
	InstrumentPSS Instrument = "PSS"
)

// Instruments returns the known instruments in their fixed order.
func Instruments() []Instrument {
	return []Instrument{InstrumentBAI, InstrumentBDI, InstrumentPSS}
}

// Valid reports whether i is one of the known instruments.
func (i Instrument) Valid() bool {
	switch i {
	case InstrumentBAI, InstrumentBDI, InstrumentPSS:
		return true
	}
	return false
}

// Severity levels, lowest first.
const (
	LevelLow      = 0
	LevelMild     = 1
	LevelModerate = 2
	LevelHigh     = 3

	MaxLevel = LevelHigh
	// AlertLevel is the lowest level that raises an alert.
	AlertLevel = LevelModerate
)

var levelLabels = [...]string{"Bajo", "Leve", "Moderado", "Alto"}

// LevelLabel returns the display label for a severity level.
func LevelLabel(level int) string {
	if level < 0 || level > MaxLevel {
		return "N/A"
	}
	return levelLabels[level]
}

// QuestionnaireResponse is one submitted questionnaire.
type QuestionnaireResponse struct {
	ID         string     `json:"id"`
	StudentID  string     `json:"student_id"`
	Instrument Instrument `json:"questionnaire"`
	Level      int        `json:"level"`
	Score      float64    `json:"score"`
	Date       time.Time  `json:"date"`
}

// NewerThan orders responses by date, breaking ties on the greater document id.
func (r QuestionnaireResponse) NewerThan(other QuestionnaireResponse) bool {
	if !r.Date.Equal(other.Date) {
		return r.Date.After(other.Date)
	}
	return r.ID > other.ID
}

// Recommendation is a piece of advice attached to a student for one instrument.
type Recommendation struct {
	ID         string     `json:"id"`
	StudentID  string     `json:"student_id"`
	Instrument Instrument `json:"questionnaire"`
	Text       string     `json:"recommendation"`
	Date       time.Time  `json:"date"`
}

// NoRecommendation is shown when an instrument has no recommendation.
const NoRecommendation = "N/A"

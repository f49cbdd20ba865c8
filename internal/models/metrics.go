package models

import "time"

// LevelHistogram counts students per severity level for one instrument.
// NoData counts students without any response to the instrument.
type LevelHistogram struct {
	Levels [MaxLevel + 1]int `json:"levels"`
	NoData int               `json:"no_data"`
}

// Total returns the number of students counted in the histogram.
func (h LevelHistogram) Total() int {
	total := h.NoData
	for _, n := range h.Levels {
		total += n
	}
	return total
}

// Add increments the cell for level, or NoData when hasData is false.
func (h *LevelHistogram) Add(level int, hasData bool) {
	if !hasData {
		h.NoData++
		return
	}
	h.Levels[level]++
}

// InstrumentAverage is a group average on the 0-30 scale.
type InstrumentAverage struct {
	Average      float64 `json:"average"`
	Contributors int     `json:"contributors"`
}

// AlertTrigger is one instrument at or above the alert level.
type AlertTrigger struct {
	Instrument Instrument `json:"questionnaire"`
	Level      int        `json:"level"`
}

// StudentAlert flags a student whose current level is concerning.
type StudentAlert struct {
	StudentID    string         `json:"student_id"`
	StudentName  string         `json:"student_name"`
	Triggers     []AlertTrigger `json:"triggers"`
	Summary      string         `json:"summary"`
	HighestLevel int            `json:"highest_level"`
}

// GroupMetrics is the statistics bundle for one group.
type GroupMetrics struct {
	Group         string                                    `json:"group"`
	TotalStudents int                                       `json:"total_students"`
	Averages      map[Instrument]InstrumentAverage          `json:"averages"`
	LevelCounts   map[Instrument]LevelHistogram             `json:"level_counts"`
	ByGender      map[Gender]map[Instrument]LevelHistogram  `json:"by_gender"`
	ByAgeBand     map[AgeBand]map[Instrument]LevelHistogram `json:"by_age_band"`
	Alerts        []StudentAlert                            `json:"alerts"`
	SnapshotAt    time.Time                                 `json:"snapshot_at"`
	Version       uint64                                    `json:"snapshot_version"`
}

// DistributionFilter selects a stratified slice of a GroupMetrics bundle.
type DistributionFilter struct {
	Gender  Gender  `json:"gender,omitempty"`
	AgeBand AgeBand `json:"age_band,omitempty"`
}

// LevelDistribution is the histogram set behind a dashboard chart.
type LevelDistribution struct {
	Group  string                        `json:"group"`
	Filter DistributionFilter            `json:"filter"`
	Counts map[Instrument]LevelHistogram `json:"counts"`
}

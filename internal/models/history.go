package models

import "time"

// HistoryStatus tells apart "nothing recorded" from "nothing in the requested period".
type HistoryStatus string

const (
	HistoryStatusOK              HistoryStatus = "ok"
	HistoryStatusNoData          HistoryStatus = "no_data"
	HistoryStatusNoDataForPeriod HistoryStatus = "no_data_for_period"
)

// HistoryPoint is the latest level of an instrument within a calendar month.
type HistoryPoint struct {
	Label string    `json:"label"`
	Year  int       `json:"year"`
	Month int       `json:"month"`
	Level int       `json:"level"`
	Date  time.Time `json:"date"`
}

// HistoryRecord is a single dated level used for tabular display.
type HistoryRecord struct {
	ResponseID string    `json:"response_id"`
	Date       time.Time `json:"date"`
	Level      int       `json:"level"`
	Score      float64   `json:"score"`
}

// PeriodLevels holds the latest level per instrument within an academic period.
type PeriodLevels struct {
	Period string             `json:"period"`
	Levels map[Instrument]int `json:"levels"`
}

// StudentHistory is the trend of one student's questionnaires.
type StudentHistory struct {
	StudentID string                         `json:"student_id"`
	Period    string                         `json:"period,omitempty"`
	Status    HistoryStatus                  `json:"status"`
	Series    map[Instrument][]HistoryPoint  `json:"series"`
	Records   map[Instrument][]HistoryRecord `json:"records"`
	ByPeriod  []PeriodLevels                 `json:"by_period"`
	Version   uint64                         `json:"snapshot_version"`
}

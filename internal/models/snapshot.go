package models

import "time"

// TableState is the lifecycle state of one snapshot table.
type TableState string

const (
	TableEmpty   TableState = "empty"
	TableLoading TableState = "loading"
	TableReady   TableState = "ready"
	TableStale   TableState = "stale"
)

// SnapshotStatus describes the resident snapshot.
type SnapshotStatus struct {
	Tutors         TableState `json:"tutors"`
	Students       TableState `json:"students"`
	Responses      TableState `json:"responses"`
	Version        uint64     `json:"version"`
	LastUpdated    time.Time  `json:"last_updated"`
	TutorCount     int        `json:"tutor_count"`
	StudentCount   int        `json:"student_count"`
	ResponseCount  int        `json:"response_count"`
	SkippedRecords int        `json:"skipped_records"`
}

// Ready reports whether every table can be read without a reload.
func (s SnapshotStatus) Ready() bool {
	return s.Tutors == TableReady && s.Students == TableReady && s.Responses == TableReady
}

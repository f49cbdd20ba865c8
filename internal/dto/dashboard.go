package dto

import "github.com/noah-isme/serenia-tutor-api/internal/models"

// GroupMetricsQuery holds the optional chart filter of GET /groups/:name/metrics.
type GroupMetricsQuery struct {
	Gender  string `form:"gender"`
	AgeBand string `form:"ageBand"`
}

// Filter converts the query into a distribution filter. ok is false when no
// filter was given.
func (q GroupMetricsQuery) Filter() (models.DistributionFilter, bool) {
	f := models.DistributionFilter{Gender: models.Gender(q.Gender), AgeBand: models.AgeBand(q.AgeBand)}
	return f, q.Gender != "" || q.AgeBand != ""
}

// StudentHistoryQuery holds the optional academic period filter.
type StudentHistoryQuery struct {
	Period string `form:"period"`
}

// CacheReloadResponse is returned by POST /cache/reload.
type CacheReloadResponse struct {
	Snapshot      models.SnapshotStatus `json:"snapshot"`
	PayloadPurged bool                  `json:"payload_cache_purged"`
}

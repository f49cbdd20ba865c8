package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

// StudentHistoryService builds per-student questionnaire trends.
type StudentHistoryService struct {
	snapshots snapshotViewer
	loc       *time.Location
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewStudentHistoryService constructs the service. Month and period
// boundaries are evaluated in loc, UTC when nil.
func NewStudentHistoryService(snapshots snapshotViewer, loc *time.Location, metrics *MetricsService, logger *zap.Logger) *StudentHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentHistoryService{snapshots: snapshots, loc: orUTC(loc), metrics: metrics, logger: logger}
}

// Build returns the history of studentID, optionally restricted to an
// academic period such as "Sep-Dic 2024".
func (s *StudentHistoryService) Build(ctx context.Context, studentID, period string) (*models.StudentHistory, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}

	var filter *AcademicPeriod
	if strings.TrimSpace(period) != "" {
		parsed, err := ParseAcademicPeriod(period, s.loc)
		if err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrValidation, err.Error())
		}
		filter = &parsed
	}

	view, err := s.snapshots.View(ctx)
	if err != nil {
		return nil, err
	}
	responses := view.Responses(studentID)
	if _, ok := view.Student(studentID); !ok && len(responses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
	}

	start := time.Now()
	history := BuildStudentHistory(studentID, responses, filter, s.loc)
	history.Version = view.Version()
	s.metrics.ObserveAggregation("student_history", time.Since(start))
	return history, nil
}

type monthKey struct {
	year  int
	month time.Month
}

// BuildStudentHistory groups responses into monthly series per instrument.
// Within a month the latest response wins; equal timestamps go to the greater
// response id. Responses with unknown instruments or no date are ignored.
func BuildStudentHistory(studentID string, responses []models.QuestionnaireResponse, period *AcademicPeriod, loc *time.Location) *models.StudentHistory {
	loc = orUTC(loc)
	history := &models.StudentHistory{
		StudentID: studentID,
		Status:    models.HistoryStatusOK,
		Series:    make(map[models.Instrument][]models.HistoryPoint, len(models.Instruments())),
		Records:   make(map[models.Instrument][]models.HistoryRecord, len(models.Instruments())),
		ByPeriod:  []models.PeriodLevels{},
	}
	for _, inst := range models.Instruments() {
		history.Series[inst] = []models.HistoryPoint{}
		history.Records[inst] = []models.HistoryRecord{}
	}
	if period != nil {
		history.Period = period.Name
	}

	usable := make([]models.QuestionnaireResponse, 0, len(responses))
	for _, resp := range responses {
		if !resp.Instrument.Valid() || resp.Date.IsZero() {
			continue
		}
		usable = append(usable, resp)
	}
	if len(usable) == 0 {
		history.Status = models.HistoryStatusNoData
		return history
	}

	filtered := usable[:0:0]
	for _, resp := range usable {
		if period == nil || period.Contains(resp.Date) {
			filtered = append(filtered, resp)
		}
	}
	if len(filtered) == 0 {
		history.Status = models.HistoryStatusNoDataForPeriod
		return history
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].NewerThan(filtered[j]) })

	monthly := make(map[models.Instrument]map[monthKey]models.QuestionnaireResponse, len(models.Instruments()))
	for _, resp := range filtered {
		history.Records[resp.Instrument] = append(history.Records[resp.Instrument], models.HistoryRecord{
			ResponseID: resp.ID,
			Date:       resp.Date,
			Level:      resp.Level,
			Score:      resp.Score,
		})

		local := resp.Date.In(loc)
		key := monthKey{year: local.Year(), month: local.Month()}
		buckets := monthly[resp.Instrument]
		if buckets == nil {
			buckets = make(map[monthKey]models.QuestionnaireResponse)
			monthly[resp.Instrument] = buckets
		}
		// filtered is newest first, so the first response seen per month wins.
		if _, seen := buckets[key]; !seen {
			buckets[key] = resp
		}
	}

	for inst, buckets := range monthly {
		keys := make([]monthKey, 0, len(buckets))
		for k := range buckets {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].year != keys[j].year {
				return keys[i].year < keys[j].year
			}
			return keys[i].month < keys[j].month
		})
		points := make([]models.HistoryPoint, 0, len(keys))
		for _, k := range keys {
			resp := buckets[k]
			points = append(points, models.HistoryPoint{
				Label: MonthLabel(k.year, k.month),
				Year:  k.year,
				Month: int(k.month),
				Level: resp.Level,
				Date:  resp.Date,
			})
		}
		history.Series[inst] = points
	}

	history.ByPeriod = levelsByPeriod(filtered, loc)
	return history
}

// levelsByPeriod expects responses newest first.
func levelsByPeriod(responses []models.QuestionnaireResponse, loc *time.Location) []models.PeriodLevels {
	type bucket struct {
		period AcademicPeriod
		levels map[models.Instrument]int
	}
	buckets := make(map[string]*bucket)
	for _, resp := range responses {
		p := AcademicPeriodFor(resp.Date, loc)
		b, ok := buckets[p.Name]
		if !ok {
			b = &bucket{period: p, levels: make(map[models.Instrument]int)}
			buckets[p.Name] = b
		}
		if _, seen := b.levels[resp.Instrument]; !seen {
			b.levels[resp.Instrument] = resp.Level
		}
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].period.Start.Before(ordered[j].period.Start) })

	out := make([]models.PeriodLevels, 0, len(ordered))
	for _, b := range ordered {
		out = append(out, models.PeriodLevels{Period: b.period.Name, Levels: b.levels})
	}
	return out
}

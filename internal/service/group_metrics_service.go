package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

// levelScoreFactor maps a severity level onto the 0-30 score used for averages.
const levelScoreFactor = 10

type snapshotViewer interface {
	View(ctx context.Context) (*SnapshotView, error)
}

// GroupMetricsService computes group dashboards from the resident snapshot.
type GroupMetricsService struct {
	snapshots snapshotViewer
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewGroupMetricsService constructs the service.
func NewGroupMetricsService(snapshots snapshotViewer, metrics *MetricsService, logger *zap.Logger) *GroupMetricsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupMetricsService{snapshots: snapshots, metrics: metrics, logger: logger}
}

// Compute returns the statistics bundle for group. An unknown or empty group
// yields a zeroed bundle.
func (s *GroupMetricsService) Compute(ctx context.Context, group string) (*models.GroupMetrics, error) {
	view, err := s.snapshots.View(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	bundle := ComputeGroupMetrics(view, group)
	s.metrics.ObserveAggregation("group_metrics", time.Since(start))
	return bundle, nil
}

// ComputeGroupMetrics aggregates one group of the view. Students are visited in
// id order so repeated calls on the same view produce identical output.
func ComputeGroupMetrics(view *SnapshotView, group string) *models.GroupMetrics {
	bundle := newGroupMetrics(group)
	bundle.SnapshotAt = view.LoadedAt()
	bundle.Version = view.Version()

	students := view.StudentsByGroup(group)
	bundle.TotalStudents = len(students)

	sums := make(map[models.Instrument]int, len(models.Instruments()))
	contributors := make(map[models.Instrument]int, len(models.Instruments()))

	for _, st := range students {
		current := CurrentLevels(view.Responses(st.ID))
		gender := models.NormalizeGender(string(st.Gender))
		band := models.AgeBandFor(st.Age)

		var triggers []models.AlertTrigger
		for _, inst := range models.Instruments() {
			resp, hasData := current[inst]
			addToHistogram(bundle.LevelCounts, inst, resp.Level, hasData)
			addToHistogram(bundle.ByGender[gender], inst, resp.Level, hasData)
			addToHistogram(bundle.ByAgeBand[band], inst, resp.Level, hasData)
			if !hasData {
				continue
			}
			sums[inst] += resp.Level * levelScoreFactor
			contributors[inst]++
			if resp.Level >= models.AlertLevel {
				triggers = append(triggers, models.AlertTrigger{Instrument: inst, Level: resp.Level})
			}
		}
		if len(triggers) > 0 {
			bundle.Alerts = append(bundle.Alerts, newStudentAlert(st, triggers))
		}
	}

	for _, inst := range models.Instruments() {
		avg := models.InstrumentAverage{Contributors: contributors[inst]}
		if avg.Contributors > 0 {
			avg.Average = float64(sums[inst]) / float64(avg.Contributors)
		}
		bundle.Averages[inst] = avg
	}

	sort.SliceStable(bundle.Alerts, func(i, j int) bool {
		a, b := bundle.Alerts[i], bundle.Alerts[j]
		if a.HighestLevel != b.HighestLevel {
			return a.HighestLevel > b.HighestLevel
		}
		if a.StudentName != b.StudentName {
			return a.StudentName < b.StudentName
		}
		return a.StudentID < b.StudentID
	})
	return bundle
}

// CurrentLevels picks each instrument's most recent response. Equal dates go
// to the greater response id.
func CurrentLevels(responses []models.QuestionnaireResponse) map[models.Instrument]models.QuestionnaireResponse {
	current := make(map[models.Instrument]models.QuestionnaireResponse, len(models.Instruments()))
	for _, resp := range responses {
		if !resp.Instrument.Valid() {
			continue
		}
		if cur, ok := current[resp.Instrument]; !ok || resp.NewerThan(cur) {
			current[resp.Instrument] = resp
		}
	}
	return current
}

// Distribution selects the histograms for a chart. At most one of gender and
// age band may be set.
func Distribution(bundle *models.GroupMetrics, filter models.DistributionFilter) (*models.LevelDistribution, error) {
	if bundle == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "metrics bundle missing")
	}
	if filter.Gender != "" && filter.AgeBand != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "filter by gender or by age band, not both")
	}

	source := bundle.LevelCounts
	switch {
	case filter.Gender != "":
		counts, ok := bundle.ByGender[filter.Gender]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown gender %q", filter.Gender))
		}
		source = counts
	case filter.AgeBand != "":
		counts, ok := bundle.ByAgeBand[filter.AgeBand]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown age band %q", filter.AgeBand))
		}
		source = counts
	}

	out := &models.LevelDistribution{
		Group:  bundle.Group,
		Filter: filter,
		Counts: make(map[models.Instrument]models.LevelHistogram, len(source)),
	}
	for inst, h := range source {
		out.Counts[inst] = h
	}
	return out, nil
}

func newGroupMetrics(group string) *models.GroupMetrics {
	bundle := &models.GroupMetrics{
		Group:       group,
		Averages:    make(map[models.Instrument]models.InstrumentAverage, len(models.Instruments())),
		LevelCounts: emptyHistograms(),
		ByGender:    make(map[models.Gender]map[models.Instrument]models.LevelHistogram, len(models.Genders())),
		ByAgeBand:   make(map[models.AgeBand]map[models.Instrument]models.LevelHistogram, len(models.AgeBands())),
		Alerts:      []models.StudentAlert{},
	}
	for _, g := range models.Genders() {
		bundle.ByGender[g] = emptyHistograms()
	}
	for _, b := range models.AgeBands() {
		bundle.ByAgeBand[b] = emptyHistograms()
	}
	return bundle
}

func emptyHistograms() map[models.Instrument]models.LevelHistogram {
	out := make(map[models.Instrument]models.LevelHistogram, len(models.Instruments()))
	for _, inst := range models.Instruments() {
		out[inst] = models.LevelHistogram{}
	}
	return out
}

func addToHistogram(hists map[models.Instrument]models.LevelHistogram, inst models.Instrument, level int, hasData bool) {
	h := hists[inst]
	h.Add(level, hasData)
	hists[inst] = h
}

func newStudentAlert(st models.Student, triggers []models.AlertTrigger) models.StudentAlert {
	parts := make([]string, 0, len(triggers))
	highest := 0
	for _, t := range triggers {
		parts = append(parts, fmt.Sprintf("%s (Nivel %d)", t.Instrument, t.Level))
		if t.Level > highest {
			highest = t.Level
		}
	}
	return models.StudentAlert{
		StudentID:    st.ID,
		StudentName:  st.Name,
		Triggers:     triggers,
		Summary:      strings.Join(parts, ", "),
		HighestLevel: highest,
	}
}

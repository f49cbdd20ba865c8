package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
)

const dashboardKeyPrefix = "dashboard:"

type groupMetricsComputer interface {
	Compute(ctx context.Context, group string) (*models.GroupMetrics, error)
}

type studentHistoryBuilder interface {
	Build(ctx context.Context, studentID, period string) (*models.StudentHistory, error)
}

type snapshotVersioner interface {
	Epoch() string
	Version() uint64
}

// DashboardService serves aggregator output through the payload cache. Keys
// carry the cache epoch and the snapshot version, so any reload, group
// mutation or restart retires every cached payload at once.
type DashboardService struct {
	groups   groupMetricsComputer
	history  studentHistoryBuilder
	versions snapshotVersioner
	cache    *CacheService
	ttl      time.Duration
	logger   *zap.Logger
}

// NewDashboardService constructs the service. cache may be nil.
func NewDashboardService(groups groupMetricsComputer, history studentHistoryBuilder, versions snapshotVersioner, cache *CacheService, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{groups: groups, history: history, versions: versions, cache: cache, ttl: ttl, logger: logger}
}

// GroupMetrics returns the statistics bundle for group and whether it came from cache.
func (s *DashboardService) GroupMetrics(ctx context.Context, group string) (*models.GroupMetrics, bool, error) {
	var cached models.GroupMetrics
	if s.cache.Get(ctx, groupMetricsKey(s.versions.Epoch(), s.versions.Version(), group), &cached) {
		return &cached, true, nil
	}

	bundle, err := s.groups.Compute(ctx, group)
	if err != nil {
		return nil, false, err
	}
	s.cache.Set(ctx, groupMetricsKey(s.versions.Epoch(), bundle.Version, group), bundle, s.ttl)
	return bundle, false, nil
}

// GroupDistribution returns the chart histograms for group under filter.
func (s *DashboardService) GroupDistribution(ctx context.Context, group string, filter models.DistributionFilter) (*models.LevelDistribution, bool, error) {
	bundle, hit, err := s.GroupMetrics(ctx, group)
	if err != nil {
		return nil, false, err
	}
	dist, err := Distribution(bundle, filter)
	if err != nil {
		return nil, false, err
	}
	return dist, hit, nil
}

// StudentHistory returns the student's trend for period, which may be empty.
func (s *DashboardService) StudentHistory(ctx context.Context, studentID, period string) (*models.StudentHistory, bool, error) {
	var cached models.StudentHistory
	if s.cache.Get(ctx, studentHistoryKey(s.versions.Epoch(), s.versions.Version(), studentID, period), &cached) {
		return &cached, true, nil
	}

	history, err := s.history.Build(ctx, studentID, period)
	if err != nil {
		return nil, false, err
	}
	s.cache.Set(ctx, studentHistoryKey(s.versions.Epoch(), history.Version, studentID, period), history, s.ttl)
	return history, false, nil
}

// Purge drops every cached dashboard payload.
func (s *DashboardService) Purge(ctx context.Context) error {
	return s.cache.Invalidate(ctx, dashboardKeyPrefix+"*")
}

// InvalidateGroup drops the cached payloads of group under every epoch and version.
// Escaped names carry no glob metacharacters.
func (s *DashboardService) InvalidateGroup(ctx context.Context, group string) error {
	return s.cache.Invalidate(ctx, fmt.Sprintf("%s*:group:%s", dashboardKeyPrefix, url.PathEscape(group)))
}

func groupMetricsKey(epoch string, version uint64, group string) string {
	return fmt.Sprintf("%s%s:v%d:group:%s", dashboardKeyPrefix, epoch, version, url.PathEscape(group))
}

func studentHistoryKey(epoch string, version uint64, studentID, period string) string {
	key := fmt.Sprintf("%s%s:v%d:student:%s:history", dashboardKeyPrefix, epoch, version, url.PathEscape(studentID))
	if p := strings.TrimSpace(period); p != "" {
		key += ":" + url.PathEscape(strings.ToLower(p))
	}
	return key
}

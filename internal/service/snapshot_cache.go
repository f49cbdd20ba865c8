package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	"github.com/noah-isme/serenia-tutor-api/internal/repository"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

// SnapshotCacheConfig tunes snapshot loading.
type SnapshotCacheConfig struct {
	Collections SnapshotCollections
	// DisableAutoReload makes reads of stale tables fail with ErrSnapshotStale
	// instead of reloading.
	DisableAutoReload         bool
	RecommendationConcurrency int
	RemoteTimeout             time.Duration
}

// SnapshotCache holds the in-memory copy of tutors, students, recommendations
// and responses. Readers never lock: the snapshot is immutable and published
// through an atomic pointer. Commits and invalidations are serialized.
type SnapshotCache struct {
	remote  RemoteStore
	cfg     SnapshotCacheConfig
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	epoch   string

	current   atomic.Pointer[snapshot]
	versions  atomic.Uint64
	loadSeq   atomic.Uint64
	mutations atomic.Uint64
	loading   atomic.Int32

	commitMu  sync.Mutex
	refreshMu sync.Mutex
	mutateMu  sync.Mutex
}

var errLoadOvertaken = errors.New("snapshot load overtaken by a group mutation")

// NewSnapshotCache constructs an empty cache. Nothing is fetched until the
// first LoadAll or read.
func NewSnapshotCache(remote RemoteStore, cfg SnapshotCacheConfig, metrics *MetricsService, logger *zap.Logger) *SnapshotCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Collections = cfg.Collections.withDefaults()
	if cfg.RecommendationConcurrency <= 0 {
		cfg.RecommendationConcurrency = 8
	}
	c := &SnapshotCache{
		remote:  remote,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		epoch:   uuid.NewString(),
	}
	c.current.Store(emptySnapshot())
	return c
}

// LoadAll fetches every table and replaces the snapshot in one swap. On
// failure the previous snapshot is kept.
func (c *SnapshotCache) LoadAll(ctx context.Context) error {
	err := c.loadOnce(ctx)
	if errors.Is(err, errLoadOvertaken) {
		c.logger.Info("snapshot load overtaken by group mutation, retrying")
		err = c.loadOnce(ctx)
	}
	if errors.Is(err, errLoadOvertaken) {
		return appErrors.WrapAs(err, appErrors.ErrSnapshotSuperseded, "")
	}
	return err
}

func (c *SnapshotCache) loadOnce(ctx context.Context) error {
	c.loading.Add(1)
	defer c.loading.Add(-1)

	began := time.Now()
	seq := c.loadSeq.Add(1)
	generation := c.mutations.Load()

	if c.cfg.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RemoteTimeout)
		defer cancel()
	}

	var (
		tutors    map[string]models.Tutor
		students  map[string]models.Student
		recs      map[string][]models.Recommendation
		responses map[string][]models.QuestionnaireResponse
		total     int
		skipped   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tutors, err = c.fetchTutors(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		students, recs, err = c.fetchStudents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		responses, total, skipped, err = c.fetchResponses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		c.metrics.ObserveSnapshotLoad(time.Since(began), false)
		c.logger.Warn("snapshot load failed, keeping previous snapshot", zap.Error(err))
		return appErrors.WrapAs(err, appErrors.ErrRemoteStore, "snapshot load failed")
	}

	next := &snapshot{
		loadSeq:         seq,
		loadedAt:        c.now().UTC(),
		tutors:          tutors,
		students:        students,
		byGroup:         indexByGroup(students),
		recommendations: recs,
		responses:       responses,
		tutorState:      models.TableReady,
		studentState:    models.TableReady,
		responseState:   models.TableReady,
		responseCount:   total,
		skipped:         skipped,
	}

	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	if c.mutations.Load() != generation {
		return errLoadOvertaken
	}
	if cur := c.current.Load(); cur.loadSeq > seq && cur.ready(true) {
		c.logger.Debug("discarding older snapshot load", zap.Uint64("load_seq", seq), zap.Uint64("current_seq", cur.loadSeq))
		return nil
	}
	next.version = c.versions.Add(1)
	c.current.Store(next)

	c.metrics.ObserveSnapshotLoad(time.Since(began), true)
	c.metrics.RecordSkippedRecords(skipped)
	c.logger.Info("snapshot loaded",
		zap.Uint64("version", next.version),
		zap.Int("tutors", len(tutors)),
		zap.Int("students", len(students)),
		zap.Int("responses", total),
		zap.Int("skipped", skipped),
		zap.Duration("duration", time.Since(began)),
	)
	return nil
}

func (c *SnapshotCache) fetchTutors(ctx context.Context) (map[string]models.Tutor, error) {
	docs, err := c.remote.ListCollection(ctx, c.cfg.Collections.Tutors)
	if err != nil {
		return nil, fmt.Errorf("fetch tutors: %w", err)
	}
	tutors := make(map[string]models.Tutor, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			c.skipRecord(c.cfg.Collections.Tutors, doc.ID, "missing id")
			continue
		}
		tutors[doc.ID] = decodeTutor(doc)
	}
	return tutors, nil
}

func (c *SnapshotCache) fetchStudents(ctx context.Context) (map[string]models.Student, map[string][]models.Recommendation, error) {
	docs, err := c.remote.ListCollection(ctx, c.cfg.Collections.Students)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch students: %w", err)
	}

	students := make(map[string]models.Student, len(docs))
	recs := make(map[string][]models.Recommendation, len(docs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.RecommendationConcurrency)
	for _, doc := range docs {
		if doc.ID == "" {
			c.skipRecord(c.cfg.Collections.Students, doc.ID, "missing id")
			continue
		}
		student := decodeStudent(doc)
		students[student.ID] = student

		id := student.ID
		g.Go(func() error {
			subDocs, err := c.remote.ListSubcollection(gctx, c.cfg.Collections.Students, id, c.cfg.Collections.Recommendations)
			if err != nil {
				return fmt.Errorf("fetch recommendations of %s: %w", id, err)
			}
			list := make([]models.Recommendation, 0, len(subDocs))
			for _, sub := range subDocs {
				list = append(list, decodeRecommendation(id, sub))
			}
			mu.Lock()
			recs[id] = list
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return students, recs, nil
}

func (c *SnapshotCache) fetchResponses(ctx context.Context) (map[string][]models.QuestionnaireResponse, int, int, error) {
	docs, err := c.remote.ListCollection(ctx, c.cfg.Collections.Responses)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fetch responses: %w", err)
	}
	byStudent := make(map[string][]models.QuestionnaireResponse)
	kept, skipped := 0, 0
	for _, doc := range docs {
		resp, err := decodeResponse(doc)
		if err != nil {
			skipped++
			c.skipRecord(c.cfg.Collections.Responses, doc.ID, err.Error())
			continue
		}
		byStudent[resp.StudentID] = append(byStudent[resp.StudentID], resp)
		kept++
	}
	return byStudent, kept, skipped, nil
}

func (c *SnapshotCache) skipRecord(collection, id, reason string) {
	c.logger.Warn("skipping malformed record",
		zap.String("collection", collection),
		zap.String("document_id", id),
		zap.String("reason", reason),
	)
}

// View returns the current snapshot, reloading first when any table is not ready.
func (c *SnapshotCache) View(ctx context.Context) (*SnapshotView, error) {
	s, err := c.ready(ctx, true)
	if err != nil {
		return nil, err
	}
	return &SnapshotView{s: s}, nil
}

func (c *SnapshotCache) ready(ctx context.Context, needStudents bool) (*snapshot, error) {
	if s := c.current.Load(); s.ready(needStudents) {
		return s, nil
	}
	if c.cfg.DisableAutoReload {
		return nil, appErrors.Clone(appErrors.ErrSnapshotStale, "")
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if s := c.current.Load(); s.ready(needStudents) {
		return s, nil
	}
	if err := c.LoadAll(ctx); err != nil {
		return nil, err
	}
	s := c.current.Load()
	if !s.ready(needStudents) {
		return nil, appErrors.Clone(appErrors.ErrSnapshotStale, "snapshot invalidated during reload")
	}
	return s, nil
}

// GetTutor returns the tutor with id from the snapshot.
func (c *SnapshotCache) GetTutor(ctx context.Context, id string) (models.Tutor, bool, error) {
	s, err := c.ready(ctx, false)
	if err != nil {
		return models.Tutor{}, false, err
	}
	t, ok := (&SnapshotView{s: s}).Tutor(id)
	return t, ok, nil
}

// GetTutorGroups returns the tutor's group list.
func (c *SnapshotCache) GetTutorGroups(ctx context.Context, tutorID string) ([]string, error) {
	t, ok, err := c.GetTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrTutorNotFound, "")
	}
	return t.Groups, nil
}

// GetStudentsByGroup returns the students labelled with group, ordered by id.
func (c *SnapshotCache) GetStudentsByGroup(ctx context.Context, group string) ([]models.Student, error) {
	view, err := c.View(ctx)
	if err != nil {
		return nil, err
	}
	return view.StudentsByGroup(group), nil
}

// GetResponses returns the student's responses in no particular order.
func (c *SnapshotCache) GetResponses(ctx context.Context, studentID string) ([]models.QuestionnaireResponse, error) {
	view, err := c.View(ctx)
	if err != nil {
		return nil, err
	}
	return view.Responses(studentID), nil
}

// GetLatestRecommendations returns the newest recommendation text per instrument.
func (c *SnapshotCache) GetLatestRecommendations(ctx context.Context, studentID string) (map[models.Instrument]string, error) {
	view, err := c.View(ctx)
	if err != nil {
		return nil, err
	}
	return view.LatestRecommendations(studentID), nil
}

// AddGroup appends name to the tutor's groups.
func (c *SnapshotCache) AddGroup(ctx context.Context, tutorID, name string) (models.Tutor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Tutor{}, appErrors.Clone(appErrors.ErrValidation, "group name is required")
	}
	return c.mutateGroups(ctx, tutorID, func(groups []string) ([]string, error) {
		if indexOf(groups, name) >= 0 {
			return nil, appErrors.Clone(appErrors.ErrDuplicateGroup, fmt.Sprintf("group %q already exists", name))
		}
		return append(groups, name), nil
	})
}

// RenameGroup renames oldName in place, keeping its position.
func (c *SnapshotCache) RenameGroup(ctx context.Context, tutorID, oldName, newName string) (models.Tutor, error) {
	oldName, newName = strings.TrimSpace(oldName), strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return models.Tutor{}, appErrors.Clone(appErrors.ErrValidation, "old and new group names are required")
	}
	return c.mutateGroups(ctx, tutorID, func(groups []string) ([]string, error) {
		idx := indexOf(groups, oldName)
		if idx < 0 {
			return nil, appErrors.Clone(appErrors.ErrGroupNotFound, fmt.Sprintf("group %q not found", oldName))
		}
		if newName != oldName && indexOf(groups, newName) >= 0 {
			return nil, appErrors.Clone(appErrors.ErrDuplicateGroup, fmt.Sprintf("group %q already exists", newName))
		}
		groups[idx] = newName
		return groups, nil
	})
}

// RemoveGroup deletes name from the tutor's groups.
func (c *SnapshotCache) RemoveGroup(ctx context.Context, tutorID, name string) (models.Tutor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Tutor{}, appErrors.Clone(appErrors.ErrValidation, "group name is required")
	}
	return c.mutateGroups(ctx, tutorID, func(groups []string) ([]string, error) {
		idx := indexOf(groups, name)
		if idx < 0 {
			return nil, appErrors.Clone(appErrors.ErrGroupNotFound, fmt.Sprintf("group %q not found", name))
		}
		return append(groups[:idx], groups[idx+1:]...), nil
	})
}

// mutateGroups reads the tutor from the remote store, applies fn and writes
// the result back. The local tutor entry is replaced and the student and
// response tables go stale only after the write succeeded.
func (c *SnapshotCache) mutateGroups(ctx context.Context, tutorID string, fn func([]string) ([]string, error)) (models.Tutor, error) {
	c.mutateMu.Lock()
	defer c.mutateMu.Unlock()

	doc, err := c.remote.GetDocument(ctx, c.cfg.Collections.Tutors, tutorID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return models.Tutor{}, appErrors.Clone(appErrors.ErrTutorNotFound, "")
		}
		return models.Tutor{}, appErrors.WrapAs(err, appErrors.ErrRemoteStore, "failed to fetch tutor")
	}
	tutor := decodeTutor(doc)

	groups, err := fn(append([]string{}, tutor.Groups...))
	if err != nil {
		return models.Tutor{}, err
	}

	if err := c.remote.UpsertFields(ctx, c.cfg.Collections.Tutors, tutorID, map[string]interface{}{
		fieldTutorGroups: groups,
	}); err != nil {
		return models.Tutor{}, appErrors.WrapAs(err, appErrors.ErrRemoteStore, "failed to update tutor groups")
	}

	tutor.Groups = groups
	c.commitMutation(tutor)
	return tutor, nil
}

func (c *SnapshotCache) commitMutation(tutor models.Tutor) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	next := c.current.Load().afterMutation(tutor)
	next.version = c.versions.Add(1)
	c.mutations.Add(1)
	c.current.Store(next)
	c.logger.Info("tutor groups updated, student tables invalidated",
		zap.String("tutor_id", tutor.ID),
		zap.Strings("groups", tutor.Groups),
		zap.Uint64("version", next.version),
	)
}

// Status reports table states and counts.
func (c *SnapshotCache) Status() models.SnapshotStatus {
	s := c.current.Load()
	loading := c.loading.Load() > 0
	state := func(st models.TableState) models.TableState {
		if loading && st != models.TableReady {
			return models.TableLoading
		}
		return st
	}
	return models.SnapshotStatus{
		Tutors:         state(s.tutorState),
		Students:       state(s.studentState),
		Responses:      state(s.responseState),
		Version:        s.version,
		LastUpdated:    s.loadedAt,
		TutorCount:     len(s.tutors),
		StudentCount:   len(s.students),
		ResponseCount:  s.responseCount,
		SkippedRecords: s.skipped,
	}
}

// Version returns the version of the resident snapshot. It changes on every
// commit and every invalidation.
func (c *SnapshotCache) Version() uint64 {
	return c.current.Load().version
}

// Epoch identifies this cache instance. Versions only order snapshots within
// one epoch; a restarted process or another replica starts a new one.
func (c *SnapshotCache) Epoch() string {
	return c.epoch
}

// StartAutoRefresh reloads the snapshot every interval until ctx is done.
func (c *SnapshotCache) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.LoadAll(ctx); err != nil {
					c.logger.Warn("scheduled snapshot refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

func indexOf(list []string, value string) int {
	for i, item := range list {
		if item == value {
			return i
		}
	}
	return -1
}

type snapshot struct {
	version  uint64
	loadSeq  uint64
	loadedAt time.Time

	tutors          map[string]models.Tutor
	students        map[string]models.Student
	byGroup         map[string][]string
	recommendations map[string][]models.Recommendation
	responses       map[string][]models.QuestionnaireResponse

	tutorState    models.TableState
	studentState  models.TableState
	responseState models.TableState

	responseCount int
	skipped       int
}

func emptySnapshot() *snapshot {
	return &snapshot{
		tutorState:    models.TableEmpty,
		studentState:  models.TableEmpty,
		responseState: models.TableEmpty,
	}
}

func (s *snapshot) ready(needStudents bool) bool {
	if s == nil || s.tutorState != models.TableReady {
		return false
	}
	if !needStudents {
		return true
	}
	return s.studentState == models.TableReady && s.responseState == models.TableReady
}

// afterMutation copies the snapshot with tutor replaced and the student-side
// tables cleared.
func (s *snapshot) afterMutation(tutor models.Tutor) *snapshot {
	next := &snapshot{
		loadSeq:       s.loadSeq,
		loadedAt:      s.loadedAt,
		tutorState:    s.tutorState,
		studentState:  staleState(s.studentState),
		responseState: staleState(s.responseState),
	}
	if s.tutorState == models.TableReady {
		next.tutors = make(map[string]models.Tutor, len(s.tutors)+1)
		for id, t := range s.tutors {
			next.tutors[id] = t
		}
		next.tutors[tutor.ID] = tutor
	}
	return next
}

func staleState(st models.TableState) models.TableState {
	if st == models.TableEmpty {
		return models.TableEmpty
	}
	return models.TableStale
}

func indexByGroup(students map[string]models.Student) map[string][]string {
	idx := make(map[string][]string)
	for id, st := range students {
		idx[st.Group] = append(idx[st.Group], id)
	}
	for group := range idx {
		sort.Strings(idx[group])
	}
	return idx
}

// SnapshotView is a read-only handle on one snapshot. Every method answers
// from the same point-in-time copy.
type SnapshotView struct {
	s *snapshot
}

// Version identifies the snapshot.
func (v *SnapshotView) Version() uint64 { return v.s.version }

// LoadedAt is when the snapshot was committed.
func (v *SnapshotView) LoadedAt() time.Time { return v.s.loadedAt }

// Tutor returns a copy of the tutor entry.
func (v *SnapshotView) Tutor(id string) (models.Tutor, bool) {
	t, ok := v.s.tutors[id]
	if !ok {
		return models.Tutor{}, false
	}
	t.Groups = append([]string{}, t.Groups...)
	return t, true
}

// Student returns the student with id.
func (v *SnapshotView) Student(id string) (models.Student, bool) {
	st, ok := v.s.students[id]
	return st, ok
}

// StudentsByGroup returns the group's students ordered by id.
func (v *SnapshotView) StudentsByGroup(group string) []models.Student {
	ids := v.s.byGroup[group]
	out := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		out = append(out, v.s.students[id])
	}
	return out
}

// Responses returns a copy of the student's responses.
func (v *SnapshotView) Responses(studentID string) []models.QuestionnaireResponse {
	return append([]models.QuestionnaireResponse{}, v.s.responses[studentID]...)
}

// LatestRecommendations picks, per instrument, the recommendation with the
// latest date; equal dates go to the greater document id. Instruments
// without one map to models.NoRecommendation.
func (v *SnapshotView) LatestRecommendations(studentID string) map[models.Instrument]string {
	latest := make(map[models.Instrument]models.Recommendation)
	for _, rec := range v.s.recommendations[studentID] {
		cur, ok := latest[rec.Instrument]
		if !ok || rec.Date.After(cur.Date) || (rec.Date.Equal(cur.Date) && rec.ID > cur.ID) {
			latest[rec.Instrument] = rec
		}
	}
	out := make(map[models.Instrument]string, len(models.Instruments()))
	for _, inst := range models.Instruments() {
		out[inst] = models.NoRecommendation
		if rec, ok := latest[inst]; ok && rec.Text != "" {
			out[inst] = rec.Text
		}
	}
	return out
}

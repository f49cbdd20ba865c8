package service

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

var errGroupNotOwned = appErrors.Clone(appErrors.ErrForbidden, "group is not in your list")

// unknownTutorReloadInterval spaces out reloads triggered by tutors missing
// from the snapshot.
const unknownTutorReloadInterval = 5 * time.Second

type tutorSnapshot interface {
	View(ctx context.Context) (*SnapshotView, error)
	LoadAll(ctx context.Context) error
	AddGroup(ctx context.Context, tutorID, name string) (models.Tutor, error)
	RenameGroup(ctx context.Context, tutorID, oldName, newName string) (models.Tutor, error)
	RemoveGroup(ctx context.Context, tutorID, name string) (models.Tutor, error)
}

// TutorService exposes a tutor's groups and students and manages the group list.
type TutorService struct {
	snapshots tutorSnapshot
	audit     auditRecorder
	logger    *zap.Logger
	now       func() time.Time

	reloads        singleflight.Group
	reloadInterval time.Duration
	lastReload     atomic.Int64
}

// NewTutorService constructs the service. audit may be nil.
func NewTutorService(snapshots tutorSnapshot, audit auditRecorder, logger *zap.Logger) *TutorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TutorService{
		snapshots:      snapshots,
		audit:          audit,
		logger:         logger,
		now:            time.Now,
		reloadInterval: unknownTutorReloadInterval,
	}
}

// Overview lists every group of the tutor with its students, their latest
// recommendations and responses. A tutor missing from the snapshot triggers
// a reload, which covers accounts registered since the last load.
func (s *TutorService) Overview(ctx context.Context, tutorID string) (*models.TutorOverview, error) {
	view, tutor, err := s.tutorView(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	overview := &models.TutorOverview{
		Tutor:          tutor,
		Groups:         make([]models.GroupOverview, 0, len(tutor.Groups)),
		CacheUpdatedAt: view.LoadedAt(),
	}
	for _, group := range tutor.Groups {
		overview.Groups = append(overview.Groups, models.GroupOverview{
			Name:     group,
			Students: studentOverviews(view, group),
		})
	}
	return overview, nil
}

// Groups returns the tutor's group names in stored order.
func (s *TutorService) Groups(ctx context.Context, tutorID string) ([]string, error) {
	_, tutor, err := s.tutorView(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	return tutor.Groups, nil
}

// GroupStudents lists the students of one of the tutor's groups.
func (s *TutorService) GroupStudents(ctx context.Context, tutorID, group string) ([]models.StudentOverview, error) {
	view, tutor, err := s.tutorView(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	if !tutor.HasGroup(group) {
		return nil, errGroupNotOwned
	}
	return studentOverviews(view, group), nil
}

// EnsureGroup fails unless group belongs to the tutor.
func (s *TutorService) EnsureGroup(ctx context.Context, tutorID, group string) error {
	_, tutor, err := s.tutorView(ctx, tutorID)
	if err != nil {
		return err
	}
	if !tutor.HasGroup(group) {
		return errGroupNotOwned
	}
	return nil
}

// EnsureStudent fails unless the student sits in one of the tutor's groups.
func (s *TutorService) EnsureStudent(ctx context.Context, tutorID, studentID string) error {
	view, tutor, err := s.tutorView(ctx, tutorID)
	if err != nil {
		return err
	}
	student, ok := view.Student(studentID)
	if !ok {
		return appErrors.Clone(appErrors.ErrStudentNotFound, "")
	}
	if !tutor.HasGroup(student.Group) {
		return appErrors.Clone(appErrors.ErrForbidden, "student is not in one of your groups")
	}
	return nil
}

// StudentRecommendations returns the latest recommendation per instrument.
func (s *TutorService) StudentRecommendations(ctx context.Context, tutorID, studentID string) (map[models.Instrument]string, error) {
	if err := s.EnsureStudent(ctx, tutorID, studentID); err != nil {
		return nil, err
	}
	view, err := s.snapshots.View(ctx)
	if err != nil {
		return nil, err
	}
	return view.LatestRecommendations(studentID), nil
}

// AddGroup appends a group to the tutor.
func (s *TutorService) AddGroup(ctx context.Context, tutorID, name string, meta models.RequestMeta) (*models.Tutor, error) {
	tutor, err := s.snapshots.AddGroup(ctx, tutorID, name)
	if err != nil {
		return nil, err
	}
	s.recordGroupChange(ctx, tutorID, models.AuditActionGroupAdd, nil,
		map[string]interface{}{"group": name, "groups": tutor.Groups}, meta)
	return &tutor, nil
}

// RenameGroup renames one of the tutor's groups.
func (s *TutorService) RenameGroup(ctx context.Context, tutorID, oldName, newName string, meta models.RequestMeta) (*models.Tutor, error) {
	tutor, err := s.snapshots.RenameGroup(ctx, tutorID, oldName, newName)
	if err != nil {
		return nil, err
	}
	s.recordGroupChange(ctx, tutorID, models.AuditActionGroupRename,
		map[string]interface{}{"group": oldName}, map[string]interface{}{"group": newName, "groups": tutor.Groups}, meta)
	return &tutor, nil
}

// RemoveGroup drops a group from the tutor.
func (s *TutorService) RemoveGroup(ctx context.Context, tutorID, name string, meta models.RequestMeta) (*models.Tutor, error) {
	tutor, err := s.snapshots.RemoveGroup(ctx, tutorID, name)
	if err != nil {
		return nil, err
	}
	s.recordGroupChange(ctx, tutorID, models.AuditActionGroupRemove,
		map[string]interface{}{"group": name}, map[string]interface{}{"groups": tutor.Groups}, meta)
	return &tutor, nil
}

func (s *TutorService) tutorView(ctx context.Context, tutorID string) (*SnapshotView, models.Tutor, error) {
	view, err := s.snapshots.View(ctx)
	if err != nil {
		return nil, models.Tutor{}, err
	}
	if tutor, ok := view.Tutor(tutorID); ok {
		return view, tutor, nil
	}

	reloaded, err := s.reloadForUnknownTutor(ctx, tutorID)
	if err != nil {
		return nil, models.Tutor{}, err
	}
	if !reloaded {
		return nil, models.Tutor{}, appErrors.Clone(appErrors.ErrTutorNotFound, "")
	}
	if view, err = s.snapshots.View(ctx); err != nil {
		return nil, models.Tutor{}, err
	}
	tutor, ok := view.Tutor(tutorID)
	if !ok {
		return nil, models.Tutor{}, appErrors.Clone(appErrors.ErrTutorNotFound, "")
	}
	return view, tutor, nil
}

// reloadForUnknownTutor reloads the snapshot unless a reload for an unknown
// tutor ran within reloadInterval. Concurrent callers share one reload.
func (s *TutorService) reloadForUnknownTutor(ctx context.Context, tutorID string) (bool, error) {
	if last := s.lastReload.Load(); last != 0 && s.now().Sub(time.Unix(0, last)) < s.reloadInterval {
		s.logger.Debug("unknown tutor, reload skipped", zap.String("tutor_id", tutorID))
		return false, nil
	}
	_, err, _ := s.reloads.Do("unknown-tutor", func() (interface{}, error) {
		s.lastReload.Store(s.now().UnixNano())
		return nil, s.snapshots.LoadAll(ctx)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *TutorService) recordGroupChange(ctx context.Context, tutorID, action string, oldValues, newValues map[string]interface{}, meta models.RequestMeta) {
	entry := &models.AuditLog{
		TutorID:    &tutorID,
		Action:     action,
		Resource:   "group",
		ResourceID: &tutorID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if oldValues != nil {
		entry.OldValues = auditValues(oldValues)
	}
	if newValues != nil {
		entry.NewValues = auditValues(newValues)
	}
	recordAudit(ctx, s.audit, s.logger, entry)
}

func studentOverviews(view *SnapshotView, group string) []models.StudentOverview {
	students := view.StudentsByGroup(group)
	out := make([]models.StudentOverview, 0, len(students))
	for _, st := range students {
		responses := view.Responses(st.ID)
		sort.Slice(responses, func(i, j int) bool { return responses[i].NewerThan(responses[j]) })
		out = append(out, models.StudentOverview{
			Student:         st,
			Recommendations: view.LatestRecommendations(st.ID),
			Responses:       responses,
		})
	}
	return out
}

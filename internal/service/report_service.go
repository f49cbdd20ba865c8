package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/dto"
	"github.com/noah-isme/serenia-tutor-api/internal/models"
	"github.com/noah-isme/serenia-tutor-api/internal/repository"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
	"github.com/noah-isme/serenia-tutor-api/pkg/jobs"
	"github.com/noah-isme/serenia-tutor-api/pkg/storage"
)

const cleanupBatch = 100

type groupAccessChecker interface {
	EnsureGroup(ctx context.Context, tutorID, group string) error
}

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, update repository.ReportJobUpdate) error
	ListByCreator(ctx context.Context, tutorID string, limit int) ([]models.ReportJob, error)
	RequeueProcessing(ctx context.Context) (int64, error)
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportFiles interface {
	VerifyToken(token string, allowExpired bool) (storage.DownloadToken, error)
	Open(rel string) (*os.File, error)
	Delete(rel string) error
	Cleanup() ([]string, error)
}

// ReportServiceConfig governs validation, recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	Location        *time.Location
}

// ReportDownload is an opened report file ready to stream.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportService manages the lifecycle of group report jobs.
type ReportService struct {
	repo   reportJobStore
	access groupAccessChecker
	queue  jobDispatcher
	files  reportFiles
	logger *zap.Logger
	cfg    ReportServiceConfig
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, access groupAccessChecker, queue jobDispatcher, files reportFiles, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	cfg.Location = orUTC(cfg.Location)
	return &ReportService{repo: repo, access: access, queue: queue, files: files, logger: logger, cfg: cfg}
}

// CreateJob validates the request, checks the tutor owns the group, stores
// the job and queues it.
func (s *ReportService) CreateJob(ctx context.Context, tutorID string, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	req.Group = strings.TrimSpace(req.Group)
	req.Format = models.ReportFormat(strings.ToLower(string(req.Format)))
	if req.Group == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group is required")
	}
	if !isValidFormat(req.Format) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if req.Period != "" {
		p, err := ParseAcademicPeriod(req.Period, s.cfg.Location)
		if err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrValidation, err.Error())
		}
		req.Period = p.Name
	}
	if err := s.access.EnsureGroup(ctx, tutorID, req.Group); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		Type:      models.ReportTypeGroup,
		Params:    models.ReportJobParams{Group: req.Group, Period: req.Period, Format: req.Format},
		Status:    models.ReportStatusQueued,
		CreatedBy: tutorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: string(job.Type)}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to enqueue report job")
	}
	s.logger.Info("report job queued", zap.String("job_id", job.ID), zap.String("tutor_id", tutorID), zap.String("group", req.Group))
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus returns a job owned by tutorID.
func (s *ReportService) GetStatus(ctx context.Context, tutorID, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.CreatedBy != tutorID {
		return nil, appErrors.ErrForbidden
	}
	resp := statusResponse(*job)
	return &resp, nil
}

// List returns the tutor's recent jobs, newest first.
func (s *ReportService) List(ctx context.Context, tutorID string, limit int) ([]dto.ReportStatusResponse, error) {
	rows, err := s.repo.ListByCreator(ctx, tutorID, limit)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list report jobs")
	}
	out := make([]dto.ReportStatusResponse, 0, len(rows))
	for _, job := range rows {
		out = append(out, statusResponse(job))
	}
	return out, nil
}

// ResolveDownload verifies token and opens the file of a finished job.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	parsed, err := s.files.VerifyToken(token, false)
	if errors.Is(err, storage.ErrTokenExpired) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	}
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	job, err := s.load(ctx, parsed.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	if job.ResultURL == nil || extractToken(*job.ResultURL) != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match report")
	}
	file, err := s.files.Open(parsed.Path)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrNotFound, "report file not available")
	}
	return &ReportDownload{
		File:      file,
		Filename:  path.Base(parsed.Path),
		Format:    job.Params.Format,
		ExpiresAt: parsed.ExpiresAt,
	}, nil
}

// RecoverPendingJobs requeues jobs interrupted by a restart and replays the queue.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	if n, err := s.repo.RequeueProcessing(ctx); err != nil {
		s.logger.Warn("failed to reset interrupted report jobs", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("reset interrupted report jobs", zap.Int64("count", n))
	}
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: string(job.Type)}); err != nil {
			s.logger.Warn("failed to requeue pending job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup periodically deletes expired report files until ctx ends.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatch)
	if err != nil {
		s.logger.Warn("cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range expired {
		if job.ResultURL == nil {
			continue
		}
		parsed, err := s.files.VerifyToken(extractToken(*job.ResultURL), true)
		if err != nil {
			continue
		}
		if err := s.files.Delete(parsed.Path); err != nil {
			s.logger.Warn("cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	removed, err := s.files.Cleanup()
	if err != nil {
		s.logger.Warn("report directory cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("removed expired report files", zap.Int("count", len(removed)))
	}
}

func (s *ReportService) load(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load report job")
	}
	return job, nil
}

func (s *ReportService) markFailed(ctx context.Context, id, msg string) {
	markJobFailed(ctx, s.repo, s.logger, id, msg)
}

func statusResponse(job models.ReportJob) dto.ReportStatusResponse {
	resp := dto.ReportStatusResponse{
		ID:         job.ID,
		Group:      job.Params.Group,
		Period:     job.Params.Period,
		Format:     job.Params.Format,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultURL:  job.ResultURL,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp
}

func isValidFormat(f models.ReportFormat) bool {
	return f == models.ReportFormatCSV || f == models.ReportFormatPDF
}

func extractToken(url string) string {
	return url[strings.LastIndexByte(url, '/')+1:]
}

func markJobFailed(ctx context.Context, repo reportJobStore, logger *zap.Logger, id, msg string) {
	failed := models.ReportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := repo.Update(ctx, id, repository.ReportJobUpdate{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		logger.Warn("failed to mark report job failed", zap.String("job_id", id), zap.Error(err))
	}
}

type reportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportWorker runs queued report jobs through the export service.
type ReportWorker struct {
	repo     reportJobStore
	exporter reportGenerator
	logger   *zap.Logger
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter reportGenerator, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWorker{repo: repo, exporter: exporter, logger: logger}
}

// Handle processes one queue job. Validation failures fail the job at once;
// other errors put it back to QUEUED and are returned so the queue retries.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if errors.Is(err, sql.ErrNoRows) {
		w.logger.Warn("dropping job without a row", zap.String("job_id", job.ID))
		return nil
	}
	if err != nil {
		return err
	}
	if record.Status == models.ReportStatusFinished || record.Status == models.ReportStatusFailed {
		return nil
	}

	processing := models.ReportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.ReportJobUpdate{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		if errors.Is(err, appErrors.ErrValidation) {
			markJobFailed(ctx, w.repo, w.logger, job.ID, err.Error())
			return nil
		}
		queued := models.ReportStatusQueued
		reset := 0
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.ReportJobUpdate{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Warn("failed to requeue report job", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ReportStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.ReportJobUpdate{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &result.URL,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		return err
	}
	w.logger.Info("report job finished", zap.String("job_id", job.ID), zap.String("file", result.RelativePath))
	return nil
}

// GiveUp marks a job failed once the queue stops retrying it.
func (w *ReportWorker) GiveUp(ctx context.Context, job jobs.Job, err error) {
	markJobFailed(ctx, w.repo, w.logger, job.ID, err.Error())
}

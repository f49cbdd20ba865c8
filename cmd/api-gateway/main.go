package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	_ "github.com/noah-isme/serenia-tutor-api/api/swagger"
	"github.com/noah-isme/serenia-tutor-api/internal/models"
	"github.com/noah-isme/serenia-tutor-api/internal/repository"
	"github.com/noah-isme/serenia-tutor-api/internal/service"
	"github.com/noah-isme/serenia-tutor-api/pkg/cache"
	"github.com/noah-isme/serenia-tutor-api/pkg/config"
	"github.com/noah-isme/serenia-tutor-api/pkg/database"
	"github.com/noah-isme/serenia-tutor-api/pkg/jobs"
	"github.com/noah-isme/serenia-tutor-api/pkg/logger"
	"github.com/noah-isme/serenia-tutor-api/pkg/storage"
)

// @title Serenia Tutor API
// @version 1.0.0
// @description Tutor dashboard over questionnaire results: group metrics, student history and reports
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	mongoClient, mongoDB, err := database.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("remote store: %w", err)
	}
	defer disconnectMongo(mongoClient, logr)

	db := openPostgres(ctx, cfg, logr)
	if db != nil {
		defer db.Close()
	}
	redisClient := openRedis(ctx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	loc, err := time.LoadLocation(cfg.Snapshot.HistoryTimezone)
	if err != nil {
		logr.Warn("unknown history timezone, using UTC", zap.String("timezone", cfg.Snapshot.HistoryTimezone), zap.Error(err))
		loc = time.UTC
	}

	metrics := service.NewMetricsService()
	remote := repository.NewDocumentRepository(mongoDB)
	snapshots := service.NewSnapshotCache(remote, service.SnapshotCacheConfig{
		Collections: service.SnapshotCollections{
			Tutors:          cfg.Snapshot.TutorsCollection,
			Students:        cfg.Snapshot.StudentsCollection,
			Responses:       cfg.Snapshot.ResponsesCollection,
			Recommendations: cfg.Snapshot.RecommendationsCollection,
		},
		DisableAutoReload:         !cfg.Snapshot.AutoReload,
		RecommendationConcurrency: cfg.Snapshot.RecommendationConcurrency,
		RemoteTimeout:             cfg.Snapshot.RemoteTimeout,
	}, metrics, logr)

	if err := snapshots.LoadAll(ctx); err != nil {
		logr.Warn("initial snapshot load failed; serving 503 until a reload succeeds", zap.Error(err))
	}
	snapshots.StartAutoRefresh(ctx, cfg.Snapshot.ReloadInterval)

	var audit auditWriter
	if db != nil {
		audit = repository.NewAuditRepository(db)
	}

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "serenia:", logr)
	}
	payloads := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)

	tutors := service.NewTutorService(snapshots, audit, logr)
	auth := service.NewAuthService(remote, snapshots, tutors, audit, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		TutorsCollection:  cfg.Snapshot.TutorsCollection,
	})
	dashboard := service.NewDashboardService(
		service.NewGroupMetricsService(snapshots, metrics, logr),
		service.NewStudentHistoryService(snapshots, loc, metrics, logr),
		snapshots,
		payloads,
		cfg.Dashboard.CacheTTL,
		logr,
	)

	deps := routerDeps{
		cfg:       cfg,
		logger:    logr,
		metrics:   metrics,
		snapshots: snapshots,
		auth:      auth,
		tutors:    tutors,
		dashboard: dashboard,
	}

	if cfg.Reports.Enabled {
		if db == nil {
			logr.Warn("reports enabled but postgres is unavailable; report endpoints disabled")
		} else {
			reports, queue, err := buildReports(ctx, cfg, db, snapshots, tutors, loc, logr)
			if err != nil {
				return err
			}
			defer queue.Stop()
			deps.reports = reports
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildReports(ctx context.Context, cfg *config.Config, db *sqlx.DB, snapshots *service.SnapshotCache, tutors *service.TutorService, loc *time.Location, logr *zap.Logger) (*service.ReportService, *jobs.Queue, error) {
	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("report storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(snapshots, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
		Location:  loc,
	}, logr)

	repo := repository.NewReportRepository(db)
	worker := service.NewReportWorker(repo, exporter, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		OnGiveUp:   worker.GiveUp,
		Logger:     logr,
	})
	queue.Start(ctx)

	reports := service.NewReportService(repo, tutors, queue, exporter, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		Location:        loc,
	})
	reports.RecoverPendingJobs(ctx)
	reports.StartCleanup(ctx)
	return reports, queue, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logr *zap.Logger) *sqlx.DB {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Warn("postgres unavailable; audit trail and reports disabled", zap.Error(err))
		return nil
	}
	return db
}

func openRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) redis.UniversalClient {
	if !cfg.Dashboard.CacheEnabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable; dashboard payload cache disabled", zap.Error(err))
		return nil
	}
	return client
}

func disconnectMongo(client *mongo.Client, logr *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logr.Warn("mongo disconnect failed", zap.Error(err))
	}
}

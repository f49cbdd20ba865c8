package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type overviewBuilder interface {
	Overview(ctx context.Context, tutorID string) (*models.TutorOverview, error)
}

type snapshotLoader interface {
	LoadAll(ctx context.Context) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	TutorsCollection  string
}

// AuthService registers and authenticates tutors against the remote store.
type AuthService struct {
	remote    RemoteStore
	snapshots snapshotLoader
	overviews overviewBuilder
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance. audit may be nil.
func NewAuthService(remote RemoteStore, snapshots snapshotLoader, overviews overviewBuilder, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.TutorsCollection == "" {
		config.TutorsCollection = SnapshotCollections{}.withDefaults().Tutors
	}
	return &AuthService{
		remote:    remote,
		snapshots: snapshots,
		overviews: overviews,
		audit:     audit,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Register creates a tutor with an empty group list.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.Tutor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid registration payload")
	}
	email := normalizeEmail(req.Email)

	existing, err := s.remote.QueryByField(ctx, s.config.TutorsCollection, fieldTutorEmail, email)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrRemoteStore, "failed to look up tutor")
	}
	if len(existing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrEmailTaken, "")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to hash password")
	}

	tutor := &models.Tutor{
		FullName: strings.TrimSpace(req.FullName),
		Email:    email,
		Groups:   []string{},
	}
	tutor.ID, err = s.remote.CreateDocument(ctx, s.config.TutorsCollection, map[string]interface{}{
		fieldTutorFullName: tutor.FullName,
		fieldTutorEmail:    tutor.Email,
		fieldTutorPassword: string(hash),
		fieldTutorGroups:   []string{},
	})
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrRemoteStore, "failed to create tutor")
	}

	if s.snapshots != nil {
		go s.reloadAfterRegistration(context.WithoutCancel(ctx), tutor.ID)
	}

	s.record(ctx, &models.AuditLog{
		TutorID:    &tutor.ID,
		Action:     models.AuditActionRegister,
		Resource:   "auth",
		ResourceID: &tutor.ID,
		NewValues:  auditValues(map[string]interface{}{"email": tutor.Email}),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})
	return tutor, nil
}

// Login authenticates a tutor and returns an access token with the dashboard overview.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid login payload")
	}
	email := normalizeEmail(req.Email)

	docs, err := s.remote.QueryByField(ctx, s.config.TutorsCollection, fieldTutorEmail, email)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrRemoteStore, "failed to look up tutor")
	}
	if len(docs) == 0 {
		s.recordFailedLogin(ctx, nil, email, req)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	tutor := decodeTutor(docs[0])

	ok, legacy := verifyPassword(tutor.PasswordHash, req.Password)
	if !ok {
		s.recordFailedLogin(ctx, &tutor.ID, email, req)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	if legacy {
		s.upgradePassword(ctx, tutor.ID, req.Password)
	}

	overview, err := s.overviews.Overview(ctx, tutor.ID)
	if err != nil {
		return nil, err
	}

	issuedAt := time.Now().UTC()
	token, err := s.generateAccessToken(tutor, issuedAt)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create access token")
	}

	s.record(ctx, &models.AuditLog{
		TutorID:    &tutor.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &tutor.ID,
		NewValues:  []byte(`{"status":"success"}`),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		Overview:    *overview,
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.TutorID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) generateAccessToken(tutor models.Tutor, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		TutorID:  tutor.ID,
		Email:    tutor.Email,
		FullName: tutor.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   tutor.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) reloadAfterRegistration(ctx context.Context, tutorID string) {
	if err := s.snapshots.LoadAll(ctx); err != nil {
		s.logger.Warn("snapshot reload after registration failed", zap.String("tutor_id", tutorID), zap.Error(err))
		return
	}
	s.logger.Info("snapshot reloaded after registration", zap.String("tutor_id", tutorID))
}

// upgradePassword replaces a plaintext password with its bcrypt hash.
func (s *AuthService) upgradePassword(ctx context.Context, tutorID, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Warn("failed to hash legacy password", zap.String("tutor_id", tutorID), zap.Error(err))
		return
	}
	if err := s.remote.UpsertFields(ctx, s.config.TutorsCollection, tutorID, map[string]interface{}{
		fieldTutorPassword: string(hash),
	}); err != nil {
		s.logger.Warn("failed to upgrade legacy password", zap.String("tutor_id", tutorID), zap.Error(err))
		return
	}
	s.logger.Info("legacy password upgraded", zap.String("tutor_id", tutorID))
}

func (s *AuthService) recordFailedLogin(ctx context.Context, tutorID *string, email string, req models.LoginRequest) {
	s.record(ctx, &models.AuditLog{
		TutorID:   tutorID,
		Action:    models.AuditActionLoginFailed,
		Resource:  "auth",
		NewValues: auditValues(map[string]interface{}{"email": email}),
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})
}

func (s *AuthService) record(ctx context.Context, entry *models.AuditLog) {
	recordAudit(ctx, s.audit, s.logger, entry)
}

// verifyPassword checks password against stored. Stored values that are not
// bcrypt hashes are legacy plaintext; legacy reports a match against one.
func verifyPassword(stored, password string) (ok bool, legacy bool) {
	if stored == "" {
		return false, false
	}
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, false
	}
	match := subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
	return match, match
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func recordAudit(ctx context.Context, audit auditRecorder, logger *zap.Logger, entry *models.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func auditValues(values map[string]interface{}) []byte {
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return data
}

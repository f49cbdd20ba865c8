package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

type fakeAuthService struct {
	registered models.RegisterRequest
	loginErr   error
}

func (f *fakeAuthService) Register(_ context.Context, req models.RegisterRequest) (*models.Tutor, error) {
	f.registered = req
	return &models.Tutor{ID: "t9", FullName: req.FullName, Email: req.Email, Groups: []string{}}, nil
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{AccessToken: "token", Overview: models.TutorOverview{Tutor: models.Tutor{Email: req.Email}}}, nil
}

func TestAuthHandlerRegister(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc)

	body := `{"full_name":"Laura Vega","email":"laura@example.com","password":"secreto"}`
	c, w := newGinContext(http.MethodPost, "/auth/register", []byte(body))
	c.Request.Header.Set("User-Agent", "test-agent")

	h.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "laura@example.com", svc.registered.Email)
	assert.Equal(t, "test-agent", svc.registered.UserAgent)
	assert.NotContains(t, w.Body.String(), "secreto")
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":`))
	NewAuthHandler(&fakeAuthService{}).Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h := NewAuthHandler(&fakeAuthService{loginErr: appErrors.ErrInvalidCredentials})
	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"a@b.co","password":"x"}`))
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeEnvelope(t, w).Error.Code)
}

func TestAuthHandlerLogin(t *testing.T) {
	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"a@b.co","password":"x"}`))
	NewAuthHandler(&fakeAuthService{}).Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"access_token":"token"`)
}

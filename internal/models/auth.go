package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds tutor credentials.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest creates a new tutor account.
type RegisterRequest struct {
	FullName  string `json:"full_name" validate:"required,min=3,max=120"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the access token and the tutor overview.
type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	ExpiresIn   int64         `json:"expires_in"`
	IssuedAt    time.Time     `json:"issued_at"`
	Overview    TutorOverview `json:"overview"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	TutorID  string `json:"tutor_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

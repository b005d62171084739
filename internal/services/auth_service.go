package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"veilchat/config"
	"veilchat/internal/domain/user"
	"veilchat/internal/repository"
	veilchat_errors "veilchat/pkg/errors"
)

type AuthService struct {
	userRepo    repository.UserRepository
	jwtSecret   []byte
	accessTTL   time.Duration
	sessionTTL  time.Duration
	idleTimeout time.Duration
	dbTimeout   time.Duration
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		jwtSecret:   []byte(cfg.JWTSecret),
		accessTTL:   time.Duration(cfg.JWTExpiryMin) * time.Minute,
		sessionTTL:  time.Duration(cfg.SessionTTLDays) * 24 * time.Hour,
		idleTimeout: cfg.IdleTimeout(),
		dbTimeout:   cfg.DBTimeout(),
	}
}

type RegisterInput struct {
	Username string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResponse struct {
	AccessToken string   `json:"access_token"`
	ExpiresIn   int64    `json:"expires_in"`
	SessionID   string   `json:"session_id"`
	User        UserInfo `json:"user"`
}

type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type AccessClaims struct {
	UserID    string `json:"sub"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResponse, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || len(in.Password) < 8 {
		return AuthResponse{}, veilchat_errors.ErrInvalidInput
	}

	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return AuthResponse{}, veilchat_errors.ErrConflict
	} else if !errors.Is(err, veilchat_errors.ErrNotFound) {
		return AuthResponse{}, storageErr(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, err
	}

	newUser := &user.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, veilchat_errors.ErrAlreadyExists) {
			return AuthResponse{}, veilchat_errors.ErrConflict
		}
		return AuthResponse{}, storageErr(err)
	}

	return s.issueSession(ctx, *newUser)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResponse, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	u, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		if errors.Is(err, veilchat_errors.ErrNotFound) {
			return AuthResponse{}, veilchat_errors.ErrUnauthorized
		}
		return AuthResponse{}, storageErr(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return AuthResponse{}, veilchat_errors.ErrUnauthorized
	}

	return s.issueSession(ctx, u)
}

func (s *AuthService) issueSession(ctx context.Context, u user.User) (AuthResponse, error) {
	now := time.Now()
	session := &user.Session{
		ID:           uuid.New(),
		UserID:       u.ID,
		LastActivity: now,
		ExpiresAt:    now.Add(s.sessionTTL),
		CreatedAt:    now,
	}
	if err := s.userRepo.CreateSession(ctx, session); err != nil {
		return AuthResponse{}, storageErr(err)
	}

	token, err := s.signAccessToken(u.ID, session.ID)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.accessTTL.Seconds()),
		SessionID:   session.ID.String(),
		User:        UserInfo{ID: u.ID.String(), Username: u.Username},
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID uuid.UUID) error {
	err := s.userRepo.DeleteSession(ctx, sessionID)
	if errors.Is(err, veilchat_errors.ErrNotFound) {
		return nil
	}
	return storageErr(err)
}

// ValidateSession enforces the sliding-expiration window. An unknown session
// and an idle-expired one both come back as ErrUnauthorized; the expired row
// is deleted so a retry with the same token fails the same way. A live
// session has its last_activity refreshed before the bound user is returned.
func (s *AuthService) ValidateSession(ctx context.Context, sessionID uuid.UUID) (user.User, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	session, err := s.userRepo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, veilchat_errors.ErrNotFound) {
			return user.User{}, veilchat_errors.ErrUnauthorized
		}
		return user.User{}, storageErr(err)
	}

	now := time.Now()
	if now.Sub(session.LastActivity) > s.idleTimeout || now.After(session.ExpiresAt) {
		_ = s.userRepo.DeleteSession(ctx, sessionID)
		return user.User{}, veilchat_errors.ErrUnauthorized
	}

	if err := s.userRepo.TouchSession(ctx, sessionID, now); err != nil {
		if errors.Is(err, veilchat_errors.ErrNotFound) {
			return user.User{}, veilchat_errors.ErrUnauthorized
		}
		return user.User{}, storageErr(err)
	}

	u, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, veilchat_errors.ErrNotFound) {
			return user.User{}, veilchat_errors.ErrUnauthorized
		}
		return user.User{}, storageErr(err)
	}
	return u, nil
}

func (s *AuthService) signAccessToken(userID, sessionID uuid.UUID) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ParseAccessToken verifies the JWT signature and expiry. The session row is
// still authoritative; callers follow up with ValidateSession.
func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, veilchat_errors.ErrUnauthorized
	}
	var claims AccessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, veilchat_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return AccessClaims{}, veilchat_errors.ErrUnauthorized
	}
	return claims, nil
}

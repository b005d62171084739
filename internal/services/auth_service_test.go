package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"veilchat/config"
	"veilchat/internal/domain/user"
	"veilchat/internal/repository"
	"veilchat/internal/services"
	veilchat_errors "veilchat/pkg/errors"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-secret",
		JWTExpiryMin:   15,
		SessionTTLDays: 30,
		IdleTimeoutMin: 30,
		DBTimeoutSec:   5,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewAuthService(repository.NewUserRepository(db), testConfig())

	res, err := svc.Register(context.Background(), services.RegisterInput{
		Username: "alice",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.AccessToken == "" || res.SessionID == "" {
		t.Fatalf("expected token and session, got %+v", res)
	}
	if res.User.Username != "alice" {
		t.Fatalf("unexpected user: %+v", res.User)
	}

	if _, err := svc.Register(context.Background(), services.RegisterInput{
		Username: "alice",
		Password: "another pass",
	}); !errors.Is(err, veilchat_errors.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate username, got %v", err)
	}

	if _, err := svc.Login(context.Background(), services.LoginInput{
		Username: "alice",
		Password: "wrong password",
	}); !errors.Is(err, veilchat_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad password, got %v", err)
	}

	login, err := svc.Login(context.Background(), services.LoginInput{
		Username: "alice",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.SessionID == res.SessionID {
		t.Fatalf("login must mint a fresh session")
	}
}

func TestRegisterValidation(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewAuthService(repository.NewUserRepository(db), testConfig())

	if _, err := svc.Register(context.Background(), services.RegisterInput{
		Username: "",
		Password: "long enough pass",
	}); !errors.Is(err, veilchat_errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty username, got %v", err)
	}

	if _, err := svc.Register(context.Background(), services.RegisterInput{
		Username: "bob",
		Password: "short",
	}); !errors.Is(err, veilchat_errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestValidateSessionSlidingWindow(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewAuthService(repository.NewUserRepository(db), testConfig())

	res, err := svc.Register(context.Background(), services.RegisterInput{
		Username: "carol",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	sessionID := uuid.MustParse(res.SessionID)

	// Just inside the idle window: validation passes and slides it forward.
	almostIdle := time.Now().Add(-(30*time.Minute - time.Second))
	if err := db.Model(&user.Session{}).Where("id = ?", sessionID).
		Update("last_activity", almostIdle).Error; err != nil {
		t.Fatalf("set last_activity: %v", err)
	}

	u, err := svc.ValidateSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("validate inside window: %v", err)
	}
	if u.Username != "carol" {
		t.Fatalf("unexpected user: %+v", u)
	}

	var refreshed user.Session
	if err := db.First(&refreshed, "id = ?", sessionID).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if !refreshed.LastActivity.After(almostIdle) {
		t.Fatalf("validation must refresh last_activity")
	}

	// Past the idle window: validation fails and deletes the row, so a
	// retry with the same token fails the same way.
	expired := time.Now().Add(-(30*time.Minute + time.Second))
	if err := db.Model(&user.Session{}).Where("id = ?", sessionID).
		Update("last_activity", expired).Error; err != nil {
		t.Fatalf("set last_activity: %v", err)
	}

	if _, err := svc.ValidateSession(context.Background(), sessionID); !errors.Is(err, veilchat_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized past idle window, got %v", err)
	}

	var count int64
	if err := db.Model(&user.Session{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 0 {
		t.Fatalf("idle-expired session row must be deleted")
	}

	if _, err := svc.ValidateSession(context.Background(), sessionID); !errors.Is(err, veilchat_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on retry, got %v", err)
	}
}

func TestValidateUnknownSession(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewAuthService(repository.NewUserRepository(db), testConfig())

	if _, err := svc.ValidateSession(context.Background(), uuid.New()); !errors.Is(err, veilchat_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown session, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewAuthService(repository.NewUserRepository(db), testConfig())

	res, err := svc.Register(context.Background(), services.RegisterInput{
		Username: "dave",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	sessionID := uuid.MustParse(res.SessionID)

	if err := svc.Logout(context.Background(), sessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(context.Background(), sessionID); err != nil {
		t.Fatalf("second logout must be a no-op, got %v", err)
	}

	if _, err := svc.ValidateSession(context.Background(), sessionID); !errors.Is(err, veilchat_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
}

func TestParseAccessToken(t *testing.T) {
	db := openTestDB(t)
	svc := services.NewAuthService(repository.NewUserRepository(db), testConfig())

	res, err := svc.Register(context.Background(), services.RegisterInput{
		Username: "erin",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	claims, err := svc.ParseAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != res.User.ID || claims.SessionID != res.SessionID {
		t.Fatalf("claims do not match issued session: %+v", claims)
	}

	if _, err := svc.ParseAccessToken("not-a-token"); !errors.Is(err, veilchat_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for garbage token, got %v", err)
	}

	other := services.NewAuthService(repository.NewUserRepository(db), &config.Config{
		JWTSecret:      "different-secret",
		JWTExpiryMin:   15,
		SessionTTLDays: 30,
		IdleTimeoutMin: 30,
	})
	if _, err := other.ParseAccessToken(res.AccessToken); !errors.Is(err, veilchat_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong secret, got %v", err)
	}
}

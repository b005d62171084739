package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	veilchat_errors "veilchat/pkg/errors"
)

type contextKey string

const (
	userIDKey    contextKey = "auth_user_id"
	sessionIDKey contextKey = "auth_session_id"
	deviceIDKey  contextKey = "auth_device_id"
)

// WithUserSessionContext binds the authenticated principal to the request
// context after middleware validation.
func WithUserSessionContext(ctx context.Context, userID, sessionID uuid.UUID, deviceID uuid.NullUUID) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, deviceIDKey, deviceID)
	return ctx
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func SessionIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(sessionIDKey).(uuid.UUID)
	return id, ok
}

func DeviceIDFromContext(ctx context.Context) (uuid.NullUUID, bool) {
	id, ok := ctx.Value(deviceIDKey).(uuid.NullUUID)
	return id, ok
}

// withDBTimeout bounds storage-touching work for one operation. Zero means
// the caller's context already carries the bound.
func withDBTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// storageErr keeps storage failures out of caller-visible error text. A
// deadline hit surfaces as retryable unavailability.
func storageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return veilchat_errors.ErrServiceUnavailable
	}
	return err
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
	"github.com/noah-isme/bprnd-credit-api/pkg/lock"
)

const (
	scopeCourse  = "course"
	scopeClaim   = "claim"
	scopeStudent = "student"
)

type keyLocker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// acquire takes a per-resource lock and converts lock failures into the
// retryable contention error or a cancellation.
func acquire(ctx context.Context, locks keyLocker, scope, id string) (func(), error) {
	release, err := locks.Acquire(ctx, lock.Key(scope, id))
	if err == nil {
		return release, nil
	}
	if errors.Is(err, lock.ErrTimeout) {
		return nil, appErrors.Clonef(appErrors.ErrContention, "%s %s is busy, retry later", scope, id)
	}
	return nil, cancellation(err)
}

func cancellation(err error) error {
	return appErrors.WrapAs(err, appErrors.ErrCanceled, "request canceled")
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func requireRole(session models.Session, roles ...models.Role) error {
	for _, role := range roles {
		if session.Actor.Role == role {
			return nil
		}
	}
	return appErrors.Clonef(appErrors.ErrForbidden, "role %q may not perform this action", session.Actor.Role)
}

// canSeeStudent reports whether the session may read another student's data.
func canSeeStudent(session models.Session, studentID string) bool {
	if session.Actor.Role == models.RoleStudent {
		return session.Actor.ID == studentID
	}
	return true
}

// lookupError maps repository read errors.
func lookupError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clonef(appErrors.ErrNotFound, "%s not found", what)
	}
	if isCanceled(err) {
		return cancellation(err)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load "+what)
}

func sessionFields(session models.Session) []zap.Field {
	return []zap.Field{
		zap.String("actor_id", session.Actor.ID),
		zap.String("actor_role", string(session.Actor.Role)),
		zap.String("request_id", session.RequestID),
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

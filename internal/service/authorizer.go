package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
)

// referenceStore reads the reference records owned by neighbouring systems.
type referenceStore interface {
	GetInstructor(ctx context.Context, id string) (*models.Instructor, error)
	GetCoordinator(ctx context.Context, id string) (*models.Coordinator, error)
	GetPlacement(ctx context.Context, id string) (*models.Placement, error)
	GetClassGroup(ctx context.Context, id string) (*models.ClassGroup, error)
}

// Authorizer performs the domain checks layered on top of token roles.
type Authorizer struct {
	refs referenceStore
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(refs referenceStore) *Authorizer {
	return &Authorizer{refs: refs}
}

// RequireRole fails unless the actor holds one of roles.
func (a *Authorizer) RequireRole(actor *models.JWTClaims, roles ...models.Role) error {
	if actor == nil || actor.ActorID() == "" {
		return appErrors.ErrUnauthorized
	}
	if !actor.HasRole(roles...) {
		return appErrors.Clone(appErrors.ErrForbidden, "role not allowed for this operation")
	}
	return nil
}

// CanActFor allows instructors to act on their own records and staff on anyone's.
func (a *Authorizer) CanActFor(actor *models.JWTClaims, instructorID string) error {
	if actor == nil || actor.ActorID() == "" {
		return appErrors.ErrUnauthorized
	}
	if actor.HasRole(models.RoleAdmin, models.RoleCoordinator) {
		return nil
	}
	if actor.HasRole(models.RoleInstructor) && actor.ActorID() == instructorID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "cannot act on another instructor's records")
}

// CanReview checks that actor may approve or reject work of the instructor: admins always,
// coordinators only for instructors sharing one of their topic areas, never the instructor.
func (a *Authorizer) CanReview(ctx context.Context, actor *models.JWTClaims, instructorID string) error {
	if actor == nil || actor.ActorID() == "" {
		return appErrors.ErrUnauthorized
	}
	if actor.ActorID() == instructorID {
		return appErrors.Clone(appErrors.ErrForbidden, "instructors cannot review their own hours")
	}
	if actor.HasRole(models.RoleAdmin) {
		return nil
	}
	if !actor.HasRole(models.RoleCoordinator) {
		return appErrors.Clone(appErrors.ErrForbidden, "only coordinators or admins may review hours")
	}

	coordinator, err := a.refs.GetCoordinator(ctx, actor.ActorID())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "coordinator profile not found")
		}
		return appErrors.Internal(err, "failed to load coordinator")
	}
	if !coordinator.Active {
		return appErrors.Clone(appErrors.ErrForbidden, "coordinator is inactive")
	}
	instructor, err := a.refs.GetInstructor(ctx, instructorID)
	if err != nil {
		return lookupError(err, "instructor")
	}
	if !coordinator.SharesArea(instructor.TopicAreas) {
		return appErrors.Clone(appErrors.ErrForbidden, "coordinator not authorized for the instructor's area")
	}
	return nil
}

// lookupError turns a repository read failure into NOT_FOUND or INTERNAL_ERROR.
func lookupError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Internal(err, "failed to load "+what)
}

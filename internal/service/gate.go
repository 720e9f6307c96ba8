package service

import (
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

// MutationPath is the route a requested change takes.
type MutationPath int

const (
	// PathDirect applies the change immediately.
	PathDirect MutationPath = iota + 1
	// PathQueue stores the change for review.
	PathQueue
)

func (p MutationPath) String() string {
	switch p {
	case PathDirect:
		return "direct"
	case PathQueue:
		return "queue"
	}
	return "unknown"
}

// AuthorizationGate decides whether a change is applied now, queued, or refused.
type AuthorizationGate struct{}

// RouteEntityUpdate decides the path for an edit of an existing entity.
func (AuthorizationGate) RouteEntityUpdate(actor *models.ActingUser, entity *models.Entity, changesStatus bool) (MutationPath, error) {
	if actor == nil || actor.ID == "" {
		return 0, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if actor.IsAdmin() {
		return PathDirect, nil
	}
	if changesStatus {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "only administrators can change entity status")
	}
	if entity != nil && entity.OwnerID != "" && entity.OwnerID == actor.ID {
		return PathQueue, nil
	}
	return 0, appErrors.Clone(appErrors.ErrForbidden, "you can only edit entities you own")
}

// RouteSubmission decides the path for a proposal. Research drafts always queue.
func (AuthorizationGate) RouteSubmission(actor *models.ActingUser, source string) MutationPath {
	if source != models.SourceAI && actor.IsAdmin() {
		return PathDirect
	}
	return PathQueue
}

// RequireAdmin refuses anyone who may not review proposals.
func (AuthorizationGate) RequireAdmin(actor *models.ActingUser) error {
	if actor == nil || actor.ID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "administrator role required")
	}
	return nil
}

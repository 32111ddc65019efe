// Package access holds the engine's view of the access-control and
// identity-lookup collaborators. The engine calls Check before any state
// transition and treats its failure as a fatal precondition; Lookup is
// best-effort and only decorates returned activity records.
package access

import (
	"context"

	"github.com/okanat/filedock/internal/model"
)

// Role is the access level required for an operation.
type Role string

const (
	// RoleOwner: only the project owner qualifies.
	RoleOwner Role = "owner"
	// RoleContributor: the owner or any listed contributor qualifies.
	RoleContributor Role = "contributor"
)

// Checker verifies that a user may act on a project with at least the given
// role.
type Checker interface {
	// Check returns the project on success, apperr.CodeNotFound if the
	// project does not exist, or apperr.CodeNotAuthorized otherwise.
	Check(ctx context.Context, userID, projectID string, role Role) (*model.Project, error)
}

// Directory resolves user IDs to display identities.
type Directory interface {
	// Lookup returns the known identities among userIDs. Missing IDs are
	// simply absent from the result.
	Lookup(ctx context.Context, userIDs []string) ([]model.User, error)
}

// Decorate fills the display fields of the activities from the directory.
// A lookup failure degrades to empty identity fields rather than failing the
// request.
func Decorate(ctx context.Context, dir Directory, activities []model.Activity) []model.Activity {
	if len(activities) == 0 {
		return activities
	}
	seen := make(map[string]bool)
	var ids []string
	for _, a := range activities {
		if !seen[a.ActorID] {
			seen[a.ActorID] = true
			ids = append(ids, a.ActorID)
		}
	}
	users, err := dir.Lookup(ctx, ids)
	if err != nil {
		return activities
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.UserID] = u
	}
	for i := range activities {
		if u, ok := byID[activities[i].ActorID]; ok {
			activities[i].ActorName = u.DisplayName
			activities[i].ActorEmail = u.Email
		}
	}
	return activities
}

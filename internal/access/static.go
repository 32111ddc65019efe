package access

import (
	"context"

	"github.com/okanat/filedock/internal/apperr"
	"github.com/okanat/filedock/internal/model"
)

// StaticChecker implements Checker over a fixed project set. Used in tests.
type StaticChecker struct {
	Projects map[string]model.Project
}

func (c *StaticChecker) Check(ctx context.Context, userID, projectID string, role Role) (*model.Project, error) {
	p, ok := c.Projects[projectID]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "project "+projectID+" not found")
	}
	return &p, Authorize(&p, userID, role)
}

// StaticDirectory implements Directory over a fixed user set. Used in tests.
type StaticDirectory struct {
	Users map[string]model.User

	// Err, when set, makes every lookup fail.
	Err error
}

func (d *StaticDirectory) Lookup(ctx context.Context, userIDs []string) ([]model.User, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	var users []model.User
	for _, id := range userIDs {
		if u, ok := d.Users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

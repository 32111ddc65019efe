// Package store holds the metadata repositories backing the checkout engine:
// file records (with their activity logs) and version records. The metadata
// store is the authority on checkout state and may be shared by many
// processes, so the only synchronization primitive is the per-record
// conditional write exposed through ApplyTransition.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/okanat/filedock/internal/model"
)

// ErrConflict is returned by ApplyTransition when the file record no longer
// matches the expected head. The caller should re-read and re-evaluate.
var ErrConflict = errors.New("file record changed concurrently")

// FileKey identifies one file record.
type FileKey struct {
	ProjectID string
	FileID    string
}

// Head is the state a transition was derived from. ApplyTransition applies
// only while the stored record still matches, making the read-modify-write of
// the activity head a single atomic conditional operation.
type Head struct {
	CurrentVersion int64
	ActivityCount  int
}

// Mutation carries the effects of one state transition.
type Mutation struct {
	// Activity is prepended to the log (newest first).
	Activity model.Activity

	// NewVersion, when non-zero, bumps current_version and stamps
	// last_modified_at with the activity time. Set for push transitions only.
	NewVersion int64
}

// Files is the file-record repository.
type Files interface {
	// Get returns the record, or apperr.CodeNotFound if absent.
	// Soft-deleted records are returned; callers decide visibility.
	Get(ctx context.Context, key FileKey) (*model.File, error)

	// Create writes a brand-new record. Fails if the key already exists.
	Create(ctx context.Context, f *model.File) error

	// FindByName returns the first non-deleted file with the given name in
	// the project, or nil if there is none.
	FindByName(ctx context.Context, projectID, name string) (*model.File, error)

	// ListByProject returns all non-deleted files of a project.
	ListByProject(ctx context.Context, projectID string) ([]model.File, error)

	// ApplyTransition conditionally appends an activity (and, for pushes,
	// bumps the version counter). Returns ErrConflict if the record changed
	// since expect was read.
	ApplyTransition(ctx context.Context, key FileKey, expect Head, mut Mutation) error

	// UpdateInfo rewrites the descriptive fields only.
	UpdateInfo(ctx context.Context, key FileKey, name, description string, tags []string) error

	// MarkDeleted soft-deletes the record.
	MarkDeleted(ctx context.Context, key FileKey) error
}

// Versions is the version-record repository.
type Versions interface {
	Put(ctx context.Context, v *model.Version) error

	// Get returns the record, or apperr.CodeNotFound if absent.
	Get(ctx context.Context, fileID string, version int64) (*model.Version, error)

	// ListByFile returns all version records of a file, oldest first.
	ListByFile(ctx context.Context, fileID string) ([]model.Version, error)

	SetRetain(ctx context.Context, fileID string, version int64, retain bool) error

	// ListExpired returns every non-deleted, non-retained version created
	// before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]model.Version, error)

	// MarkDeleted flips the tombstone flag after the blob has been reclaimed.
	MarkDeleted(ctx context.Context, fileID string, version int64) error
}

// Package checkout implements the file check-out/check-in engine: exclusive
// holds, immutable version sequences and the operations callers invoke
// against a file. Exclusivity is enforced purely by activity-log inspection;
// the audit trail and the concurrency token are the same record.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/okanat/filedock/internal/access"
	"github.com/okanat/filedock/internal/apperr"
	"github.com/okanat/filedock/internal/blob"
	"github.com/okanat/filedock/internal/logging"
	"github.com/okanat/filedock/internal/model"
	"github.com/okanat/filedock/internal/store"
)

// casAttempts bounds the re-read loop for pull/cancel when the conditional
// append loses a race. Each retry re-derives the guards from fresh state.
const casAttempts = 3

// Service coordinates the checkout state machine, the version store and the
// external collaborators.
type Service struct {
	files    store.Files
	versions store.Versions
	blobs    blob.Store
	access   access.Checker
	dir      access.Directory
	log      logging.Logger

	now func() time.Time
}

func NewService(files store.Files, versions store.Versions, blobs blob.Store, checker access.Checker, dir access.Directory, log logging.Logger) *Service {
	return &Service{
		files:    files,
		versions: versions,
		blobs:    blobs,
		access:   checker,
		dir:      dir,
		log:      log,
		now:      time.Now,
	}
}

// CreateFileInput carries the fields for CreateFile.
type CreateFileInput struct {
	ProjectID   string
	Name        string
	Description string
	Tags        []string
	MIMEType    string
	Content     []byte
}

// FileDetails is a file record together with its version history.
type FileDetails struct {
	File     model.File      `json:"file"`
	Versions []model.Version `json:"versions"`
}

// activeFile loads a file and hides soft-deleted records from all operations.
func (s *Service) activeFile(ctx context.Context, key store.FileKey) (*model.File, error) {
	f, err := s.files.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if f.IsDeleted {
		return nil, apperr.New(apperr.CodeNotFound, "file "+key.FileID+" not found")
	}
	return f, nil
}

// Pull acquires an exclusive edit hold on the file.
func (s *Service) Pull(ctx context.Context, userID, projectID, fileID string, estimatedCompletionAt time.Time, description string) (*model.Activity, error) {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleContributor); err != nil {
		return nil, err
	}
	key := store.FileKey{ProjectID: projectID, FileID: fileID}

	for attempt := 0; attempt < casAttempts; attempt++ {
		f, err := s.activeFile(ctx, key)
		if err != nil {
			return nil, err
		}
		if h, held := headState(f); held {
			return nil, apperr.New(apperr.CodeAlreadyPulled, "file is held by "+h.userID)
		}

		act := model.Activity{
			Kind:        model.ActivityPull,
			ActorID:     userID,
			CreatedAt:   s.now().UTC(),
			Description: description,
			FileVersion: f.CurrentVersion,
		}
		if !estimatedCompletionAt.IsZero() {
			est := estimatedCompletionAt.UTC()
			act.EstimatedCompletionAt = &est
		}

		err = s.files.ApplyTransition(ctx, key, headOf(f), store.Mutation{Activity: act})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.decorate(ctx, act), nil
	}
	return nil, apperr.New(apperr.CodeUnknown, "pull gave up after repeated concurrent updates")
}

// Cancel releases the caller's hold without committing a new version.
func (s *Service) Cancel(ctx context.Context, userID, projectID, fileID, description string) (*model.Activity, error) {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleContributor); err != nil {
		return nil, err
	}
	key := store.FileKey{ProjectID: projectID, FileID: fileID}

	for attempt := 0; attempt < casAttempts; attempt++ {
		f, err := s.activeFile(ctx, key)
		if err != nil {
			return nil, err
		}
		h, held := headState(f)
		if !held {
			return nil, apperr.New(apperr.CodeNotPulled, "file is not pulled")
		}
		if h.userID != userID {
			return nil, apperr.New(apperr.CodeAlreadyPulled, "file is held by "+h.userID)
		}

		pulledAt := h.since
		act := model.Activity{
			Kind:                  model.ActivityCancel,
			ActorID:               userID,
			CreatedAt:             s.now().UTC(),
			Description:           description,
			FileVersion:           f.CurrentVersion,
			EstimatedCompletionAt: h.estimatedCompletionAt,
			PulledAt:              &pulledAt,
		}

		err = s.files.ApplyTransition(ctx, key, headOf(f), store.Mutation{Activity: act})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.decorate(ctx, act), nil
	}
	return nil, apperr.New(apperr.CodeUnknown, "cancel gave up after repeated concurrent updates")
}

// Push commits content as the next version and releases the hold. The blob is
// written before any metadata changes: a blob-write failure leaves the file
// state untouched and consumes no version number.
func (s *Service) Push(ctx context.Context, userID, projectID, fileID string, content []byte, description string) (*model.Activity, error) {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleContributor); err != nil {
		return nil, err
	}
	key := store.FileKey{ProjectID: projectID, FileID: fileID}

	f, err := s.activeFile(ctx, key)
	if err != nil {
		return nil, err
	}
	h, held := headState(f)
	if !held || h.userID != userID {
		return nil, apperr.New(apperr.CodeNotPulled, "file is not pulled by "+userID)
	}
	// Unreachable when the conditional append holds, but checked anyway: a
	// push that landed after this hold began means the hold was not exclusive.
	if f.LastModifiedAt != nil && f.LastModifiedAt.After(h.since) {
		return nil, apperr.New(apperr.CodeStaleVersion, "a newer version was pushed after this hold began")
	}

	newVersion := f.CurrentVersion + 1
	blobKey := blob.Key(projectID, fileID, newVersion)
	if err := s.blobs.Put(ctx, blobKey, content); err != nil {
		return nil, err
	}

	pulledAt := h.since
	act := model.Activity{
		Kind:                  model.ActivityPush,
		ActorID:               userID,
		CreatedAt:             s.now().UTC(),
		Description:           description,
		FileVersion:           newVersion,
		EstimatedCompletionAt: h.estimatedCompletionAt,
		PulledAt:              &pulledAt,
	}

	err = s.files.ApplyTransition(ctx, key, headOf(f), store.Mutation{Activity: act, NewVersion: newVersion})
	if err != nil {
		// The new blob was never published; remove it so the version number
		// stays unconsumed.
		if delErr := s.blobs.Delete(ctx, blobKey); delErr != nil {
			s.log.Warn(ctx, "orphan blob left after aborted push", "key", blobKey, "error", delErr)
		}
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Wrap(apperr.CodeUnknown, "push aborted by a concurrent update", err)
		}
		return nil, err
	}

	if err := s.putVersionRecord(ctx, &model.Version{
		FileID:        fileID,
		ProjectID:     projectID,
		VersionNumber: newVersion,
		BlobKey:       blobKey,
		CreatedAt:     act.CreatedAt,
		CreatedBy:     userID,
	}); err != nil {
		// The push itself is committed; only the version's metadata row is
		// missing. Surface it so the caller knows history is incomplete.
		s.log.Error(ctx, "version record write failed after committed push",
			"file_id", fileID, "version", newVersion, "error", err)
		return nil, apperr.Wrap(apperr.CodeUnknown, "version metadata write failed after push", err)
	}

	return s.decorate(ctx, act), nil
}

// putVersionRecord retries the metadata write with capped backoff. A blob
// with no matching record is an orphan, so this write gets more patience than
// an ordinary store call.
func (s *Service) putVersionRecord(ctx context.Context, v *model.Version) error {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.versions.Put(ctx, v); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// CreateFile registers a new file with its initial content as version 1.
func (s *Service) CreateFile(ctx context.Context, userID string, in CreateFileInput) (*model.File, error) {
	if _, err := s.access.Check(ctx, userID, in.ProjectID, access.RoleOwner); err != nil {
		return nil, err
	}

	existing, err := s.files.FindByName(ctx, in.ProjectID, in.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.New(apperr.CodeAlreadyExists, "a file named "+in.Name+" already exists in the project")
	}

	fileID := uuid.NewString()
	now := s.now().UTC()
	blobKey := blob.Key(in.ProjectID, fileID, 1)
	if err := s.blobs.Put(ctx, blobKey, in.Content); err != nil {
		return nil, err
	}

	f := &model.File{
		FileID:         fileID,
		ProjectID:      in.ProjectID,
		Name:           in.Name,
		Description:    in.Description,
		Tags:           in.Tags,
		MIMEType:       in.MIMEType,
		CurrentVersion: 1,
		CreatedAt:      now,
		Activities:     []model.Activity{},
	}
	if err := s.files.Create(ctx, f); err != nil {
		if delErr := s.blobs.Delete(ctx, blobKey); delErr != nil {
			s.log.Warn(ctx, "orphan blob left after failed file create", "key", blobKey, "error", delErr)
		}
		return nil, err
	}

	if err := s.putVersionRecord(ctx, &model.Version{
		FileID:        fileID,
		ProjectID:     in.ProjectID,
		VersionNumber: 1,
		BlobKey:       blobKey,
		CreatedAt:     now,
		CreatedBy:     userID,
	}); err != nil {
		s.log.Error(ctx, "version record write failed after file create",
			"file_id", fileID, "error", err)
		return nil, apperr.Wrap(apperr.CodeUnknown, "version metadata write failed after file create", err)
	}

	return f, nil
}

// GetFile returns the file record, its version history and decorated
// activities.
func (s *Service) GetFile(ctx context.Context, userID, projectID, fileID string) (*FileDetails, error) {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleContributor); err != nil {
		return nil, err
	}
	f, err := s.activeFile(ctx, store.FileKey{ProjectID: projectID, FileID: fileID})
	if err != nil {
		return nil, err
	}
	versions, err := s.versions.ListByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	f.Activities = access.Decorate(ctx, s.dir, f.Activities)
	return &FileDetails{File: *f, Versions: versions}, nil
}

// ListFiles returns the non-deleted files of a project.
func (s *Service) ListFiles(ctx context.Context, userID, projectID string) ([]model.File, error) {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleContributor); err != nil {
		return nil, err
	}
	return s.files.ListByProject(ctx, projectID)
}

// UpdateFileInfo rewrites the descriptive metadata of a file.
func (s *Service) UpdateFileInfo(ctx context.Context, userID, projectID, fileID, name, description string, tags []string) error {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleOwner); err != nil {
		return err
	}
	key := store.FileKey{ProjectID: projectID, FileID: fileID}
	if _, err := s.activeFile(ctx, key); err != nil {
		return err
	}
	return s.files.UpdateInfo(ctx, key, name, description, tags)
}

// DeleteFile soft-deletes a file. Its blobs stay until the retention sweeper
// reclaims them through the normal lifecycle.
func (s *Service) DeleteFile(ctx context.Context, userID, projectID, fileID string) error {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleOwner); err != nil {
		return err
	}
	key := store.FileKey{ProjectID: projectID, FileID: fileID}
	if _, err := s.activeFile(ctx, key); err != nil {
		return err
	}
	return s.files.MarkDeleted(ctx, key)
}

// SetRetain flips the retention pin on a version.
func (s *Service) SetRetain(ctx context.Context, userID, projectID, fileID string, version int64, retain bool) error {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleContributor); err != nil {
		return err
	}
	if _, err := s.activeFile(ctx, store.FileKey{ProjectID: projectID, FileID: fileID}); err != nil {
		return err
	}
	return s.versions.SetRetain(ctx, fileID, version, retain)
}

// GetContent streams a version's blob. version is a number or "latest".
func (s *Service) GetContent(ctx context.Context, userID, projectID, fileID, version string) (io.ReadCloser, *model.File, error) {
	if _, err := s.access.Check(ctx, userID, projectID, access.RoleContributor); err != nil {
		return nil, nil, err
	}
	f, err := s.activeFile(ctx, store.FileKey{ProjectID: projectID, FileID: fileID})
	if err != nil {
		return nil, nil, err
	}

	n := f.CurrentVersion
	if version != "" && version != "latest" {
		n, err = strconv.ParseInt(version, 10, 64)
		if err != nil || n < 1 || n > f.CurrentVersion {
			return nil, nil, apperr.New(apperr.CodeNotFound, fmt.Sprintf("version %q of file %s not found", version, fileID))
		}
	}

	rc, err := s.blobs.Get(ctx, blob.Key(projectID, fileID, n))
	if err != nil {
		return nil, nil, err
	}
	return rc, f, nil
}

func (s *Service) decorate(ctx context.Context, act model.Activity) *model.Activity {
	out := access.Decorate(ctx, s.dir, []model.Activity{act})
	return &out[0]
}

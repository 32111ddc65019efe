// Package sweeper reclaims storage from old, unneeded file versions. It only
// ever touches version records already committed by the checkout engine and
// never reads or writes checkout state.
package sweeper

import (
	"context"
	"time"

	"github.com/okanat/filedock/internal/blob"
	"github.com/okanat/filedock/internal/logging"
	"github.com/okanat/filedock/internal/store"
)

// Sweeper deletes expired, non-retained, non-deleted versions.
type Sweeper struct {
	versions store.Versions
	blobs    blob.Store
	log      logging.Logger

	now func() time.Time
}

func NewSweeper(versions store.Versions, blobs blob.Store, log logging.Logger) *Sweeper {
	return &Sweeper{versions: versions, blobs: blobs, log: log, now: time.Now}
}

// Cutoff returns the whole-day UTC boundary lifetimeDays before now.
func Cutoff(now time.Time, lifetimeDays int) time.Time {
	return now.UTC().AddDate(0, 0, -lifetimeDays).Truncate(24 * time.Hour)
}

// Run executes one sweep pass. Versions are processed independently: a
// failure is logged and skipped, leaving that version for the next run. The
// blob is deleted before the tombstone flag is written, so a crash in between
// leaves a record the next sweep retries. Blob deletion is idempotent, which
// makes the whole pass re-entrant without a two-phase commit.
func (s *Sweeper) Run(ctx context.Context, lifetimeDays int) error {
	cutoff := Cutoff(s.now(), lifetimeDays)
	expired, err := s.versions.ListExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "retention sweep started", "cutoff", cutoff, "candidates", len(expired))

	swept := 0
	for _, v := range expired {
		if err := s.blobs.Delete(ctx, v.BlobKey); err != nil {
			s.log.Error(ctx, "sweep: blob delete failed",
				"file_id", v.FileID, "version", v.VersionNumber, "key", v.BlobKey, "error", err)
			continue
		}
		if err := s.versions.MarkDeleted(ctx, v.FileID, v.VersionNumber); err != nil {
			s.log.Error(ctx, "sweep: tombstone write failed",
				"file_id", v.FileID, "version", v.VersionNumber, "error", err)
			continue
		}
		swept++
	}

	s.log.Info(ctx, "retention sweep finished", "swept", swept, "skipped", len(expired)-swept)
	return nil
}

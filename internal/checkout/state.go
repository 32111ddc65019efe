package checkout

import (
	"time"

	"github.com/okanat/filedock/internal/model"
	"github.com/okanat/filedock/internal/store"
)

// hold is the checkout state derived from the head of the activity log.
type hold struct {
	userID                string
	since                 time.Time
	version               int64
	estimatedCompletionAt *time.Time
}

// headState inspects the newest activity. The file is held exactly when the
// head is an unresolved pull; push and cancel entries resolve the hold, so a
// log headed by either means the file is free.
func headState(f *model.File) (hold, bool) {
	if len(f.Activities) == 0 {
		return hold{}, false
	}
	a := f.Activities[0]
	if a.Kind != model.ActivityPull {
		return hold{}, false
	}
	return hold{
		userID:                a.ActorID,
		since:                 a.CreatedAt,
		version:               a.FileVersion,
		estimatedCompletionAt: a.EstimatedCompletionAt,
	}, true
}

// headOf captures the CAS expectation for a transition derived from f.
func headOf(f *model.File) store.Head {
	return store.Head{CurrentVersion: f.CurrentVersion, ActivityCount: len(f.Activities)}
}

package model

import "time"

// ActivityKind is the type of a checkout state transition.
type ActivityKind string

const (
	ActivityPull   ActivityKind = "pull"
	ActivityPush   ActivityKind = "push"
	ActivityCancel ActivityKind = "cancel"
)

// Activity is one entry in a file's activity log. Entries are immutable once
// appended; the newest entry alone determines whether the file is free or held.
type Activity struct {
	Kind        ActivityKind `json:"kind" dynamodbav:"kind"`
	ActorID     string       `json:"actor_id" dynamodbav:"actor_id"`
	CreatedAt   time.Time    `json:"created_at" dynamodbav:"created_at"`
	Description string       `json:"description,omitempty" dynamodbav:"description"`

	// FileVersion is the version the activity applies to: the version held
	// for pull/cancel, the new version produced for push.
	FileVersion int64 `json:"file_version" dynamodbav:"file_version"`

	// EstimatedCompletionAt is the caller's declared intent to finish by this
	// time. Set on pull and copied onto the resolving push/cancel. Advisory
	// only, never enforced.
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at,omitempty" dynamodbav:"estimated_completion_at,omitempty"`

	// PulledAt is set on push/cancel and copies the CreatedAt of the pull
	// being resolved.
	PulledAt *time.Time `json:"pulled_at,omitempty" dynamodbav:"pulled_at,omitempty"`

	// Display fields filled in best-effort from the identity directory.
	// Never persisted.
	ActorName  string `json:"actor_name,omitempty" dynamodbav:"-"`
	ActorEmail string `json:"actor_email,omitempty" dynamodbav:"-"`
}

// File is the metadata record for one logical document.
type File struct {
	FileID      string   `json:"file_id" dynamodbav:"file_id"`
	ProjectID   string   `json:"project_id" dynamodbav:"project_id"`
	Name        string   `json:"name" dynamodbav:"name"`
	Description string   `json:"description,omitempty" dynamodbav:"description"`
	Tags        []string `json:"tags,omitempty" dynamodbav:"tags"`
	MIMEType    string   `json:"mime_type" dynamodbav:"mime_type"`

	// CurrentVersion starts at 1 on creation and increments by exactly 1 on
	// every successful push.
	CurrentVersion int64 `json:"current_version" dynamodbav:"current_version"`

	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`

	// LastModifiedAt is the time of the most recent successful push; nil
	// until the first push.
	LastModifiedAt *time.Time `json:"last_modified_at,omitempty" dynamodbav:"last_modified_at,omitempty"`

	// Activities is the append-only log, newest first.
	Activities []Activity `json:"activities" dynamodbav:"activities"`

	IsDeleted bool `json:"is_deleted" dynamodbav:"is_deleted"`
}

// Version is the metadata record for one immutable file version. Created once
// by a push (or by file creation for version 1); afterwards only the retention
// sweeper flips Deleted and explicit caller requests flip Retain. The two
// writers touch disjoint fields, so per-record conditional updates suffice.
type Version struct {
	FileID        string    `json:"file_id" dynamodbav:"file_id"`
	ProjectID     string    `json:"project_id" dynamodbav:"project_id"`
	VersionNumber int64     `json:"version_number" dynamodbav:"version_number"`
	BlobKey       string    `json:"blob_key" dynamodbav:"blob_key"`
	CreatedAt     time.Time `json:"created_at" dynamodbav:"created_at"`
	CreatedBy     string    `json:"created_by" dynamodbav:"created_by"`

	// Retain pins the version: the sweeper never deletes it regardless of age.
	Retain bool `json:"retain" dynamodbav:"retain"`

	// Deleted marks that the blob has been reclaimed. The record itself is a
	// tombstone and is never removed, keeping numbering and history intact.
	Deleted bool `json:"deleted" dynamodbav:"deleted"`
}

// Project is the subset of the project record the engine needs for access
// decisions.
type Project struct {
	ProjectID      string   `json:"project_id" dynamodbav:"project_id"`
	OwnerID        string   `json:"owner_id" dynamodbav:"owner_id"`
	ContributorIDs []string `json:"contributor_ids" dynamodbav:"contributor_ids"`
}

// User carries the identity fields returned by the directory lookup.
type User struct {
	UserID      string `json:"user_id" dynamodbav:"user_id"`
	DisplayName string `json:"display_name" dynamodbav:"display_name"`
	Email       string `json:"email" dynamodbav:"email"`
}

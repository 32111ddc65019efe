package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okanat/filedock/internal/apperr"
	"github.com/okanat/filedock/internal/model"
)

// MemoryFiles implements Files with an in-memory map for tests and local runs.
// ApplyTransition performs the same compare-and-swap the DynamoDB
// implementation does, under a mutex.
type MemoryFiles struct {
	mu    sync.Mutex
	files map[FileKey]*model.File
}

func NewMemoryFiles() *MemoryFiles {
	return &MemoryFiles{files: make(map[FileKey]*model.File)}
}

func copyFile(f *model.File) *model.File {
	c := *f
	c.Tags = append([]string(nil), f.Tags...)
	c.Activities = append([]model.Activity(nil), f.Activities...)
	if f.LastModifiedAt != nil {
		t := *f.LastModifiedAt
		c.LastModifiedAt = &t
	}
	return &c
}

func (m *MemoryFiles) Get(ctx context.Context, key FileKey) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[key]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "file "+key.FileID+" not found")
	}
	return copyFile(f), nil
}

func (m *MemoryFiles) Create(ctx context.Context, f *model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := FileKey{ProjectID: f.ProjectID, FileID: f.FileID}
	if _, ok := m.files[key]; ok {
		return apperr.New(apperr.CodeAlreadyExists, "file record already exists")
	}
	m.files[key] = copyFile(f)
	return nil
}

func (m *MemoryFiles) FindByName(ctx context.Context, projectID, name string) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.ProjectID == projectID && f.Name == name && !f.IsDeleted {
			return copyFile(f), nil
		}
	}
	return nil, nil
}

func (m *MemoryFiles) ListByProject(ctx context.Context, projectID string) ([]model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var files []model.File
	for _, f := range m.files {
		if f.ProjectID == projectID && !f.IsDeleted {
			files = append(files, *copyFile(f))
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (m *MemoryFiles) ApplyTransition(ctx context.Context, key FileKey, expect Head, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[key]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "file "+key.FileID+" not found")
	}
	if f.IsDeleted || f.CurrentVersion != expect.CurrentVersion || len(f.Activities) != expect.ActivityCount {
		return ErrConflict
	}
	f.Activities = append([]model.Activity{mut.Activity}, f.Activities...)
	if mut.NewVersion != 0 {
		f.CurrentVersion = mut.NewVersion
		t := mut.Activity.CreatedAt
		f.LastModifiedAt = &t
	}
	return nil
}

func (m *MemoryFiles) UpdateInfo(ctx context.Context, key FileKey, name, description string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[key]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "file "+key.FileID+" not found")
	}
	f.Name = name
	f.Description = description
	f.Tags = append([]string(nil), tags...)
	return nil
}

func (m *MemoryFiles) MarkDeleted(ctx context.Context, key FileKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[key]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "file "+key.FileID+" not found")
	}
	f.IsDeleted = true
	return nil
}

type versionKey struct {
	fileID  string
	version int64
}

// MemoryVersions implements Versions with an in-memory map.
type MemoryVersions struct {
	mu       sync.Mutex
	versions map[versionKey]*model.Version

	// MarkDeletedErr injects a failure for the given version. Test hook for
	// sweeper partial-failure behavior.
	MarkDeletedErr map[int64]error
}

func NewMemoryVersions() *MemoryVersions {
	return &MemoryVersions{versions: make(map[versionKey]*model.Version)}
}

func (m *MemoryVersions) Put(ctx context.Context, v *model.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *v
	m.versions[versionKey{fileID: v.FileID, version: v.VersionNumber}] = &c
	return nil
}

func (m *MemoryVersions) Get(ctx context.Context, fileID string, version int64) (*model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionKey{fileID: fileID, version: version}]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, fmt.Sprintf("version %d of file %s not found", version, fileID))
	}
	c := *v
	return &c, nil
}

func (m *MemoryVersions) ListByFile(ctx context.Context, fileID string) ([]model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var versions []model.Version
	for _, v := range m.versions {
		if v.FileID == fileID {
			versions = append(versions, *v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionNumber < versions[j].VersionNumber })
	return versions, nil
}

func (m *MemoryVersions) SetRetain(ctx context.Context, fileID string, version int64, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionKey{fileID: fileID, version: version}]
	if !ok {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("version %d of file %s not found", version, fileID))
	}
	v.Retain = retain
	return nil
}

func (m *MemoryVersions) ListExpired(ctx context.Context, cutoff time.Time) ([]model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var versions []model.Version
	for _, v := range m.versions {
		if !v.Deleted && !v.Retain && v.CreatedAt.Before(cutoff) {
			versions = append(versions, *v)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		if versions[i].FileID != versions[j].FileID {
			return versions[i].FileID < versions[j].FileID
		}
		return versions[i].VersionNumber < versions[j].VersionNumber
	})
	return versions, nil
}

func (m *MemoryVersions) MarkDeleted(ctx context.Context, fileID string, version int64) error {
	if err := m.MarkDeletedErr[version]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionKey{fileID: fileID, version: version}]
	if !ok {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("version %d of file %s not found", version, fileID))
	}
	v.Deleted = true
	return nil
}

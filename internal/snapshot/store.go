package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	// SnapshotFileName is the name of the per-code snapshot file
	SnapshotFileName = "snapshot.json"

	// StatusFileName is the name of the per-code status file
	StatusFileName = "status.json"

	// lockFileName guards the state directory against a second daemon
	lockFileName = "postid.lock"
)

// Store persists per-code snapshots and poll statuses on the local
// filesystem. Layout: {stateDir}/{postalCode}/snapshot.json and
// {stateDir}/{postalCode}/status.json. All writes are atomic
// (temp file + rename).
type Store interface {
	// SaveSnapshot saves the snapshot for a specific postal code
	SaveSnapshot(ctx context.Context, postalCode string, snap *Snapshot) error

	// LoadSnapshot loads the snapshot for a specific postal code.
	// Returns nil if no snapshot has been persisted yet.
	LoadSnapshot(ctx context.Context, postalCode string) (*Snapshot, error)

	// SaveStatus saves the poll status for a specific postal code
	SaveStatus(ctx context.Context, postalCode string, status *PollStatus) error

	// LoadStatus loads the poll status for a specific postal code.
	// Returns an empty PollStatus if the file doesn't exist (first run).
	// A status interrupted mid-fetch is reset to Failing on load.
	LoadStatus(ctx context.Context, postalCode string) (*PollStatus, error)

	// ListCodes lists the postal codes that have persisted state
	ListCodes(ctx context.Context) ([]string, error)

	// Remove deletes all persisted state for a specific postal code
	Remove(ctx context.Context, postalCode string) error

	// Close releases the state-directory lock
	Close() error
}

// fileStore implements Store using the local filesystem.
type fileStore struct {
	basePath string
	lock     *flock.Flock
}

// NewFileStore creates a file-backed store rooted at basePath and takes an
// exclusive lock on it so two daemons cannot share a state directory.
func NewFileStore(basePath string) (Store, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	lock := flock.New(filepath.Join(basePath, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock state directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("state directory %s is locked by another process", basePath)
	}

	return &fileStore{basePath: basePath, lock: lock}, nil
}

// SaveSnapshot writes the snapshot to a code-specific directory.
func (f *fileStore) SaveSnapshot(_ context.Context, postalCode string, snap *Snapshot) error {
	return f.writeJSON(postalCode, SnapshotFileName, snap)
}

// LoadSnapshot reads the snapshot for a postal code, nil when absent.
func (f *fileStore) LoadSnapshot(_ context.Context, postalCode string) (*Snapshot, error) {
	data, err := f.readFile(postalCode, SnapshotFileName)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for code '%s': %w", postalCode, err)
	}
	return &snap, nil
}

// SaveStatus writes the poll status to a code-specific directory.
func (f *fileStore) SaveStatus(_ context.Context, postalCode string, status *PollStatus) error {
	return f.writeJSON(postalCode, StatusFileName, status)
}

// LoadStatus reads the poll status for a postal code, empty when absent.
func (f *fileStore) LoadStatus(_ context.Context, postalCode string) (*PollStatus, error) {
	data, err := f.readFile(postalCode, StatusFileName)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &PollStatus{}, nil
	}

	var status PollStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status for code '%s': %w", postalCode, err)
	}

	// A Fetching phase on disk means the previous process died mid-fetch.
	if status.Phase == PhaseFetching {
		status.Phase = PhaseFailing
		status.Message = "Fetch interrupted by process restart"
	}

	return &status, nil
}

// ListCodes returns the postal codes that have a state directory.
func (f *fileStore) ListCodes(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var codes []string
	for _, entry := range entries {
		if entry.IsDir() {
			codes = append(codes, entry.Name())
		}
	}
	return codes, nil
}

// Remove deletes the state directory for a postal code.
func (f *fileStore) Remove(_ context.Context, postalCode string) error {
	codeDir := filepath.Join(f.basePath, postalCode)
	if err := os.RemoveAll(codeDir); err != nil {
		return fmt.Errorf("failed to remove state for code '%s': %w", postalCode, err)
	}
	return nil
}

// Close releases the state-directory lock.
func (f *fileStore) Close() error {
	return f.lock.Unlock()
}

// writeJSON marshals v and writes it atomically under the code's directory.
func (f *fileStore) writeJSON(postalCode, fileName string, v any) error {
	codeDir := filepath.Join(f.basePath, postalCode)
	if err := os.MkdirAll(codeDir, 0750); err != nil {
		return fmt.Errorf("failed to create state directory for code '%s': %w", postalCode, err)
	}

	filePath := filepath.Join(codeDir, fileName)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s for code '%s': %w", fileName, postalCode, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary %s for code '%s': %w", fileName, postalCode, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s for code '%s': %w", fileName, postalCode, err)
	}

	return nil
}

// readFile reads a per-code file, returning nil data when it doesn't exist.
func (f *fileStore) readFile(postalCode, fileName string) ([]byte, error) {
	filePath := filepath.Join(f.basePath, postalCode, fileName)

	// #nosec G304 -- filePath is constructed from trusted internal sources (basePath + validated postal code)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s for code '%s': %w", fileName, postalCode, err)
	}
	return data, nil
}

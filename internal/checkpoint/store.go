package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/shared"
	"github.com/gofrs/flock"
)

const (
	// FileName is the checkpoint file inside the state directory.
	FileName = "checkpoint.json"
	// DryRunFileName keeps dry-run progress apart so a later live run still visits every volume.
	DryRunFileName = "checkpoint.dry-run.json"
	// LockFileName is shared by every store in a state directory.
	LockFileName = "cv2mylar.lock"
)

// Store reads and writes the checkpoint for one state directory.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *log.Logger
}

// NewStore creates a store for stateDir. A nil logger discards warnings.
func NewStore(stateDir string, logger *log.Logger) *Store {
	return NewNamedStore(stateDir, FileName, logger)
}

// NewNamedStore creates a store for the named file inside stateDir.
func NewNamedStore(stateDir, name string, logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	path := filepath.Join(stateDir, name)
	return &Store{
		path:   path,
		lock:   flock.New(filepath.Join(stateDir, LockFileName)),
		logger: logger,
	}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string { return s.path }

// Load returns the persisted checkpoint, or the zero checkpoint when there is none usable.
func (s *Store) Load() (models.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Checkpoint{}, nil
	}
	if err != nil {
		return models.Checkpoint{}, fmt.Errorf("%w: failed to read checkpoint: %v", shared.ErrStorage, err)
	}

	cp, err := decode(data)
	if err != nil {
		s.logger.Warn("ignoring unusable checkpoint, starting from the beginning", "path", s.path, "err", err)
		return models.Checkpoint{}, nil
	}
	return cp, nil
}

func decode(data []byte) (models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return models.Checkpoint{}, fmt.Errorf("%w: %v", shared.ErrCorruptCheckpoint, err)
	}
	if cp.Version != models.CheckpointVersion {
		return models.Checkpoint{}, fmt.Errorf("%w: unsupported version %d", shared.ErrCorruptCheckpoint, cp.Version)
	}
	if cp.Cursor.Character < 0 || cp.Cursor.Offset < 0 || cp.QueriesUsed < 0 {
		return models.Checkpoint{}, fmt.Errorf("%w: negative cursor or counter", shared.ErrCorruptCheckpoint)
	}
	if !cp.Cursor.Stage.Valid() {
		return models.Checkpoint{}, fmt.Errorf("%w: unknown stage %q", shared.ErrCorruptCheckpoint, cp.Cursor.Stage)
	}
	return cp, nil
}

// Save atomically replaces the checkpoint with cp.
func (s *Store) Save(cp models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode checkpoint: %v", shared.ErrStorage, err)
	}
	if err := writeFileAtomic(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("%w: failed to write checkpoint: %v", shared.ErrStorage, err)
	}
	return nil
}

// Clear removes the checkpoint. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to clear checkpoint: %v", shared.ErrStorage, err)
	}
	return nil
}

// Lock takes the state directory lock without blocking.
func (s *Store) Lock() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: failed to create state directory: %v", shared.ErrStorage, err)
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("%w: acquire lock: %v", shared.ErrStorage, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrCheckpointLocked, s.lock.Path())
	}
	return nil
}

// Unlock releases the state directory lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// writeFileAtomic writes data to a temp file beside path, syncs it and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

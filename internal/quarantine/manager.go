package quarantine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pirikara/filesentry/internal/record"
)

const metadataName = "metadata.json"

var (
	// ErrDisabled is returned by Quarantine when the holding area could
	// not be created at startup.
	ErrDisabled = errors.New("quarantine disabled")

	// ErrIndexClosed is returned when the persistent index is closed or
	// was never opened.
	ErrIndexClosed = errors.New("quarantine index unavailable")

	// ErrNotFound is returned when no entry exists for a given ID.
	ErrNotFound = errors.New("quarantine entry not found")
)

// RelocationError reports a failed file relocation with the phase that
// failed, so callers can distinguish a stuck move from a failed capture.
type RelocationError struct {
	Op   string
	Path string
	Err  error
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("quarantine %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RelocationError) Unwrap() error { return e.Err }

// Config holds the quarantine settings.
type Config struct {
	Root         string
	KeepOriginal bool
	IndexPath    string
}

// Manager relocates suspicious files into timestamped holding directories
// under a quarantine root and tracks them in a persistent index.
type Manager struct {
	root         string
	keepOriginal bool
	index        *Index
	log          *zap.Logger
	disabled     bool
}

// Metadata is the sidecar document written beside each captive file.
type Metadata struct {
	record.Detection
	QuarantineID   string    `json:"quarantine_id"`
	QuarantinePath string    `json:"quarantine_path"`
	QuarantinedAt  time.Time `json:"quarantined_at"`
	KeptOriginal   bool      `json:"kept_original,omitempty"`
}

// NewManager prepares the quarantine root and opens the index. If the root
// cannot be created the manager disables itself and every Quarantine call
// returns ErrDisabled; an unavailable index only degrades list and restore.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		root:         cfg.Root,
		keepOriginal: cfg.KeepOriginal,
		log:          log,
	}

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		log.Warn("quarantine root unavailable, quarantine disabled",
			zap.String("path", cfg.Root),
			zap.Error(err))
		m.disabled = true
		return m
	}

	if cfg.IndexPath != "" {
		idx, err := OpenIndex(cfg.IndexPath)
		if err != nil {
			log.Warn("quarantine index unavailable, list and restore disabled",
				zap.String("path", cfg.IndexPath),
				zap.Error(err))
		} else {
			m.index = idx
		}
	}

	return m
}

// Disabled reports whether the manager gave up at startup.
func (m *Manager) Disabled() bool { return m.disabled }

// Root returns the quarantine root directory.
func (m *Manager) Root() string { return m.root }

// Quarantine relocates the file at path into a fresh holding directory and
// records the capture in metadata.json and the index. The detection record
// the capture was based on travels with the file. Metadata and index
// failures are logged but not returned; the file is already safe.
func (m *Manager) Quarantine(path string, det record.Detection) (*Entry, error) {
	if m.disabled {
		return nil, ErrDisabled
	}

	now := time.Now()
	dir, err := m.makeHoldingDir(now)
	if err != nil {
		return nil, &RelocationError{Op: "prepare", Path: m.root, Err: err}
	}

	dest := filepath.Join(dir, filepath.Base(path))
	if m.keepOriginal {
		err = copyFile(path, dest)
	} else {
		err = moveFile(path, dest)
	}
	if err != nil {
		os.Remove(dir)
		op := "move"
		if m.keepOriginal {
			op = "copy"
		}
		return nil, &RelocationError{Op: op, Path: path, Err: err}
	}

	entry := &Entry{
		ID:             uuid.New().String(),
		OriginalPath:   path,
		QuarantinePath: dest,
		RecordedAt:     now.UTC(),
		SHA256:         det.SHA256,
	}

	if err := m.writeMetadata(dir, det, entry); err != nil {
		m.log.Warn("failed to write quarantine metadata",
			zap.String("path", dir),
			zap.Error(err))
	}

	if m.index != nil {
		if err := m.index.Put(entry); err != nil {
			m.log.Warn("failed to index quarantine entry",
				zap.String("id", entry.ID),
				zap.Error(err))
		}
	}

	return entry, nil
}

// Restore moves a quarantined file back to its original path and removes
// the holding directory and index entry. It refuses to overwrite anything
// now occupying the original path.
func (m *Manager) Restore(id string) (string, error) {
	if m.index == nil {
		return "", ErrIndexClosed
	}

	entry, err := m.index.Get(id)
	if err != nil {
		return "", err
	}

	if _, err := os.Lstat(entry.OriginalPath); err == nil {
		return "", fmt.Errorf("restore target already occupied: %s", entry.OriginalPath)
	}

	if err := os.MkdirAll(filepath.Dir(entry.OriginalPath), 0755); err != nil {
		return "", &RelocationError{Op: "restore", Path: entry.OriginalPath, Err: err}
	}
	if err := moveFile(entry.QuarantinePath, entry.OriginalPath); err != nil {
		return "", &RelocationError{Op: "restore", Path: entry.QuarantinePath, Err: err}
	}

	// Best effort: drop the sidecar and the now-empty holding directory.
	dir := filepath.Dir(entry.QuarantinePath)
	os.Remove(filepath.Join(dir, metadataName))
	os.Remove(dir)

	if err := m.index.Delete(id); err != nil {
		m.log.Warn("failed to remove quarantine index entry",
			zap.String("id", id),
			zap.Error(err))
	}

	return entry.OriginalPath, nil
}

// List returns all quarantined entries from the index.
func (m *Manager) List() ([]Entry, error) {
	if m.index == nil {
		return nil, ErrIndexClosed
	}
	return m.index.List()
}

// Close releases the index.
func (m *Manager) Close() error {
	if m.index == nil {
		return nil
	}
	return m.index.Close()
}

// makeHoldingDir creates <root>/<YYYYMMDD_HHMMSS_microseconds>. A numeric
// suffix covers same-microsecond collisions between workers.
func (m *Manager) makeHoldingDir(now time.Time) (string, error) {
	stamp := fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)

	dir := filepath.Join(m.root, stamp)
	err := os.Mkdir(dir, 0755)
	for n := 1; errors.Is(err, fs.ErrExist); n++ {
		dir = filepath.Join(m.root, fmt.Sprintf("%s_%d", stamp, n))
		err = os.Mkdir(dir, 0755)
	}
	if err != nil {
		return "", err
	}
	return dir, nil
}

func (m *Manager) writeMetadata(dir string, det record.Detection, entry *Entry) error {
	meta := Metadata{
		Detection:      det,
		QuarantineID:   entry.ID,
		QuarantinePath: entry.QuarantinePath,
		QuarantinedAt:  entry.RecordedAt,
		KeptOriginal:   m.keepOriginal,
	}

	buf, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metadataName), buf, 0644)
}

// moveFile renames src to dst, falling back to copy+delete for
// cross-device moves.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove original after copy: %w", err)
	}
	return nil
}

// copyFile copies src to dst preserving the file mode. A partially
// written destination is removed on failure.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	if info, err := os.Stat(src); err == nil {
		os.Chmod(dst, info.Mode())
	}
	return nil
}

// Package lockfile guards a loom database against concurrent writers with
// an advisory flock. The server holds the lock for its lifetime; CLI
// mutations take it briefly and report the holding process when refused.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrBusy is returned when another process holds the lock.
var ErrBusy = errors.New("lock held by another process")

const pollInterval = 50 * time.Millisecond

// Info identifies the process holding a lock. It is written into the lock
// file so a refused caller can say who is in the way.
type Info struct {
	PID       int       `json:"pid"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
}

// Lock is a held advisory lock. Release is idempotent.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive advisory lock on path, creating the file and
// its directory as needed. With a zero timeout it tries once; otherwise it
// polls until the deadline. The holder info is written into the file on
// success. Returns ErrBusy (wrapped) when the lock stays held.
func Acquire(path string, info Info, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G304 -- path derives from the configured db path
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := flockExclusiveNonBlock(f)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrBusy) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if !time.Now().Add(pollInterval).Before(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%s: %w", path, ErrBusy)
		}
		time.Sleep(pollInterval)
	}

	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}
	if err := writeInfo(f, &info); err != nil {
		_ = flockUnlock(f)
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and closes the file. The lock file itself stays
// behind; flock state, not file existence, is what arbitrates.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = flockUnlock(l.file)
	_ = l.file.Close()
	l.file = nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

func writeInfo(f *os.File, info *Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode lock info: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	return f.Sync()
}

// ReadInfo reports who wrote the lock file last. Callers use it after an
// ErrBusy to name the running process; a missing file returns ErrNotExist.
func ReadInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path derives from the configured db path
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unreadable lock info in %s: %w", path, err)
	}
	return &info, nil
}

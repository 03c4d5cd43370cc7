package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const logFileName = "wal.log"

// fileManager owns the lifecycle of the single WAL file under a directory:
// opening an existing log on recovery, creating a fresh one, rotating to a
// new empty file once the engine has durably flushed the memtable that log
// covers, and removing it on close. It is the adapted descendant of the
// teacher's segment manager, narrowed from a multi-segment, size-triggered
// rotation scheme to the single-file, flush-triggered one the WAL needs.
type fileManager struct {
	mu     sync.Mutex
	dir    string
	active *os.File
}

func openFileManager(dir string) (*fileManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create directory: %w", err)
	}

	fm := &fileManager{dir: dir}

	f, err := os.OpenFile(fm.path(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open log file: %w", err)
	}
	fm.active = f

	return fm, nil
}

func (fm *fileManager) path() string {
	return filepath.Join(fm.dir, logFileName)
}

// reader opens an independent read-only handle positioned at the start of
// the current log, for replay.
func (fm *fileManager) reader() (*os.File, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return os.Open(fm.path())
}

func (fm *fileManager) write(fn func(f *os.File) error) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.active == nil {
		return ErrWALClosed
	}
	if err := fn(fm.active); err != nil {
		return err
	}
	return fm.active.Sync()
}

// rotate closes and removes the current log file, then opens a fresh,
// empty one in its place. Reached through Writer.Rotate; the engine's
// flush handoff does not use it.
func (fm *fileManager) rotate() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.active != nil {
		if err := fm.active.Close(); err != nil {
			return fmt.Errorf("wal: close log for rotation: %w", err)
		}
	}
	if err := os.Remove(fm.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wal: remove log for rotation: %w", err)
	}

	f, err := os.OpenFile(fm.path(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: reopen log after rotation: %w", err)
	}
	fm.active = f

	return nil
}

// close closes the log file without removing it, leaving it on disk for
// a future recovery replay. Used for a graceful process shutdown, as
// opposed to closeAndRemove's post-flush cleanup.
func (fm *fileManager) close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.active == nil {
		return nil
	}
	err := fm.active.Close()
	fm.active = nil
	if err != nil {
		return fmt.Errorf("wal: close log: %w", err)
	}
	return nil
}

// closeAndRemove closes and deletes the log file. Called only after the
// engine has durably flushed everything the log covers.
func (fm *fileManager) closeAndRemove() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.active == nil {
		return nil
	}

	path := fm.active.Name()
	if err := fm.active.Close(); err != nil {
		return fmt.Errorf("wal: close log: %w", err)
	}
	fm.active = nil

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wal: remove log: %w", err)
	}

	return nil
}

package wal

import (
	"errors"
	"io"
	"os"
	"sync"
)

// ErrWALClosed is returned by Append* calls made after Close, and by any
// call still waiting in the request queue when Close drains it.
var ErrWALClosed = errors.New("wal: closed")

type request struct {
	entry *Entry
	done  chan error
}

// Writer serializes appends onto a single WAL file through one background
// goroutine, mirroring the teacher's channel-backed WALWriter: callers
// block on a per-request result channel until the entry has been encoded
// and synced, which is what "durable" means for this module (§9).
type Writer struct {
	mu     sync.Mutex
	ch     chan *request
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup

	fm *fileManager
}

// defaultQueueDepth bounds how many in-flight appends may queue before
// AppendInsert/AppendRemove block the caller; it has no effect on durability, only on how
// much concurrent submission the writer goroutine can absorb.
const defaultQueueDepth = 64

// Open opens (or creates) the WAL file under dir and starts the writer
// loop. Any entries already present can be replayed with Replay before
// further appends are made.
func Open(dir string) (*Writer, error) {
	fm, err := openFileManager(dir)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		ch:   make(chan *request, defaultQueueDepth),
		done: make(chan struct{}),
		fm:   fm,
	}

	go w.loop()

	return w, nil
}

// AppendInsert durably records Insert(key, value) and returns once it has
// been synced to the OS.
func (w *Writer) AppendInsert(key, value []byte) error {
	return w.append(&Entry{Tag: TagInsert, Key: key, Value: value})
}

// AppendRemove durably records Remove(key) and returns once it has been
// synced to the OS.
func (w *Writer) AppendRemove(key []byte) error {
	return w.append(&Entry{Tag: TagRemove, Key: key})
}

func (w *Writer) append(e *Entry) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWALClosed
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	req := &request{entry: e, done: make(chan error, 1)}

	select {
	case w.ch <- req:
		return <-req.done
	case <-w.done:
		return ErrWALClosed
	}
}

func (w *Writer) loop() {
	for req := range w.ch {
		err := w.fm.write(func(f *os.File) error {
			return Encode(f, req.entry)
		})
		req.done <- err
	}
}

// Replay reads every entry currently on disk, in write order, calling fn
// for each. It is used once at startup, before any Append call, to
// reconstruct the memtable. A decoding error (*CorruptionError) stops
// iteration and Replay returns nil: entries already delivered to fn are
// preserved, everything after the failure point is treated as a crash
// mid-append and discarded (§7). An error returned by fn, or any other
// read error, is returned to the caller.
func (w *Writer) Replay(fn func(*Entry) error) error {
	f, err := w.fm.reader()
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		entry, err := Decode(f)
		if err == nil {
			if ferr := fn(entry); ferr != nil {
				return ferr
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		var corrupt *CorruptionError
		if errors.As(err, &corrupt) {
			return nil
		}
		return err
	}
}

// Rotate replaces the current log file with a fresh, empty one. The
// engine does not call it; it gives each memtable generation its own
// WAL directory and closes the old Writer instead.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fm.rotate()
}

// Close stops accepting new appends, waits for in-flight ones to finish,
// then closes and removes the backing file. Per spec this is called only
// after the engine has durably flushed everything the log covers.
func (w *Writer) Close() error {
	return w.shutdown(true)
}

// Shutdown stops accepting new appends and waits for in-flight ones to
// finish, like Close, but leaves the backing file on disk so a future
// process restart can replay it. Used for a graceful engine shutdown
// of a WAL generation that has not yet been flushed.
func (w *Writer) Shutdown() error {
	return w.shutdown(false)
}

func (w *Writer) shutdown(remove bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	close(w.ch)

	if remove {
		return w.fm.closeAndRemove()
	}
	return w.fm.close()
}

// Package engine binds the write-ahead log, memtable, level table and
// compaction into the public key/value API: Open, Get, Insert, Update,
// Delete, Compact.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/emberkv/emberkv/level"
	"github.com/emberkv/emberkv/memtable"
	"github.com/emberkv/emberkv/sstable"
	"github.com/emberkv/emberkv/wal"
)

// ErrInvariant reports an internal invariant violation: state the
// engine should never reach if every component above it behaved.
var ErrInvariant = errors.New("engine: invariant violation")

// Engine is the embeddable storage engine: one logical writer, many
// concurrent readers, and a background worker that flushes and
// compacts without blocking either.
type Engine struct {
	cfg Config

	activeMu  sync.RWMutex
	active    *memtable.Table
	activeWAL *wal.Writer

	frozenMu  sync.RWMutex
	frozen    *memtable.Table
	frozenWAL *wal.Writer

	levels [LevelCount]*level.Set

	work chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

func levelDir(basePath string, i int) string {
	return filepath.Join(basePath, fmt.Sprintf("level-%d", i))
}

func walRootDir(basePath string) string {
	return filepath.Join(basePath, "wal")
}

// Open creates level directories if missing, loads every present
// SSTable (validating checksums), replays the WAL into a fresh
// memtable, and starts the background flush/compaction worker (§4.7).
func Open(basePath string, opts ...Option) (*Engine, error) {
	cfg := newConfig(basePath, opts...)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create base path %s: %w", cfg.BasePath, err)
	}
	if err := os.MkdirAll(walRootDir(cfg.BasePath), 0o755); err != nil {
		return nil, fmt.Errorf("engine: create wal dir: %w", err)
	}

	e := &Engine{
		cfg:  cfg,
		work: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}

	for i := 0; i < LevelCount; i++ {
		dir := levelDir(cfg.BasePath, i)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("engine: create %s: %w", dir, err)
		}
		set, err := loadLevel(dir, cfg.ReadHandlePoolSize)
		if err != nil {
			return nil, err
		}
		e.levels[i] = set
	}

	if err := e.recoverWAL(); err != nil {
		return nil, err
	}

	e.wg.Add(1)
	go e.backgroundLoop()

	return e, nil
}

func loadLevel(dir string, poolSize int) (*level.Set, error) {
	set := level.New()

	matches, err := filepath.Glob(filepath.Join(dir, "metadata_*.db"))
	if err != nil {
		return nil, fmt.Errorf("engine: list %s: %w", dir, err)
	}

	for _, path := range matches {
		r, err := sstable.Load(path, poolSize)
		if err != nil {
			return nil, fmt.Errorf("engine: load sstable %s: %w", path, err)
		}
		set.Add(r)
	}

	return set, nil
}

// recoverWAL discovers WAL generation directories under base/wal,
// replays and flushes any stale frozen generation left behind by a
// crash between freeze and flush completion, then replays the most
// recent generation into a fresh active memtable, opening a new
// generation if none exists yet.
func (e *Engine) recoverWAL() error {
	root := walRootDir(e.cfg.BasePath)

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("engine: list %s: %w", root, err)
	}

	var generations []uint64
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(ent.Name(), 10, 64)
		if err != nil {
			continue
		}
		generations = append(generations, id)
	}
	sort.Slice(generations, func(i, j int) bool { return generations[i] < generations[j] })

	// Every generation but the last belongs to a frozen memtable whose
	// flush never completed before a crash; replay and flush each one
	// synchronously before serving traffic.
	staleCount := len(generations) - 1
	if staleCount < 0 {
		staleCount = 0
	}
	for _, id := range generations[:staleCount] {
		dir := filepath.Join(root, strconv.FormatUint(id, 10))
		w, err := wal.Open(dir)
		if err != nil {
			return fmt.Errorf("engine: reopen stale wal %s: %w", dir, err)
		}
		table, err := memtable.FromWAL(w)
		if err != nil {
			return fmt.Errorf("engine: replay stale wal %s: %w", dir, err)
		}
		meta, err := e.flushTable(table)
		if err != nil {
			return fmt.Errorf("engine: recover stale wal %s: %w", dir, err)
		}
		reader, err := sstable.Load(metadataPathFor(meta), e.cfg.ReadHandlePoolSize)
		if err != nil {
			return fmt.Errorf("engine: load recovered table for %s: %w", dir, err)
		}
		e.levels[0].Add(reader)
		if err := w.Close(); err != nil {
			return fmt.Errorf("engine: remove stale wal %s: %w", dir, err)
		}
	}

	if len(generations) == 0 {
		return e.openFreshGeneration()
	}

	last := generations[len(generations)-1]
	dir := filepath.Join(root, strconv.FormatUint(last, 10))
	w, err := wal.Open(dir)
	if err != nil {
		return fmt.Errorf("engine: reopen active wal %s: %w", dir, err)
	}
	table, err := memtable.FromWAL(w)
	if err != nil {
		return fmt.Errorf("engine: replay active wal %s: %w", dir, err)
	}

	e.active = table
	e.activeWAL = w
	return nil
}

func (e *Engine) openFreshGeneration() error {
	id := sstable.NewID()
	dir := filepath.Join(walRootDir(e.cfg.BasePath), strconv.FormatUint(id, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("engine: create wal generation %s: %w", dir, err)
	}

	w, err := wal.Open(dir)
	if err != nil {
		return err
	}

	e.active = memtable.New()
	e.activeWAL = w
	return nil
}

// Get looks up key, consulting the active memtable, the frozen
// memtable (if any), then every level from 0 to L-1 (§4.7).
func (e *Engine) Get(key []byte) (value []byte, found bool, err error) {
	e.activeMu.RLock()
	if v, tomb, ok := e.active.Get(key); ok {
		e.activeMu.RUnlock()
		if tomb {
			return nil, false, nil
		}
		return v, true, nil
	}
	e.activeMu.RUnlock()

	e.frozenMu.RLock()
	if e.frozen != nil {
		if v, tomb, ok := e.frozen.Get(key); ok {
			e.frozenMu.RUnlock()
			if tomb {
				return nil, false, nil
			}
			return v, true, nil
		}
	}
	e.frozenMu.RUnlock()

	for i := 0; i < LevelCount; i++ {
		for _, r := range e.levels[i].Snapshot() {
			v, tomb, ok, err := r.Get(key)
			if err != nil {
				return nil, false, fmt.Errorf("engine: read level %d table %d: %w", i, r.ID(), err)
			}
			if ok {
				if tomb {
					return nil, false, nil
				}
				return v, true, nil
			}
		}
	}

	return nil, false, nil
}

// Insert stores key/value, first appending to the WAL then applying to
// the active memtable (§4.7).
func (e *Engine) Insert(key, value []byte) error {
	return e.write(key, value, false)
}

// Update is a synonym for Insert (§4.7).
func (e *Engine) Update(key, value []byte) error {
	return e.Insert(key, value)
}

// Delete appends a Remove record to the WAL then stores a tombstone in
// the active memtable (§4.7).
func (e *Engine) Delete(key []byte) error {
	return e.write(key, nil, true)
}

func (e *Engine) write(key, value []byte, isTombstone bool) error {
	e.activeMu.Lock()

	if isTombstone {
		if err := e.activeWAL.AppendRemove(key); err != nil {
			e.activeMu.Unlock()
			return fmt.Errorf("engine: wal append: %w", err)
		}
		e.active.Remove(key)
	} else {
		if err := e.activeWAL.AppendInsert(key, value); err != nil {
			e.activeMu.Unlock()
			return fmt.Errorf("engine: wal append: %w", err)
		}
		e.active.Insert(key, value)
	}

	needsFreeze := e.active.SizeBytes() > e.cfg.MemtableLimitBytes
	e.activeMu.Unlock()

	if needsFreeze {
		if err := e.tryFreeze(); err != nil {
			return err
		}
	}

	return nil
}

// tryFreeze moves the active memtable into the frozen slot and installs
// a fresh one, provided no freeze is already in flight, then wakes the
// background worker (§4.7 flush handoff).
func (e *Engine) tryFreeze() error {
	e.frozenMu.Lock()
	if e.frozen != nil {
		e.frozenMu.Unlock()
		return nil
	}

	e.activeMu.Lock()
	if e.active.SizeBytes() <= e.cfg.MemtableLimitBytes {
		e.activeMu.Unlock()
		e.frozenMu.Unlock()
		return nil
	}

	e.frozen = e.active
	e.frozenWAL = e.activeWAL

	if err := e.openFreshGeneration(); err != nil {
		e.activeMu.Unlock()
		e.frozenMu.Unlock()
		return err
	}
	e.activeMu.Unlock()
	e.frozenMu.Unlock()

	e.notifyWorker()
	return nil
}

func (e *Engine) notifyWorker() {
	select {
	case e.work <- struct{}{}:
	default:
	}
}

// Compact runs one pass of level-overflow compaction outside the
// background worker's own schedule, for callers that want it
// synchronous (§4.7).
func (e *Engine) Compact() error {
	return e.compactOverflowingLevels()
}

// Close stops the background worker and shuts down the active (and, if
// a flush is in flight, frozen) WAL without deleting their files, so a
// future Open replays whatever was not yet flushed.
func (e *Engine) Close() error {
	close(e.stop)
	e.wg.Wait()

	e.activeMu.Lock()
	err := e.activeWAL.Shutdown()
	e.activeMu.Unlock()

	e.frozenMu.Lock()
	if e.frozenWAL != nil {
		if ferr := e.frozenWAL.Shutdown(); ferr != nil && err == nil {
			err = ferr
		}
	}
	e.frozenMu.Unlock()

	return err
}

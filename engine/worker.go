package engine

import (
	"fmt"
	"time"

	"github.com/emberkv/emberkv/compaction"
	"github.com/emberkv/emberkv/memtable"
	"github.com/emberkv/emberkv/sstable"
)

// idleTick is how often the background worker wakes up even without an
// explicit notification, so a compaction overflow created by recovery
// (rather than a live write) is still picked up.
const idleTick = 200 * time.Millisecond

// backgroundLoop drains flush and compaction work. A panic here is
// recovered and logged rather than propagated (§4.7, §5 failure
// isolation); the level state it was working on is left exactly as it
// was before the panic, since every mutation to shared state happens
// only after the corresponding I/O has already succeeded.
func (e *Engine) backgroundLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(idleTick)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-e.work:
			e.runPassRecovered()
		case <-ticker.C:
			e.runPassRecovered()
		}
	}
}

func (e *Engine) runPassRecovered() {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error().Interface("panic", r).Msg("background worker pass recovered from panic")
		}
	}()

	if err := e.flushFrozenIfAny(); err != nil {
		e.cfg.Logger.Error().Err(err).Msg("flush pass failed, frozen memtable retained for retry")
		return
	}

	if err := e.compactOverflowingLevels(); err != nil {
		e.cfg.Logger.Error().Err(err).Msg("compaction pass failed, level state left untouched")
	}
}

func (e *Engine) flushFrozenIfAny() error {
	e.frozenMu.RLock()
	table := e.frozen
	e.frozenMu.RUnlock()

	if table == nil {
		return nil
	}

	meta, err := e.flushTable(table)
	if err != nil {
		return err
	}

	reader, err := sstable.Load(metadataPathFor(meta), e.cfg.ReadHandlePoolSize)
	if err != nil {
		return err
	}
	e.levels[0].Add(reader)

	e.frozenMu.Lock()
	frozenWAL := e.frozenWAL
	e.frozen = nil
	e.frozenWAL = nil
	e.frozenMu.Unlock()

	if frozenWAL != nil {
		if err := frozenWAL.Close(); err != nil {
			return fmt.Errorf("engine: close flushed wal: %w", err)
		}
	}

	return nil
}

func metadataPathFor(m sstable.Metadata) string {
	return m.BasePath + "/metadata_" + sstable.FormatID(m.ID) + ".db"
}

// flushTable serializes table to a new level-0 SSTable and returns its
// metadata. It does not touch level or WAL state, so it is also used
// directly during crash recovery of a stale frozen generation.
func (e *Engine) flushTable(table *memtable.Table) (sstable.Metadata, error) {
	dir := levelDir(e.cfg.BasePath, 0)
	id := sstable.NewID()

	w, err := sstable.New(dir, id, 0, sstable.BloomSizeHint{Entries: table.SizeEntries()})
	if err != nil {
		return sstable.Metadata{}, err
	}

	for rec := range table.Iter() {
		if err := w.Append(rec.Key, rec.Value, rec.IsTombstone); err != nil {
			_ = w.Abort()
			return sstable.Metadata{}, err
		}
	}

	return w.Seal()
}

// compactOverflowingLevels runs merge rounds for every level at or
// above the configured table-count limit, cascading into the next
// level until no level remains over the limit (§4.6).
func (e *Engine) compactOverflowingLevels() error {
	for i := 0; i < LevelCount-1; i++ {
		for e.levels[i].Len() >= e.cfg.SstableLevelLimit {
			if err := e.compactLevel(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) compactLevel(i int) error {
	inputs := e.levels[i].Snapshot()
	if len(inputs) == 0 {
		return nil
	}

	outputLevel := i + 1
	isLastLevel := outputLevel == LevelCount-1

	deeperContains := func(key []byte) (bool, error) {
		for lvl := outputLevel + 1; lvl < LevelCount; lvl++ {
			for _, r := range e.levels[lvl].Snapshot() {
				_, _, found, err := r.Get(key)
				if err != nil {
					return false, err
				}
				if found {
					return true, nil
				}
			}
		}
		return false, nil
	}

	result, err := compaction.Run(levelDir(e.cfg.BasePath, outputLevel), sstable.NewID(), outputLevel, inputs, isLastLevel, deeperContains)
	if err != nil {
		return err
	}

	reader, err := sstable.Load(metadataPathFor(result.Metadata), e.cfg.ReadHandlePoolSize)
	if err != nil {
		return err
	}

	e.levels[i].ReplaceConsumed(inputs)
	e.levels[outputLevel].Add(reader)

	for _, consumed := range inputs {
		meta := consumed.Metadata()
		if err := consumed.Close(); err != nil {
			return fmt.Errorf("engine: close consumed table %d: %w", consumed.ID(), err)
		}
		if err := sstable.RemoveFiles(meta); err != nil {
			return fmt.Errorf("engine: remove consumed table %d: %w", consumed.ID(), err)
		}
	}

	return nil
}

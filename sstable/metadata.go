package sstable

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Metadata is the self-describing descriptor that names the four
// sibling files belonging to one SSTable and the level it lives in. Its
// presence in a level directory is the commit marker for the whole
// table (§4.4): a reader that can open metadata_<id>.db considers the
// table fully written.
type Metadata struct {
	BasePath        string `json:"base_path"`
	ID              uint64 `json:"id"`
	Level           int    `json:"level"`
	DataFilename    string `json:"data_filename"`
	IndexFilename   string `json:"index_filename"`
	BloomFilename   string `json:"bloom_filename"`
	ChecksumFilename string `json:"checksum_filename"`
}

func filenames(id uint64) (data, index, bloom, checksum string) {
	s := FormatID(id)
	return "data_" + s + ".db", "index_" + s + ".db", "bloom_" + s + ".db", "checksum_" + s + ".db"
}

// NewMetadata builds the descriptor for a table with the given id and
// level, rooted at dir (one level directory under base_path).
func NewMetadata(dir string, id uint64, level int) Metadata {
	data, index, bloom, checksum := filenames(id)
	return Metadata{
		BasePath:         dir,
		ID:               id,
		Level:            level,
		DataFilename:     data,
		IndexFilename:    index,
		BloomFilename:    bloom,
		ChecksumFilename: checksum,
	}
}

func (m Metadata) dataPath() string     { return filepath.Join(m.BasePath, m.DataFilename) }
func (m Metadata) indexPath() string    { return filepath.Join(m.BasePath, m.IndexFilename) }
func (m Metadata) bloomPath() string    { return filepath.Join(m.BasePath, m.BloomFilename) }
func (m Metadata) checksumPath() string { return filepath.Join(m.BasePath, m.ChecksumFilename) }
func (m Metadata) metadataPath() string { return filepath.Join(m.BasePath, "metadata_"+FormatID(m.ID)+".db") }

// DataPath returns the path to the table's data file, used by
// compaction to size a merge output's Bloom filter from total input
// bytes (§4.4).
func (m Metadata) DataPath() string { return m.dataPath() }

// SaveMetadata writes m as JSON to its own metadata_<id>.db file. This
// must be the last file written when sealing a table (§4.4).
func SaveMetadata(m Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("sstable: marshal metadata for id %d: %w", m.ID, err)
	}

	path := m.metadataPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sstable: write %s: %w", path, err)
	}
	return nil
}

// LoadMetadata reads and parses a metadata_<id>.db file.
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("sstable: read %s: %w", path, err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("sstable: unmarshal %s: %w", path, err)
	}
	return m, nil
}

// RemoveFiles deletes all five files belonging to m. Used after a
// compaction input has been fully consumed (§4.6 step 8).
func RemoveFiles(m Metadata) error {
	for _, p := range []string{m.dataPath(), m.indexPath(), m.bloomPath(), m.checksumPath(), m.metadataPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sstable: remove %s: %w", p, err)
		}
	}
	return nil
}

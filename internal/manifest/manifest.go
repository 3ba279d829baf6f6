package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"garnet/internal/block_cache"
	"garnet/internal/common"
	"garnet/internal/sstable"
)

// FileMetadata tracks metadata for a single SSTable file.
type FileMetadata struct {
	FileNo      common.FileNo
	SmallestKey []byte
	LargestKey  []byte
	EntryCount  uint64
	Size        uint64
}

// Version represents an immutable snapshot of the LSM tree structure.
// Readers take the pointer once and see a consistent view for the whole
// lookup, even while compaction installs new versions.
type Version struct {
	// Current WAL being written
	CurrentWAL common.FileNo

	// Levels[0] = L0 tables, Levels[1] = L1 tables, etc.
	Levels [][]FileMetadata

	// Next file number to allocate for new WAL
	NextWALNumber common.FileNo

	// Next file number to allocate for new SSTable
	NextSSTableNumber common.FileNo
}

// Manifest tracks the structural state of the LSM tree with snapshot
// isolation, and owns the shared table and block caches.
type Manifest struct {
	mu sync.RWMutex

	paths *common.PathManager

	// Current version (latest state)
	current *Version

	// Table cache: shared pool of open SSTable handles
	tableCache map[common.FileNo]sstable.SSTable

	// Block cache: shared across all SSTables
	blockCache block_cache.BlockCache
}

// NewManifest creates a new manifest rooted at the data directory described
// by paths, with the given number of levels.
func NewManifest(paths *common.PathManager, numLevels int) *Manifest {
	return &Manifest{
		paths: paths,
		current: &Version{
			Levels: make([][]FileMetadata, numLevels),
		},
		tableCache: make(map[common.FileNo]sstable.SSTable),
		blockCache: block_cache.NewBlockCache(),
	}
}

// Current returns a snapshot of the current version for reading.
func (m *Manifest) Current() *Version {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LoadVersion replaces the current version with the provided one (used during recovery).
func (m *Manifest) LoadVersion(v *Version) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = v
}

// SetWAL sets the current WAL and bumps NextWALNumber past it.
func (m *Manifest) SetWAL(num common.FileNo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newVersion := m.deepCopy(m.current)
	newVersion.CurrentWAL = num
	if num >= newVersion.NextWALNumber {
		newVersion.NextWALNumber = num + 1
	}
	m.current = newVersion
}

// AllocWALNumber reserves and returns the next WAL file number.
func (m *Manifest) AllocWALNumber() common.FileNo {
	m.mu.Lock()
	defer m.mu.Unlock()

	newVersion := m.deepCopy(m.current)
	num := newVersion.NextWALNumber
	newVersion.NextWALNumber = num + 1
	m.current = newVersion
	return num
}

// AllocSSTableNumber reserves and returns the next SSTable file number.
// Keeps concurrent flush and compaction from writing to the same path.
func (m *Manifest) AllocSSTableNumber() common.FileNo {
	m.mu.Lock()
	defer m.mu.Unlock()

	newVersion := m.deepCopy(m.current)
	num := newVersion.NextSSTableNumber
	newVersion.NextSSTableNumber = num + 1
	m.current = newVersion
	return num
}

// CompactionEdit describes an atomic change to the manifest.
type CompactionEdit struct {
	// SSTables to add/remove per level
	AddSSTables    map[int][]FileMetadata
	DeleteSSTables map[int]map[common.FileNo]struct{}
}

// Apply atomically applies a compaction edit, creating a new version.
func (m *Manifest) Apply(edit *CompactionEdit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newVersion := m.deepCopy(m.current)

	for level, deleteSet := range edit.DeleteSSTables {
		filtered := make([]FileMetadata, 0, len(newVersion.Levels[level]))
		for _, fm := range newVersion.Levels[level] {
			if _, deleted := deleteSet[fm.FileNo]; !deleted {
				filtered = append(filtered, fm)
			}
		}
		newVersion.Levels[level] = filtered
	}

	var maxSSTable common.FileNo
	for level, addList := range edit.AddSSTables {
		newVersion.Levels[level] = append(newVersion.Levels[level], addList...)
		for _, fm := range addList {
			if fm.FileNo > maxSSTable {
				maxSSTable = fm.FileNo
			}
		}
	}
	if maxSSTable >= newVersion.NextSSTableNumber {
		newVersion.NextSSTableNumber = maxSSTable + 1
	}

	m.current = newVersion
}

func (m *Manifest) deepCopy(v *Version) *Version {
	newVersion := &Version{
		CurrentWAL:        v.CurrentWAL,
		Levels:            make([][]FileMetadata, len(v.Levels)),
		NextWALNumber:     v.NextWALNumber,
		NextSSTableNumber: v.NextSSTableNumber,
	}
	for i := range v.Levels {
		newVersion.Levels[i] = make([]FileMetadata, len(v.Levels[i]))
		copy(newVersion.Levels[i], v.Levels[i])
	}
	return newVersion
}

// GetTable returns the SSTable for the given file number, opening it if not cached.
func (m *Manifest) GetTable(fileNo common.FileNo, level int) (sstable.SSTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if table, ok := m.tableCache[fileNo]; ok {
		return table, nil
	}

	path := m.paths.SSTablePath(level, fileNo)
	table, err := sstable.Open(path, fileNo, m.blockCache)
	if err != nil {
		return nil, err
	}

	m.tableCache[fileNo] = table
	return table, nil
}

// CloseTable drops the cached handle for fileNo. Called before the backing
// file is deleted by compaction.
func (m *Manifest) CloseTable(fileNo common.FileNo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.tableCache[fileNo]
	if !ok {
		return nil
	}
	delete(m.tableCache, fileNo)
	return table.Close()
}

// CloseAll releases every cached SSTable handle. Called on shutdown.
func (m *Manifest) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for fileNo, table := range m.tableCache {
		if err := table.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.tableCache, fileNo)
	}
	return firstErr
}

// WriteManifest serializes a Version to JSON.
func WriteManifest(w io.Writer, v *Version) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// ReadManifest deserializes a Version from JSON.
func ReadManifest(r io.Reader) (*Version, error) {
	var v Version
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: invalid manifest: %v", common.ErrCorruption, err)
	}
	return &v, nil
}

// Load reads the MANIFEST file from the data directory. Returns
// os.ErrNotExist if no manifest has been written yet.
func Load(paths *common.PathManager) (*Version, error) {
	f, err := os.Open(paths.ManifestPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadManifest(f)
}

// Flush atomically writes the current version to the MANIFEST file.
func (m *Manifest) Flush() error {
	m.mu.RLock()
	v := m.current
	m.mu.RUnlock()

	// Atomic write: write to temp file in the same directory, then rename.
	manifestPath := m.paths.ManifestPath()
	tmpPath := manifestPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	if err := WriteManifest(f, v); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, manifestPath)
}

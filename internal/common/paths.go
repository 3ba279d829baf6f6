package common

import (
	"fmt"
	"path/filepath"
)

// PathManager resolves file locations under a single database directory.
//
// Layout:
//
//	<root>/MANIFEST
//	<root>/wal/<fileNo>.log
//	<root>/sstable/<level>/<fileNo>.sst
type PathManager struct {
	root string
}

// NewPathManager creates a path manager rooted at dir.
func NewPathManager(dir string) *PathManager {
	return &PathManager{root: filepath.Clean(dir)}
}

// Root returns the database directory.
func (p *PathManager) Root() string {
	return p.root
}

// WALDir returns the directory holding WAL segments.
func (p *PathManager) WALDir() string {
	return filepath.Join(p.root, "wal")
}

// WALPath returns the file path for the WAL segment with the given file number.
func (p *PathManager) WALPath(fileNo FileNo) string {
	return filepath.Join(p.WALDir(), fmt.Sprintf("%d.log", fileNo))
}

// SSTableDir returns the directory holding all SSTable levels.
func (p *PathManager) SSTableDir() string {
	return filepath.Join(p.root, "sstable")
}

// SSTableLevelDir returns the directory for one level.
func (p *PathManager) SSTableLevelDir(level int) string {
	return filepath.Join(p.SSTableDir(), fmt.Sprintf("%d", level))
}

// SSTablePath returns the file path for an SSTable at the given level and
// file number.
func (p *PathManager) SSTablePath(level int, fileNo FileNo) string {
	return filepath.Join(p.SSTableLevelDir(level), fmt.Sprintf("%d.sst", fileNo))
}

// ManifestPath returns the path of the MANIFEST file.
func (p *PathManager) ManifestPath() string {
	return filepath.Join(p.root, "MANIFEST")
}

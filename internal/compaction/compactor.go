package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"garnet/internal/common"
	"garnet/internal/manifest"
	"garnet/internal/sstable"
)

// Config bounds the shape of the level tree.
type Config struct {
	// MaxLevelTables is the per-level table count above which the level is
	// compacted into the next one.
	MaxLevelTables int

	// MaxSSTableLevel is the deepest level index. Tables there are never
	// compacted further.
	MaxSSTableLevel int

	// Interval is how often the background loop checks for work.
	Interval time.Duration
}

// Compactor merges overcrowded levels into the next level down, reclaiming
// space held by overwritten values and deletable tombstones.
type Compactor struct {
	paths  *common.PathManager
	man    *manifest.Manifest
	cfg    Config
	logger *slog.Logger
}

func NewCompactor(paths *common.PathManager, man *manifest.Manifest, cfg Config, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		paths:  paths,
		man:    man,
		cfg:    cfg,
		logger: logger,
	}
}

// Run drives periodic compaction until ctx is cancelled. Intended to run on
// its own goroutine; returns nil on cancellation. A failed attempt is fatal
// only to that attempt: the inputs stay live in the manifest, so the next
// tick simply retries.
func (c *Compactor) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Compact(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("compaction failed", "error", err)
			}
		}
	}
}

// Compact runs compactions until no level exceeds its table budget.
func (c *Compactor) Compact(ctx context.Context) error {
	for {
		worked, err := c.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !worked {
			return nil
		}
	}
}

// RunOnce compacts the shallowest overcrowded level, if any. Returns whether
// a compaction ran.
func (c *Compactor) RunOnce(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	version := c.man.Current()
	for level := 0; level < c.cfg.MaxSSTableLevel && level < len(version.Levels); level++ {
		if len(version.Levels[level]) <= c.cfg.MaxLevelTables {
			continue
		}
		if err := c.compactLevel(level, version); err != nil {
			return false, fmt.Errorf("compact level %d: %w", level, err)
		}
		return true, nil
	}
	return false, nil
}

// inputTable is one table participating in a compaction.
type inputTable struct {
	meta  manifest.FileMetadata
	level int
}

// compactLevel merges every table at level and level+1 into a single new
// table at level+1, then atomically swaps the manifest and deletes the
// inputs.
func (c *Compactor) compactLevel(level int, version *manifest.Version) error {
	target := level + 1

	var inputs []inputTable
	for _, lv := range []int{level, target} {
		for _, fm := range version.Levels[lv] {
			inputs = append(inputs, inputTable{meta: fm, level: lv})
		}
	}
	if len(inputs) == 0 {
		return nil
	}

	var (
		sources        []MergeSource
		totalEntries   int
		maxInputFileNo common.FileNo
	)
	for _, in := range inputs {
		table, err := c.man.GetTable(in.meta.FileNo, in.level)
		if err != nil {
			return err
		}
		sources = append(sources, MergeSource{Iter: table.Iterator(), FileNo: in.meta.FileNo})
		totalEntries += table.Len()
		if in.meta.FileNo > maxInputFileNo {
			maxInputFileNo = in.meta.FileNo
		}
	}

	merged, err := NewMergeIterator(sources, c.canDropTombstones(version, inputs, maxInputFileNo))
	if err != nil {
		return err
	}

	outFileNo := c.man.AllocSSTableNumber()
	outPath := c.paths.SSTablePath(target, outFileNo)
	result, err := sstable.Write(outPath, merged, totalEntries)
	if err != nil {
		return err
	}

	edit := &manifest.CompactionEdit{
		DeleteSSTables: map[int]map[common.FileNo]struct{}{
			level:  {},
			target: {},
		},
	}
	for _, in := range inputs {
		edit.DeleteSSTables[in.level][in.meta.FileNo] = struct{}{}
	}

	if result.EntryCount == 0 {
		// Every entry was a deletable tombstone. Nothing to publish.
		if err := os.Remove(outPath); err != nil {
			return err
		}
	} else {
		edit.AddSSTables = map[int][]manifest.FileMetadata{
			target: {{
				FileNo:      outFileNo,
				SmallestKey: result.SmallestKey,
				LargestKey:  result.LargestKey,
				EntryCount:  result.EntryCount,
				Size:        result.BytesWritten,
			}},
		}
	}

	c.man.Apply(edit)
	if err := c.man.Flush(); err != nil {
		return err
	}

	// Inputs are unreachable from the new version; drop handles and files.
	for _, in := range inputs {
		if err := c.man.CloseTable(in.meta.FileNo); err != nil {
			return err
		}
		if err := os.Remove(c.paths.SSTablePath(in.level, in.meta.FileNo)); err != nil {
			return err
		}
	}

	c.logger.Info("compaction finished",
		"level", level,
		"inputs", len(inputs),
		"output", outPath,
		"entries", result.EntryCount)
	return nil
}

// canDropTombstones reports whether a merge covering the given inputs may
// omit tombstones. A tombstone is only deletable when no table outside the
// compaction could still hold an older value for its key, so it requires
// every outside table to be strictly newer than every input.
func (c *Compactor) canDropTombstones(version *manifest.Version, inputs []inputTable, maxInputFileNo common.FileNo) bool {
	inputSet := make(map[common.FileNo]struct{}, len(inputs))
	for _, in := range inputs {
		inputSet[in.meta.FileNo] = struct{}{}
	}

	for _, lv := range version.Levels {
		for _, fm := range lv {
			if _, ok := inputSet[fm.FileNo]; ok {
				continue
			}
			if fm.FileNo < maxInputFileNo {
				return false
			}
		}
	}
	return true
}

package db

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Options configures a DB instance.
type Options struct {
	// DBPath is the data directory. Created if missing.
	DBPath string

	// MemtableFlushBytes is the approximate in-memory size at which the
	// memtable is flushed to an L0 SSTable.
	MemtableFlushBytes uint64

	// MaxSSTableLevel is the deepest SSTable level index.
	MaxSSTableLevel int

	// MaxLevelTables is the per-level table count above which compaction
	// kicks in.
	MaxLevelTables int

	// MaxBatchSize caps how many writes share one WAL sync.
	MaxBatchSize int

	// CompactionInterval is how often the background compactor looks for work.
	CompactionInterval time.Duration

	// Logger receives operational events. Defaults to slog.Default().
	Logger *slog.Logger
}

var DefaultOptions = Options{
	DBPath:             "data",
	MemtableFlushBytes: 4 << 20,
	MaxSSTableLevel:    3,
	MaxLevelTables:     4,
	MaxBatchSize:       50,
	CompactionInterval: time.Second,
}

type Option func(*Options)

func WithDBPath(path string) Option {
	return func(o *Options) {
		o.DBPath = path
	}
}

func WithMemtableFlushBytes(n uint64) Option {
	return func(o *Options) {
		o.MemtableFlushBytes = n
	}
}

func WithMaxSSTableLevel(n int) Option {
	return func(o *Options) {
		o.MaxSSTableLevel = n
	}
}

func WithMaxLevelTables(n int) Option {
	return func(o *Options) {
		o.MaxLevelTables = n
	}
}

func WithMaxBatchSize(n int) Option {
	return func(o *Options) {
		o.MaxBatchSize = n
	}
}

func WithCompactionInterval(d time.Duration) Option {
	return func(o *Options) {
		o.CompactionInterval = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// optionsFile mirrors Options for YAML configs. Durations are strings in
// time.ParseDuration syntax, e.g. "500ms".
type optionsFile struct {
	DBPath             string `yaml:"db_path"`
	MemtableFlushBytes uint64 `yaml:"memtable_flush_bytes"`
	MaxSSTableLevel    int    `yaml:"max_sstable_level"`
	MaxLevelTables     int    `yaml:"max_level_tables"`
	MaxBatchSize       int    `yaml:"max_batch_size"`
	CompactionInterval string `yaml:"compaction_interval"`
}

// LoadOptions reads a YAML config file and returns DefaultOptions overridden
// by every field the file sets.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}

	var file optionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return opts, fmt.Errorf("db: parse config %s: %w", path, err)
	}

	if file.DBPath != "" {
		opts.DBPath = file.DBPath
	}
	if file.MemtableFlushBytes > 0 {
		opts.MemtableFlushBytes = file.MemtableFlushBytes
	}
	if file.MaxSSTableLevel > 0 {
		opts.MaxSSTableLevel = file.MaxSSTableLevel
	}
	if file.MaxLevelTables > 0 {
		opts.MaxLevelTables = file.MaxLevelTables
	}
	if file.MaxBatchSize > 0 {
		opts.MaxBatchSize = file.MaxBatchSize
	}
	if file.CompactionInterval != "" {
		d, err := time.ParseDuration(file.CompactionInterval)
		if err != nil {
			return opts, fmt.Errorf("db: parse compaction_interval: %w", err)
		}
		opts.CompactionInterval = d
	}

	return opts, nil
}

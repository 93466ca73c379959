// Package config selects and opens the storage system behind the histkv
// command.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ChinmayNoob/histkv/db"
	"github.com/ChinmayNoob/histkv/memtable"
	"github.com/ChinmayNoob/histkv/sqlitestore"
	"github.com/ChinmayNoob/histkv/store"
	"github.com/ChinmayNoob/histkv/storeutil"
)

const (
	BackendMemory = "memory"
	BackendLSM    = "lsm"
	BackendSQLite = "sqlite"
)

var ErrInvalid = fmt.Errorf("%w: invalid config", store.ErrStorage)

// LSMConfig tunes the lsm backend. Zero values keep the engine defaults.
type LSMConfig struct {
	MemtableMaxBytes int  `yaml:"memtable_max_bytes,omitempty"`
	MaxSSTables      int  `yaml:"max_sstables,omitempty"`
	NoSync           bool `yaml:"no_sync,omitempty"` // skip fsync after each wal frame
}

// Merge applies non-zero values from source into c.
func (c *LSMConfig) Merge(source *LSMConfig) {
	if source.MemtableMaxBytes > 0 {
		c.MemtableMaxBytes = source.MemtableMaxBytes
	}
	if source.MaxSSTables > 0 {
		c.MaxSSTables = source.MaxSSTables
	}
	if source.NoSync {
		c.NoSync = true
	}
}

type Config struct {
	Backend   string    `yaml:"backend"`
	Path      string    `yaml:"path,omitempty"`      // lsm directory or sqlite file
	Compress  bool      `yaml:"compress,omitempty"`  // zstd-compress stored values
	Partition string    `yaml:"partition,omitempty"` // confine all stores to one partition
	LogLevel  string    `yaml:"log_level,omitempty"`
	LSM       LSMConfig `yaml:"lsm,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Backend:  BackendLSM,
		Path:     "data",
		LogLevel: "info",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.Compress {
		c.Compress = true
	}
	if source.Partition != "" {
		c.Partition = source.Partition
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	c.LSM.Merge(&source.LSM)
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendLSM, BackendSQLite:
		if c.Path == "" {
			return fmt.Errorf("%w: backend %q needs a path", ErrInvalid, c.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalid, err)
	}
	if c.LSM.MemtableMaxBytes < 0 || c.LSM.MaxSSTables < 0 {
		return fmt.Errorf("%w: negative lsm limits", ErrInvalid)
	}
	return nil
}

// LoadConfig reads a YAML config file and merges it over the defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// NewLogger builds a production logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Encoding = "console"
	return zc.Build()
}

// Open builds the configured storage system. A nil logger disables logging.
func Open(cfg *Config, logger *zap.Logger) (store.StorageSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		sys store.StorageSystem
		err error
	)
	switch cfg.Backend {
	case BackendMemory:
		sys = memtable.NewSystem()
	case BackendLSM:
		opts := db.DefaultOptions()
		opts.Dir = cfg.Path
		opts.Logger = logger.Named("lsm")
		if cfg.LSM.MemtableMaxBytes > 0 {
			opts.MemtableMaxBytes = cfg.LSM.MemtableMaxBytes
		}
		if cfg.LSM.MaxSSTables > 0 {
			opts.MaxSSTables = cfg.LSM.MaxSSTables
		}
		opts.SyncOnWrite = !cfg.LSM.NoSync
		sys, err = db.OpenSystem(opts)
	case BackendSQLite:
		if err = os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err == nil {
			sys, err = sqlitestore.Open(cfg.Path)
		}
	}
	if err != nil {
		return nil, store.Wrap("open backend", err)
	}
	logger.Debug("storage opened",
		zap.String("backend", cfg.Backend),
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.String("partition", cfg.Partition))

	if cfg.Compress {
		sys = storeutil.NewCompressingSystem(sys)
	}
	if cfg.Partition != "" {
		part, err := storeutil.NewPartitionedSystem(sys).Partition(cfg.Partition)
		if err != nil {
			return nil, multierr.Append(err, sys.Close())
		}
		sys = &ownedPartition{StorageSystem: part, parent: sys}
	}
	return sys, nil
}

// ownedPartition closes the parent system along with the partition.
type ownedPartition struct {
	store.StorageSystem
	parent store.StorageSystem
}

func (p *ownedPartition) Close() error {
	return p.parent.Close()
}

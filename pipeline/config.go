/*
	Package pipeline wires the merge core into operator-facing operations:
	pool construction, resumable apply, status reporting, per-block clean,
	and batch planning for externally scheduled runs.
*/
package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/merge"
)

const (
	// DefaultWorkers is used when a stage config leaves workers unset.
	DefaultWorkers = 4

	// DefaultBatchSize is the number of blocks per externally submitted batch.
	DefaultBatchSize = 16
)

// Config is the parsed TOML configuration for a merge pipeline run.
type Config struct {
	Pipeline PipelineConfig `toml:"pipeline"`
	Pools    PoolsConfig    `toml:"pools"`
	Apply    ApplyConfig    `toml:"apply"`
	Logging  kns.LogConfig  `toml:"logging"`
	Store    StoreConfig    `toml:"store"`
}

// PipelineConfig holds paths and sizing shared by all operations.
type PipelineConfig struct {
	// Output is the directory of the global output volume.
	Output string `toml:"output"`

	// CacheSize is the block read cache size in bytes.  Zero uses the default.
	CacheSize int `toml:"cache_size"`

	// BatchSize is the number of blocks per batch when planning externally
	// submitted runs.  Zero uses the default.
	BatchSize int `toml:"batch_size"`
}

// PoolsConfig parameterizes pool construction.  Threshold semantics follow
// the merge package; they are policy, so they live in configuration.
type PoolsConfig struct {
	MinOverlapVoxels uint64  `toml:"min_overlap_vox"`
	MinFracLocal     float64 `toml:"min_frac_local"`
	MinFracNeighbor  float64 `toml:"min_frac_neighbor"`
	MinIoU           float64 `toml:"min_iou"`
	OneToOne         bool    `toml:"one_to_one"`
	Workers          int     `toml:"workers"`
}

// ApplyConfig parameterizes the apply phase.
type ApplyConfig struct {
	Workers int `toml:"workers"`
}

// StoreConfig locates the key-value store backing pool, ledger, and metadata.
type StoreConfig struct {
	Engine string `toml:"engine"`
	Path   string `toml:"path"`
}

// Thresholds converts the pools section into merge thresholds, filling in
// defaults for unset fields.
func (c PoolsConfig) Thresholds() merge.Thresholds {
	t := merge.DefaultThresholds()
	if c.MinOverlapVoxels > 0 {
		t.MinOverlapVoxels = c.MinOverlapVoxels
	}
	if c.MinFracLocal > 0 {
		t.MinFracA = c.MinFracLocal
	}
	if c.MinFracNeighbor > 0 {
		t.MinFracB = c.MinFracNeighbor
	}
	t.MinIoU = c.MinIoU
	t.OneToOne = c.OneToOne
	return t
}

// LoadConfig reads a TOML config file.  Relative paths inside the file are
// resolved against the file's own directory.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config %q: %v", path, err)
	}
	if err := c.convertPathsToAbsolute(path); err != nil {
		return nil, err
	}
	if c.Store.Engine == "" {
		c.Store.Engine = "badger"
	}
	if c.Store.Path == "" {
		return nil, fmt.Errorf("config %q must set [store] path", path)
	}
	if c.Pipeline.Output == "" {
		return nil, fmt.Errorf("config %q must set [pipeline] output", path)
	}
	return &c, nil
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	if c.Store.Path != "" {
		c.Store.Path, err = kns.ConvertToAbsolute(c.Store.Path, configDir)
		if err != nil {
			return fmt.Errorf("error converting store path to absolute path: %v", err)
		}
	}
	if c.Pipeline.Output != "" {
		c.Pipeline.Output, err = kns.ConvertToAbsolute(c.Pipeline.Output, configDir)
		if err != nil {
			return fmt.Errorf("error converting output path to absolute path: %v", err)
		}
	}
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = kns.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path: %v", err)
		}
	}
	return nil
}

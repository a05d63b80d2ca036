package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/voxeldown/internal/pointcloud"
)

const (
	// DefaultVoxelSize is the voxel edge length used when none is configured,
	// in input coordinate units.
	DefaultVoxelSize = 0.01

	// DefaultOutputPath is written in the working directory.
	DefaultOutputPath = "output.csv"

	// DefaultConfigPath is the example configuration shipped with the repo.
	DefaultConfigPath = "config/downsample.defaults.json"
)

// DownsampleConfig holds the options for one downsampling run.
// Nil fields fall back to the defaults returned by the Get* methods, so
// partial configs are safe.
type DownsampleConfig struct {
	VoxelSize   *float64 `json:"voxel_size,omitempty"`
	OutputPath  *string  `json:"output_path,omitempty"`
	RandomSeed  *uint64  `json:"random_seed,omitempty"` // unset: time-derived
	BucketOrder *string  `json:"bucket_order,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyDownsampleConfig returns a config with every field unset.
func EmptyDownsampleConfig() *DownsampleConfig {
	return &DownsampleConfig{}
}

// DefaultDownsampleConfig returns a config with every field set to its default.
// RandomSeed stays unset because its default is time-derived.
func DefaultDownsampleConfig() *DownsampleConfig {
	return &DownsampleConfig{
		VoxelSize:   ptrFloat64(DefaultVoxelSize),
		OutputPath:  ptrString(DefaultOutputPath),
		BucketOrder: ptrString(pointcloud.OrderFirstSeen.String()),
	}
}

// LoadDownsampleConfig loads a DownsampleConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadDownsampleConfig(path string) (*DownsampleConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDownsampleConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}

	return cfg, nil
}

// Validate checks the fields that are set. Violations wrap
// pointcloud.ErrInvalidConfiguration.
func (c *DownsampleConfig) Validate() error {
	if c.VoxelSize != nil {
		v := *c.VoxelSize
		if !(v > 0) || math.IsInf(v, 1) {
			return fmt.Errorf("%w: voxel_size must be positive and finite, got %g", pointcloud.ErrInvalidConfiguration, v)
		}
	}

	if c.OutputPath != nil && *c.OutputPath == "" {
		return fmt.Errorf("%w: output_path must not be empty", pointcloud.ErrInvalidConfiguration)
	}

	if c.BucketOrder != nil {
		if _, err := pointcloud.ParseBucketOrder(*c.BucketOrder); err != nil {
			return err
		}
	}

	return nil
}

// Merge returns a copy of c with every field that is set in override
// replacing the value from c.
func (c *DownsampleConfig) Merge(override *DownsampleConfig) *DownsampleConfig {
	out := *c
	if override == nil {
		return &out
	}
	if override.VoxelSize != nil {
		out.VoxelSize = ptrFloat64(*override.VoxelSize)
	}
	if override.OutputPath != nil {
		out.OutputPath = ptrString(*override.OutputPath)
	}
	if override.RandomSeed != nil {
		out.RandomSeed = ptrUint64(*override.RandomSeed)
	}
	if override.BucketOrder != nil {
		out.BucketOrder = ptrString(*override.BucketOrder)
	}
	return &out
}

// GetVoxelSize returns the voxel_size value or the default.
func (c *DownsampleConfig) GetVoxelSize() float64 {
	if c.VoxelSize == nil {
		return DefaultVoxelSize
	}
	return *c.VoxelSize
}

// GetOutputPath returns the output_path value or the default.
func (c *DownsampleConfig) GetOutputPath() string {
	if c.OutputPath == nil || *c.OutputPath == "" {
		return DefaultOutputPath
	}
	return *c.OutputPath
}

// GetRandomSeed returns the configured seed, or a time-derived one with
// fixed=false when none is set.
func (c *DownsampleConfig) GetRandomSeed() (seed uint64, fixed bool) {
	if c.RandomSeed == nil {
		return pointcloud.TimeSeed(), false
	}
	return *c.RandomSeed, true
}

// GetBucketOrder returns the bucket_order value or first-seen.
// Unknown names also fall back to first-seen; Validate rejects them.
func (c *DownsampleConfig) GetBucketOrder() pointcloud.BucketOrder {
	if c.BucketOrder == nil {
		return pointcloud.OrderFirstSeen
	}
	order, err := pointcloud.ParseBucketOrder(*c.BucketOrder)
	if err != nil {
		return pointcloud.OrderFirstSeen
	}
	return order
}

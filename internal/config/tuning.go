package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/drivegate/internal/monitoring"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for fusion tuning parameters. All
// fields are pointers so a partial JSON file only overrides what it names;
// the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Identity
	CameraName *string `json:"camera_name,omitempty"`

	// Synchronization params
	SyncTimeoutSeconds *float64 `json:"sync_timeout_seconds,omitempty"`
	FusionInterval     *string  `json:"fusion_interval,omitempty"` // duration string like "50ms"

	// Classifier params
	DrivableThreshold    *float64 `json:"drivable_threshold,omitempty"`
	NeighborhoodRadiusPx *int     `json:"neighborhood_radius_px,omitempty"`

	// Output params
	POIForwardBuffer      *int    `json:"poi_forward_buffer,omitempty"`
	VisualiserFrameBuffer *int    `json:"visualiser_frame_buffer,omitempty"`
	StatsLogInterval      *string `json:"stats_log_interval,omitempty"` // duration string like "30s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields nil, meaning every
// accessor returns its built-in default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size. Fields omitted from
// the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDefaultTuning loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parents.
// If the file cannot be found an all-defaults config is returned, so the
// daemon starts with built-in values rather than failing.
func LoadDefaultTuning() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	monitoring.Logf("no %s found, using built-in tuning defaults", DefaultConfigPath)
	return EmptyTuningConfig()
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.SyncTimeoutSeconds != nil {
		if *c.SyncTimeoutSeconds <= 0 {
			return fmt.Errorf("sync_timeout_seconds must be positive, got %f", *c.SyncTimeoutSeconds)
		}
	}

	if c.DrivableThreshold != nil {
		if *c.DrivableThreshold < 0 || *c.DrivableThreshold > 1 {
			return fmt.Errorf("drivable_threshold must be between 0 and 1, got %f", *c.DrivableThreshold)
		}
	}

	if c.NeighborhoodRadiusPx != nil {
		if *c.NeighborhoodRadiusPx < 0 {
			return fmt.Errorf("neighborhood_radius_px must be non-negative, got %d", *c.NeighborhoodRadiusPx)
		}
	}

	if c.FusionInterval != nil && *c.FusionInterval != "" {
		d, err := time.ParseDuration(*c.FusionInterval)
		if err != nil {
			return fmt.Errorf("invalid fusion_interval '%s': %w", *c.FusionInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("fusion_interval must be positive, got %s", d)
		}
	}

	if c.StatsLogInterval != nil && *c.StatsLogInterval != "" {
		if _, err := time.ParseDuration(*c.StatsLogInterval); err != nil {
			return fmt.Errorf("invalid stats_log_interval '%s': %w", *c.StatsLogInterval, err)
		}
	}

	if c.POIForwardBuffer != nil && *c.POIForwardBuffer < 1 {
		return fmt.Errorf("poi_forward_buffer must be at least 1, got %d", *c.POIForwardBuffer)
	}

	if c.VisualiserFrameBuffer != nil && *c.VisualiserFrameBuffer < 1 {
		return fmt.Errorf("visualiser_frame_buffer must be at least 1, got %d", *c.VisualiserFrameBuffer)
	}

	return nil
}

// GetCameraName returns the camera_name value or the default.
func (c *TuningConfig) GetCameraName() string {
	if c.CameraName == nil || *c.CameraName == "" {
		return "front" // default
	}
	return *c.CameraName
}

// GetSyncTolerance returns sync_timeout_seconds as a time.Duration.
func (c *TuningConfig) GetSyncTolerance() time.Duration {
	if c.SyncTimeoutSeconds == nil || *c.SyncTimeoutSeconds <= 0 {
		return 100 * time.Millisecond // default
	}
	return time.Duration(*c.SyncTimeoutSeconds * float64(time.Second))
}

// GetFusionInterval parses and returns the fusion cycle period.
func (c *TuningConfig) GetFusionInterval() time.Duration {
	if c.FusionInterval == nil || *c.FusionInterval == "" {
		return 50 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.FusionInterval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond // default on parse error
	}
	return d
}

// GetDrivableThreshold returns the drivable_threshold value or the default.
func (c *TuningConfig) GetDrivableThreshold() float64 {
	if c.DrivableThreshold == nil {
		return 0.5 // default
	}
	return *c.DrivableThreshold
}

// GetNeighborhoodRadius returns the neighborhood_radius_px value or the default.
func (c *TuningConfig) GetNeighborhoodRadius() int {
	if c.NeighborhoodRadiusPx == nil {
		return 5 // default
	}
	return *c.NeighborhoodRadiusPx
}

// GetPOIForwardBuffer returns the poi_forward_buffer value or the default.
func (c *TuningConfig) GetPOIForwardBuffer() int {
	if c.POIForwardBuffer == nil {
		return 1000
	}
	return *c.POIForwardBuffer
}

// GetVisualiserFrameBuffer returns the visualiser_frame_buffer value or the default.
func (c *TuningConfig) GetVisualiserFrameBuffer() int {
	if c.VisualiserFrameBuffer == nil {
		return 100
	}
	return *c.VisualiserFrameBuffer
}

// GetStatsLogInterval parses and returns the stats logging period.
func (c *TuningConfig) GetStatsLogInterval() time.Duration {
	if c.StatsLogInterval == nil || *c.StatsLogInterval == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsLogInterval)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetCameraName(); got != "front" {
		t.Errorf("GetCameraName() = %q, want front", got)
	}
	if got := cfg.GetSyncTolerance(); got != 100*time.Millisecond {
		t.Errorf("GetSyncTolerance() = %v, want 100ms", got)
	}
	if got := cfg.GetFusionInterval(); got != 50*time.Millisecond {
		t.Errorf("GetFusionInterval() = %v, want 50ms", got)
	}
	if got := cfg.GetDrivableThreshold(); got != 0.5 {
		t.Errorf("GetDrivableThreshold() = %f, want 0.5", got)
	}
	if got := cfg.GetNeighborhoodRadius(); got != 5 {
		t.Errorf("GetNeighborhoodRadius() = %d, want 5", got)
	}
	if got := cfg.GetPOIForwardBuffer(); got != 1000 {
		t.Errorf("GetPOIForwardBuffer() = %d, want 1000", got)
	}
	if got := cfg.GetVisualiserFrameBuffer(); got != 100 {
		t.Errorf("GetVisualiserFrameBuffer() = %d, want 100", got)
	}
	if got := cfg.GetStatsLogInterval(); got != 30*time.Second {
		t.Errorf("GetStatsLogInterval() = %v, want 30s", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "camera_name": "rear",
  "sync_timeout_seconds": 0.25,
  "fusion_interval": "20ms",
  "drivable_threshold": 0.7,
  "neighborhood_radius_px": 3
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	if cfg.GetCameraName() != "rear" {
		t.Errorf("camera_name = %q, want rear", cfg.GetCameraName())
	}
	if got := cfg.GetSyncTolerance(); got != 250*time.Millisecond {
		t.Errorf("sync tolerance = %v, want 250ms", got)
	}
	if got := cfg.GetFusionInterval(); got != 20*time.Millisecond {
		t.Errorf("fusion interval = %v, want 20ms", got)
	}
	if got := cfg.GetDrivableThreshold(); got != 0.7 {
		t.Errorf("drivable threshold = %f, want 0.7", got)
	}
	if got := cfg.GetNeighborhoodRadius(); got != 3 {
		t.Errorf("neighborhood radius = %d, want 3", got)
	}

	// Omitted fields fall through to defaults.
	if got := cfg.GetPOIForwardBuffer(); got != 1000 {
		t.Errorf("poi_forward_buffer default = %d, want 1000", got)
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("camera_name: rear\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestLoadTuningConfigRejectsMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr string
	}{
		{
			name: "valid full config",
			cfg: TuningConfig{
				CameraName:           ptrString("front"),
				SyncTimeoutSeconds:   ptrFloat64(0.1),
				FusionInterval:       ptrString("50ms"),
				DrivableThreshold:    ptrFloat64(0.5),
				NeighborhoodRadiusPx: ptrInt(5),
			},
		},
		{
			name:    "negative sync timeout",
			cfg:     TuningConfig{SyncTimeoutSeconds: ptrFloat64(-0.1)},
			wantErr: "sync_timeout_seconds",
		},
		{
			name:    "threshold above one",
			cfg:     TuningConfig{DrivableThreshold: ptrFloat64(1.5)},
			wantErr: "drivable_threshold",
		},
		{
			name:    "negative radius",
			cfg:     TuningConfig{NeighborhoodRadiusPx: ptrInt(-1)},
			wantErr: "neighborhood_radius_px",
		},
		{
			name:    "unparseable interval",
			cfg:     TuningConfig{FusionInterval: ptrString("fast")},
			wantErr: "fusion_interval",
		},
		{
			name:    "zero interval",
			cfg:     TuningConfig{FusionInterval: ptrString("0s")},
			wantErr: "fusion_interval",
		},
		{
			name:    "zero forward buffer",
			cfg:     TuningConfig{POIForwardBuffer: ptrInt(0)},
			wantErr: "poi_forward_buffer",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadDefaultTuningFallsBack(t *testing.T) {
	// Run from a directory with no defaults file anywhere above it.
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(origDir)

	cfg := LoadDefaultTuning()
	if cfg == nil {
		t.Fatal("LoadDefaultTuning returned nil")
	}
	if got := cfg.GetCameraName(); got != "front" {
		t.Errorf("fallback camera name = %q, want front", got)
	}
}

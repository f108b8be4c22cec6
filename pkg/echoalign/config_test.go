package echoalign

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.SampleRate != 11025 {
		t.Errorf("sample rate = %d, want 11025", cfg.SampleRate)
	}
	if cfg.LongFileThresholdSeconds != 60 {
		t.Errorf("long-file threshold = %v, want 60", cfg.LongFileThresholdSeconds)
	}
	if cfg.ChunkSizeSeconds != 30 || cfg.ChunkOverlapRatio != 0.1 {
		t.Errorf("chunking = %v/%v, want 30/0.1", cfg.ChunkSizeSeconds, cfg.ChunkOverlapRatio)
	}
	if cfg.AnalysisCapSeconds != 300 {
		t.Errorf("analysis cap = %v, want 300", cfg.AnalysisCapSeconds)
	}
	if cfg.HardVerificationCeilingSeconds != 30 {
		t.Errorf("hard ceiling = %v, want 30", cfg.HardVerificationCeilingSeconds)
	}
	if cfg.ProminenceRaw != 2.0 || cfg.ProminenceFeature != 1.5 {
		t.Errorf("prominence thresholds = %v/%v, want 2.0/1.5", cfg.ProminenceRaw, cfg.ProminenceFeature)
	}
	if len(cfg.EnabledMethods) == 0 {
		t.Error("no methods enabled by default")
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []Option{
		WithSampleRate(22050),
		WithMaxOffset(45),
		WithChunking(20, 0.2),
		WithEnabledMethods(model.MethodRawWaveform),
		WithDeviceCount(4),
		WithVerification(3.0, 60),
	} {
		opt(cfg)
	}

	if cfg.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", cfg.SampleRate)
	}
	if cfg.MaxOffsetSeconds != 45 {
		t.Errorf("max offset = %v, want 45", cfg.MaxOffsetSeconds)
	}
	if cfg.ChunkSizeSeconds != 20 || cfg.ChunkOverlapRatio != 0.2 {
		t.Errorf("chunking = %v/%v, want 20/0.2", cfg.ChunkSizeSeconds, cfg.ChunkOverlapRatio)
	}
	if len(cfg.EnabledMethods) != 1 || cfg.EnabledMethods[0] != model.MethodRawWaveform {
		t.Errorf("enabled methods = %v", cfg.EnabledMethods)
	}
	if cfg.DeviceCount != 4 {
		t.Errorf("device count = %d, want 4", cfg.DeviceCount)
	}
	if cfg.VerificationSeverityThreshold != 3.0 || cfg.HardVerificationCeilingSeconds != 60 {
		t.Errorf("verification = %v/%v, want 3.0/60",
			cfg.VerificationSeverityThreshold, cfg.HardVerificationCeilingSeconds)
	}
}

func TestApplyConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echoalign.toml")
	content := `
sample_rate = 16000
max_offset_seconds = 20.0
chunk_size_seconds = 15.0
enabled_methods = ["raw_waveform", "mfcc"]
device_count = 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig()
	if err := applyConfigFile(cfg, path); err != nil {
		t.Fatalf("applyConfigFile failed: %v", err)
	}

	if cfg.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", cfg.SampleRate)
	}
	if cfg.MaxOffsetSeconds != 20 {
		t.Errorf("max offset = %v, want 20", cfg.MaxOffsetSeconds)
	}
	if cfg.ChunkSizeSeconds != 15 {
		t.Errorf("chunk size = %v, want 15", cfg.ChunkSizeSeconds)
	}
	if cfg.DeviceCount != 3 {
		t.Errorf("device count = %d, want 3", cfg.DeviceCount)
	}
	want := []model.Method{model.MethodRawWaveform, model.MethodMFCC}
	if len(cfg.EnabledMethods) != len(want) {
		t.Fatalf("enabled methods = %v, want %v", cfg.EnabledMethods, want)
	}
	for i := range want {
		if cfg.EnabledMethods[i] != want[i] {
			t.Errorf("enabled method %d = %v, want %v", i, cfg.EnabledMethods[i], want[i])
		}
	}

	// Unset fields keep their defaults.
	if cfg.AnalysisCapSeconds != 300 {
		t.Errorf("analysis cap = %v, want untouched 300", cfg.AnalysisCapSeconds)
	}
}

func TestApplyConfigFileUnknownMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte(`enabled_methods = ["chromagram"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := applyConfigFile(defaultConfig(), path); err == nil {
		t.Error("expected error for unknown method name")
	}
}

func TestNewServiceBadConfigFile(t *testing.T) {
	if _, err := NewService(WithConfigFile(filepath.Join(t.TempDir(), "missing.toml"))); err == nil {
		t.Error("expected error for a missing config file")
	}

	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("sample_rate = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewService(WithConfigFile(path)); err == nil {
		t.Error("expected error for malformed TOML")
	}
}

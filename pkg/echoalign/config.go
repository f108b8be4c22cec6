package echoalign

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/sched"
)

// Config holds the recognized analysis options. The numeric defaults were
// empirically tuned; they are configuration, not invariants.
type Config struct {
	SampleRate int
	TempDir    string
	DBPath     string

	MaxOffsetSeconds    float64
	ConfidenceThreshold float64
	RMSConfidenceFloor  float64

	ChunkSizeSeconds         float64
	ChunkOverlapRatio        float64
	LongFileThresholdSeconds float64
	AnalysisCapSeconds       float64
	DriftToleranceSeconds    float64

	EnabledMethods []model.Method
	DeviceCount    int

	VerificationSeverityThreshold  float64
	HardVerificationCeilingSeconds float64

	ProminenceRaw     float64
	ProminenceFeature float64

	Logger   Logger
	Storage  Storage
	Decoder  Decoder
	Embedder EmbeddingProvider
	Prober   sched.Prober

	// fileErr carries a config file error until NewService can report it.
	fileErr error
}

type Option func(*Config)

func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

func WithTempDir(dir string) Option {
	return func(c *Config) { c.TempDir = dir }
}

func WithDBPath(path string) Option {
	return func(c *Config) { c.DBPath = path }
}

func WithMaxOffset(seconds float64) Option {
	return func(c *Config) { c.MaxOffsetSeconds = seconds }
}

func WithConfidenceThreshold(threshold float64) Option {
	return func(c *Config) { c.ConfidenceThreshold = threshold }
}

func WithChunking(sizeSeconds, overlapRatio float64) Option {
	return func(c *Config) {
		c.ChunkSizeSeconds = sizeSeconds
		c.ChunkOverlapRatio = overlapRatio
	}
}

func WithLongFileThreshold(seconds float64) Option {
	return func(c *Config) { c.LongFileThresholdSeconds = seconds }
}

func WithAnalysisCap(seconds float64) Option {
	return func(c *Config) { c.AnalysisCapSeconds = seconds }
}

func WithEnabledMethods(methods ...model.Method) Option {
	return func(c *Config) { c.EnabledMethods = methods }
}

func WithDeviceCount(count int) Option {
	return func(c *Config) { c.DeviceCount = count }
}

func WithVerification(severityThreshold, hardCeilingSeconds float64) Option {
	return func(c *Config) {
		c.VerificationSeverityThreshold = severityThreshold
		c.HardVerificationCeilingSeconds = hardCeilingSeconds
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func WithStorage(storage Storage) Option {
	return func(c *Config) { c.Storage = storage }
}

func WithDecoder(dec Decoder) Option {
	return func(c *Config) { c.Decoder = dec }
}

func WithEmbeddingProvider(provider EmbeddingProvider) Option {
	return func(c *Config) { c.Embedder = provider }
}

func WithDeviceProber(prober sched.Prober) Option {
	return func(c *Config) { c.Prober = prober }
}

func defaultConfig() *Config {
	return &Config{
		SampleRate:                     11025,
		TempDir:                        os.TempDir(),
		DBPath:                         "",
		ConfidenceThreshold:            0.5,
		RMSConfidenceFloor:             0.3,
		ChunkSizeSeconds:               30,
		ChunkOverlapRatio:              0.1,
		LongFileThresholdSeconds:       60,
		AnalysisCapSeconds:             300,
		DriftToleranceSeconds:          0.05,
		EnabledMethods:                 []model.Method{model.MethodRawWaveform, model.MethodSpectral, model.MethodMFCC, model.MethodOnset},
		DeviceCount:                    1,
		VerificationSeverityThreshold:  2.0,
		HardVerificationCeilingSeconds: 30,
		ProminenceRaw:                  2.0,
		ProminenceFeature:              1.5,
	}
}

// fileConfig is the TOML shape of the recognized options.
type fileConfig struct {
	SampleRate                     int      `toml:"sample_rate"`
	TempDir                        string   `toml:"temp_dir"`
	DBPath                         string   `toml:"db_path"`
	MaxOffsetSeconds               float64  `toml:"max_offset_seconds"`
	ConfidenceThreshold            float64  `toml:"confidence_threshold"`
	ChunkSizeSeconds               float64  `toml:"chunk_size_seconds"`
	ChunkOverlapRatio              float64  `toml:"chunk_overlap_ratio"`
	LongFileThresholdSeconds       float64  `toml:"long_file_threshold_seconds"`
	AnalysisCapSeconds             float64  `toml:"analysis_cap_seconds"`
	EnabledMethods                 []string `toml:"enabled_methods"`
	DeviceCount                    int      `toml:"device_count"`
	VerificationSeverityThreshold  float64  `toml:"verification_severity_threshold"`
	HardVerificationCeilingSeconds float64  `toml:"hard_verification_ceiling_seconds"`
}

// WithConfigFile layers a TOML config file over the current settings.
// Unset fields in the file leave the existing values alone.
func WithConfigFile(path string) Option {
	return func(c *Config) {
		if err := applyConfigFile(c, path); err != nil {
			// Options cannot return errors; surface via the logger once the
			// service is constructed by stashing a sentinel.
			c.fileErr = err
		}
	}
}

func applyConfigFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.SampleRate > 0 {
		c.SampleRate = fc.SampleRate
	}
	if fc.TempDir != "" {
		c.TempDir = fc.TempDir
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.MaxOffsetSeconds > 0 {
		c.MaxOffsetSeconds = fc.MaxOffsetSeconds
	}
	if fc.ConfidenceThreshold > 0 {
		c.ConfidenceThreshold = fc.ConfidenceThreshold
	}
	if fc.ChunkSizeSeconds > 0 {
		c.ChunkSizeSeconds = fc.ChunkSizeSeconds
	}
	if fc.ChunkOverlapRatio > 0 {
		c.ChunkOverlapRatio = fc.ChunkOverlapRatio
	}
	if fc.LongFileThresholdSeconds > 0 {
		c.LongFileThresholdSeconds = fc.LongFileThresholdSeconds
	}
	if fc.AnalysisCapSeconds > 0 {
		c.AnalysisCapSeconds = fc.AnalysisCapSeconds
	}
	if fc.DeviceCount > 0 {
		c.DeviceCount = fc.DeviceCount
	}
	if fc.VerificationSeverityThreshold > 0 {
		c.VerificationSeverityThreshold = fc.VerificationSeverityThreshold
	}
	if fc.HardVerificationCeilingSeconds > 0 {
		c.HardVerificationCeilingSeconds = fc.HardVerificationCeilingSeconds
	}
	if len(fc.EnabledMethods) > 0 {
		methods := make([]model.Method, 0, len(fc.EnabledMethods))
		for _, name := range fc.EnabledMethods {
			m, err := model.ParseMethod(name)
			if err != nil {
				return err
			}
			methods = append(methods, m)
		}
		c.EnabledMethods = methods
	}
	return nil
}

// Package config provides configuration structures and loading for gopromote.
package config

// Config represents the complete pipeline configuration.
type Config struct {
	Source      SourceConfig    `yaml:"source" mapstructure:"source"`
	Destination DatabaseConfig  `yaml:"destination" mapstructure:"destination"`
	Schema      SchemaConfig    `yaml:"schema" mapstructure:"schema"`
	Profiling   ProfilingConfig `yaml:"profiling" mapstructure:"profiling"`
	Breaker     BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Cleaning    CleaningConfig  `yaml:"cleaning" mapstructure:"cleaning"`
	Scoring     ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Migration   MigrationConfig `yaml:"migration" mapstructure:"migration"`
	Health      HealthConfig    `yaml:"health" mapstructure:"health"`
	Logging     LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// SourceConfig points at the embedded single-file source store.
// The pipeline only ever opens it read-only.
type SourceConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DatabaseConfig represents the MySQL destination connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	ControlSchema      string `yaml:"control_schema" mapstructure:"control_schema"`
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// SchemaConfig describes the logical tables being migrated and their
// parent/child relationships. Family is the destination schema family name;
// versioned destination schemas are named "<family>_v<timestamp>".
type SchemaConfig struct {
	Family string      `yaml:"family" mapstructure:"family"`
	Tables []TableSpec `yaml:"tables" mapstructure:"tables"`
}

// TableSpec describes one migrated table. Parent and ForeignKey are empty
// for root tables; Required lists columns the completeness dimension checks.
type TableSpec struct {
	Name       string   `yaml:"name" mapstructure:"name"`
	PrimaryKey string   `yaml:"primary_key" mapstructure:"primary_key"`
	Parent     string   `yaml:"parent" mapstructure:"parent"`
	ForeignKey string   `yaml:"foreign_key" mapstructure:"foreign_key"`
	Required   []string `yaml:"required" mapstructure:"required"`
}

// ProfilingConfig represents type-profiler sampling settings.
type ProfilingConfig struct {
	SampleSize int `yaml:"sample_size" mapstructure:"sample_size"`
	Workers    int `yaml:"workers" mapstructure:"workers"`
}

// BreakerConfig holds circuit-breaker thresholds as fractions in [0,1].
// An observed rate at or above its threshold halts the pipeline.
type BreakerConfig struct {
	TypeMismatchRate float64 `yaml:"type_mismatch_rate" mapstructure:"type_mismatch_rate"`
	CorruptDateRate  float64 `yaml:"corrupt_date_rate" mapstructure:"corrupt_date_rate"`
}

// CleaningConfig selects which cleaning operations run and where the
// cleaned intermediate store is written. Empty WorkDir means alongside
// the source file.
type CleaningConfig struct {
	WorkDir    string   `yaml:"work_dir" mapstructure:"work_dir"`
	Operations []string `yaml:"operations" mapstructure:"operations"`
}

// ScoringConfig holds the quality-gate minimum and per-dimension weights.
// Weights must sum to 1.0.
type ScoringConfig struct {
	MinimumScore float64            `yaml:"minimum_score" mapstructure:"minimum_score"`
	Weights      map[string]float64 `yaml:"weights" mapstructure:"weights"`
}

// MigrationConfig represents migration strategy and batch settings.
type MigrationConfig struct {
	Strategy         string  `yaml:"strategy" mapstructure:"strategy"` // canary or blue-green
	CanarySampleRate float64 `yaml:"canary_sample_rate" mapstructure:"canary_sample_rate"`
	BatchSize        int     `yaml:"batch_size" mapstructure:"batch_size"`
	BatchTimeoutSecs int     `yaml:"batch_timeout_seconds" mapstructure:"batch_timeout_seconds"`
	SleepSeconds     float64 `yaml:"sleep_seconds" mapstructure:"sleep_seconds"`
	KeepVersions     int     `yaml:"keep_versions" mapstructure:"keep_versions"`
}

// HealthConfig holds resource-check thresholds for long-running operations.
type HealthConfig struct {
	MinFreeDiskGB float64 `yaml:"min_free_disk_gb" mapstructure:"min_free_disk_gb"`
	MaxMemoryPct  float64 `yaml:"max_memory_pct" mapstructure:"max_memory_pct"`
	CheckEvery    int     `yaml:"check_every_rows" mapstructure:"check_every_rows"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format     string `yaml:"format" mapstructure:"format"` // json or text
	Output     string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Destination: DatabaseConfig{
			Port:               3306,
			TLS:                "preferred",
			ControlSchema:      "gopromote_meta",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Profiling: ProfilingConfig{
			SampleSize: 5000,
			Workers:    4,
		},
		Breaker: BreakerConfig{
			TypeMismatchRate: 0.10,
			CorruptDateRate:  0.20,
		},
		Cleaning: CleaningConfig{
			Operations: []string{"standardize_dates", "empty_string_to_null"},
		},
		Scoring: ScoringConfig{
			MinimumScore: 80,
			Weights:      DefaultWeights(),
		},
		Migration: MigrationConfig{
			Strategy:         "blue-green",
			CanarySampleRate: 0.10,
			BatchSize:        10000,
			BatchTimeoutSecs: 300,
			KeepVersions:     2,
		},
		Health: HealthConfig{
			MinFreeDiskGB: 5,
			MaxMemoryPct:  90,
			CheckEvery:    10000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultWeights returns the default quality-dimension weights. They sum to 1.0.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"schema_conformance":    0.20,
		"completeness":          0.20,
		"type_correctness":      0.20,
		"referential_integrity": 0.15,
		"business_rules":        0.15,
		"text_integrity":        0.10,
	}
}

// GetTable returns the spec for a named table, or nil if not configured.
func (c *Config) GetTable(name string) *TableSpec {
	for i := range c.Schema.Tables {
		if c.Schema.Tables[i].Name == name {
			return &c.Schema.Tables[i]
		}
	}
	return nil
}

// TableNames returns the configured table names in declaration order.
func (c *Config) TableNames() []string {
	names := make([]string, 0, len(c.Schema.Tables))
	for _, t := range c.Schema.Tables {
		names = append(names, t.Name)
	}
	return names
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Zero values leave the corresponding setting unchanged.
func (c *Config) ApplyOverrides(logLevel, logFormat string, batchSize, sampleSize int, strategy string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if batchSize > 0 {
		c.Migration.BatchSize = batchSize
	}
	if sampleSize > 0 {
		c.Profiling.SampleSize = sampleSize
	}
	if strategy != "" {
		c.Migration.Strategy = strategy
	}
}

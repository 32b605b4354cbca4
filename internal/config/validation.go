package config

import (
	"fmt"
	"math"
	"strings"
)

// knownStrategies are the accepted migration strategies.
var knownStrategies = map[string]bool{
	"canary":     true,
	"blue-green": true,
}

// Validate checks the configuration for structural problems. It returns a
// single error aggregating every problem found so operators can fix a config
// file in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.Source.Path == "" {
		problems = append(problems, "source.path is required")
	}
	if c.Destination.Host == "" {
		problems = append(problems, "destination.host is required")
	}
	if c.Destination.Port <= 0 || c.Destination.Port > 65535 {
		problems = append(problems, fmt.Sprintf("destination.port %d is out of range", c.Destination.Port))
	}
	if c.Schema.Family == "" {
		problems = append(problems, "schema.family is required")
	}
	if len(c.Schema.Tables) == 0 {
		problems = append(problems, "schema.tables must list at least one table")
	}

	seen := make(map[string]bool, len(c.Schema.Tables))
	for _, t := range c.Schema.Tables {
		if t.Name == "" {
			problems = append(problems, "schema.tables entry with empty name")
			continue
		}
		if seen[t.Name] {
			problems = append(problems, fmt.Sprintf("table %q declared twice", t.Name))
		}
		seen[t.Name] = true
		if t.PrimaryKey == "" {
			problems = append(problems, fmt.Sprintf("table %q has no primary_key", t.Name))
		}
		if (t.Parent == "") != (t.ForeignKey == "") {
			problems = append(problems, fmt.Sprintf("table %q must set parent and foreign_key together", t.Name))
		}
	}
	for _, t := range c.Schema.Tables {
		if t.Parent != "" && !seen[t.Parent] {
			problems = append(problems, fmt.Sprintf("table %q references unknown parent %q", t.Name, t.Parent))
		}
	}

	if c.Profiling.SampleSize <= 0 {
		problems = append(problems, "profiling.sample_size must be positive")
	}
	if c.Profiling.Workers <= 0 {
		problems = append(problems, "profiling.workers must be positive")
	}

	if c.Breaker.TypeMismatchRate < 0 || c.Breaker.TypeMismatchRate > 1 {
		problems = append(problems, "breaker.type_mismatch_rate must be in [0,1]")
	}
	if c.Breaker.CorruptDateRate < 0 || c.Breaker.CorruptDateRate > 1 {
		problems = append(problems, "breaker.corrupt_date_rate must be in [0,1]")
	}

	if c.Scoring.MinimumScore < 0 || c.Scoring.MinimumScore > 100 {
		problems = append(problems, "scoring.minimum_score must be in [0,100]")
	}
	if len(c.Scoring.Weights) > 0 {
		var sum float64
		for name, w := range c.Scoring.Weights {
			if w < 0 {
				problems = append(problems, fmt.Sprintf("scoring.weights.%s is negative", name))
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 0.001 {
			problems = append(problems, fmt.Sprintf("scoring.weights must sum to 1.0 (got %.3f)", sum))
		}
	}

	if !knownStrategies[c.Migration.Strategy] {
		problems = append(problems, fmt.Sprintf("migration.strategy %q must be canary or blue-green", c.Migration.Strategy))
	}
	if c.Migration.CanarySampleRate <= 0 || c.Migration.CanarySampleRate > 1 {
		problems = append(problems, "migration.canary_sample_rate must be in (0,1]")
	}
	if c.Migration.BatchSize <= 0 {
		problems = append(problems, "migration.batch_size must be positive")
	}
	if c.Migration.KeepVersions < 1 {
		problems = append(problems, "migration.keep_versions must be at least 1")
	}

	if c.Health.MinFreeDiskGB < 0 {
		problems = append(problems, "health.min_free_disk_gb must not be negative")
	}
	if c.Health.MaxMemoryPct <= 0 || c.Health.MaxMemoryPct > 100 {
		problems = append(problems, "health.max_memory_pct must be in (0,100]")
	}
	if c.Health.CheckEvery <= 0 {
		problems = append(problems, "health.check_every_rows must be positive")
	}

	if strings.Contains(c.Source.Path, "${") {
		problems = append(problems, fmt.Sprintf("source.path contains unresolved variable: %s", c.Source.Path))
	}
	if strings.Contains(c.Destination.Password, "${") {
		problems = append(problems, "destination.password contains an unresolved variable")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Package scorer computes the composite quality score that gates promotion
// of cleaned data to the destination store.
package scorer

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/graph"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/profiler"
)

// Score is the immutable result of scoring one cleaned record set.
type Score struct {
	Composite    float64            `json:"composite"`
	Dimensions   map[string]float64 `json:"dimensions"`
	MinimumScore float64            `json:"minimum_score"`
	GatePassed   bool               `json:"gate_passed"`
}

// GateError is surfaced when cleaned data scores below the gate minimum.
// The cleaned artifact and score are retained for diagnosis; only promotion
// is blocked.
type GateError struct {
	Score *Score
}

func (e *GateError) Error() string {
	return fmt.Sprintf("quality gate failed: composite %.2f below minimum %.2f",
		e.Score.Composite, e.Score.MinimumScore)
}

// Scorer runs the dimension check battery against a cleaned store.
// Identical cleaned input always yields an identical score.
type Scorer struct {
	db  *sql.DB // cleaned store
	cfg config.ScoringConfig
	g   *graph.Graph
	log *logger.Logger
	rec *metrics.Recorder
}

// New creates a scorer over the cleaned store.
func New(db *sql.DB, cfg config.ScoringConfig, g *graph.Graph, log *logger.Logger, rec *metrics.Recorder) (*Scorer, error) {
	if db == nil {
		return nil, fmt.Errorf("cleaned database is nil")
	}
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	if len(cfg.Weights) == 0 {
		cfg.Weights = config.DefaultWeights()
	}
	if cfg.MinimumScore == 0 {
		cfg.MinimumScore = 80
	}
	return &Scorer{db: db, cfg: cfg, g: g, log: log, rec: rec}, nil
}

// Score runs every weighted dimension and computes the composite.
// cleanedReport is a profiling report taken over the cleaned store; the
// schema and type dimensions are derived from it so scoring needs no second
// full scan. The gate passes iff composite >= minimum (inclusive).
func (s *Scorer) Score(ctx context.Context, cleanedReport *profiler.Report, tables []config.TableSpec) (*Score, error) {
	start := time.Now()

	dims := make(map[string]float64, len(s.cfg.Weights))

	var err error
	if dims["schema_conformance"], err = s.schemaConformance(cleanedReport); err != nil {
		return nil, fmt.Errorf("schema conformance check failed: %w", err)
	}
	if dims["type_correctness"], err = s.typeCorrectness(cleanedReport); err != nil {
		return nil, fmt.Errorf("type correctness check failed: %w", err)
	}
	if dims["completeness"], err = s.completeness(ctx, tables); err != nil {
		return nil, fmt.Errorf("completeness check failed: %w", err)
	}
	if dims["referential_integrity"], err = s.referentialIntegrity(ctx); err != nil {
		return nil, fmt.Errorf("referential integrity check failed: %w", err)
	}
	if dims["business_rules"], err = s.businessRules(ctx); err != nil {
		return nil, fmt.Errorf("business rule check failed: %w", err)
	}
	if dims["text_integrity"], err = s.textIntegrity(ctx, cleanedReport); err != nil {
		return nil, fmt.Errorf("text integrity check failed: %w", err)
	}

	// Weighted sum over dimension names in sorted order so floating point
	// accumulation is reproducible.
	names := make([]string, 0, len(s.cfg.Weights))
	for name := range s.cfg.Weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var composite float64
	for _, name := range names {
		value, ok := dims[name]
		if !ok {
			return nil, fmt.Errorf("weight configured for unknown dimension %q", name)
		}
		composite += s.cfg.Weights[name] * value
	}
	composite = math.Round(composite*100) / 100

	score := &Score{
		Composite:    composite,
		Dimensions:   dims,
		MinimumScore: s.cfg.MinimumScore,
		GatePassed:   composite >= s.cfg.MinimumScore,
	}

	s.rec.SetGauge("quality_score_composite", composite)
	s.rec.ObserveDuration("scorer_duration_seconds", time.Since(start))
	s.log.Infow("Quality score computed",
		"composite", composite,
		"gate_passed", score.GatePassed,
		"dimensions", dims,
	)

	return score, nil
}

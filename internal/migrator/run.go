// Package migrator drives quality-gated migration of cleaned record sets
// into the destination store using canary or blue-green strategies.
package migrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridata/gopromote/internal/config"
)

// Strategy selects how cleaned data reaches the destination.
type Strategy string

const (
	StrategyCanary    Strategy = "canary"
	StrategyBlueGreen Strategy = "blue-green"
)

// Status is the migration run state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProfiling  Status = "profiling"
	StatusCleaning   Status = "cleaning"
	StatusScoring    Status = "scoring"
	StatusMigrating  Status = "migrating"
	StatusValidating Status = "validating"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
	StatusFailed     Status = "failed"
)

// validTransitions encodes the one-directional state machine. failed is
// reachable from any non-terminal state; rolled_back only from validating.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProfiling, StatusFailed},
	StatusProfiling:  {StatusCleaning, StatusFailed},
	StatusCleaning:   {StatusScoring, StatusFailed},
	StatusScoring:    {StatusMigrating, StatusFailed},
	StatusMigrating:  {StatusValidating, StatusFailed},
	StatusValidating: {StatusCommitted, StatusRolledBack, StatusFailed},
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCommitted, StatusRolledBack, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether s -> to is a legal transition.
func (s Status) CanTransition(to Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Plan describes one migration before execution. Plans are archived with
// the run record, never deleted.
type Plan struct {
	ID         string    `json:"id"`
	Strategy   Strategy  `json:"strategy"`
	SourcePath string    `json:"source_path"`
	Family     string    `json:"family"`
	SampleRate float64   `json:"sample_rate"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewPlan builds a plan from configuration.
func NewPlan(cfg *config.Config) *Plan {
	return &Plan{
		ID:         uuid.NewString(),
		Strategy:   Strategy(cfg.Migration.Strategy),
		SourcePath: cfg.Source.Path,
		Family:     cfg.Schema.Family,
		SampleRate: cfg.Migration.CanarySampleRate,
		CreatedAt:  time.Now().UTC(),
	}
}

// Run is the top-level state-machine entity for one pipeline execution.
type Run struct {
	ID          string    `json:"id"`
	Plan        *Plan     `json:"plan"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// NewRun creates a pending run for a plan. The run shares the plan's ID so
// audit artifacts join trivially.
func NewRun(plan *Plan) *Run {
	return &Run{
		ID:        plan.ID,
		Plan:      plan,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
}

// Transition moves the run to a new status, rejecting skipped or backward
// transitions. Terminal statuses record the end time.
func (r *Run) Transition(to Status) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("illegal run transition %s -> %s", r.Status, to)
	}
	r.Status = to
	if to.IsTerminal() {
		r.EndedAt = time.Now().UTC()
	}
	return nil
}

package migrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridata/gopromote/internal/breaker"
	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/scorer"
)

func runAt(t *testing.T, status Status) *Run {
	t.Helper()
	run := NewRun(NewPlan(config.DefaultConfig()))
	run.Status = status
	return run
}

func TestTerminalStatus(t *testing.T) {
	verr := &ValidationError{Schema: "app_v2"}

	cases := []struct {
		name string
		at   Status
		err  error
		want Status
	}{
		{"breaker halt during profiling", StatusProfiling, &breaker.HaltError{}, StatusFailed},
		{"gate refusal during scoring", StatusScoring, &scorer.GateError{Score: &scorer.Score{}}, StatusFailed},
		{"validation failure during validating", StatusValidating, verr, StatusRolledBack},
		{"wrapped validation failure during validating", StatusValidating, fmt.Errorf("promote: %w", verr), StatusRolledBack},
		{"canary rehearsal failure during copy", StatusMigrating, &CanaryError{Schema: "app_canary_x", Err: verr}, StatusFailed},
		{"plain error during copy", StatusMigrating, fmt.Errorf("disk full"), StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, terminalStatus(runAt(t, tc.at), tc.err))
		})
	}
}

// A gate refusal happens while the run is scoring, so the state machine
// must admit failed straight from there without passing migrating first.
func TestGateRefusalEndsRunBeforeMigrating(t *testing.T) {
	run := runAt(t, StatusScoring)

	status := terminalStatus(run, &scorer.GateError{Score: &scorer.Score{Composite: 79.99, MinimumScore: 80}})
	assert.Equal(t, StatusFailed, status)
	assert.NoError(t, run.Transition(status))
	assert.True(t, run.Status.IsTerminal())
	assert.False(t, StatusScoring.CanTransition(StatusValidating), "scoring may not skip ahead to validating")
}

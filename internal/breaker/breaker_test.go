package breaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/profiler"
)

func defaultThresholds() config.BreakerConfig {
	return config.BreakerConfig{
		TypeMismatchRate: 0.10,
		CorruptDateRate:  0.20,
	}
}

func column(table, name string, declared, inferred profiler.ValueType, confidence float64, sampleSize, corrupt int) profiler.ColumnProfile {
	return profiler.ColumnProfile{
		Table:        table,
		Column:       name,
		DeclaredKind: declared,
		InferredType: inferred,
		Confidence:   confidence,
		SampleSize:   sampleSize,
		CorruptCount: corrupt,
	}
}

func report(cols ...profiler.ColumnProfile) *profiler.Report {
	return &profiler.Report{Tables: []profiler.TableProfile{{Table: "t", Columns: cols}}}
}

func TestEvaluate_CleanReportPasses(t *testing.T) {
	r := report(
		column("t", "id", profiler.TypeInteger, profiler.TypeInteger, 1.0, 1000, 0),
		column("t", "name", profiler.TypeText, profiler.TypeText, 1.0, 1000, 0),
	)

	v := Evaluate(r, defaultThresholds())

	assert.False(t, v.ShouldHalt)
	assert.Empty(t, v.Triggered)
	assert.Equal(t, "all thresholds satisfied", v.Summary)
}

func TestEvaluate_MismatchRate(t *testing.T) {
	tests := []struct {
		name       string
		mismatched int // certain mismatches out of 100 columns
		expectHalt bool
	}{
		{name: "9 percent passes", mismatched: 9, expectHalt: false},
		{name: "10 percent halts at the threshold", mismatched: 10, expectHalt: true},
		{name: "11 percent halts", mismatched: 11, expectHalt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cols []profiler.ColumnProfile
			for i := 0; i < tt.mismatched; i++ {
				cols = append(cols, column("t", "m", profiler.TypeText, profiler.TypeInteger, 1.0, 100, 0))
			}
			for i := tt.mismatched; i < 100; i++ {
				cols = append(cols, column("t", "ok", profiler.TypeInteger, profiler.TypeInteger, 1.0, 100, 0))
			}

			v := Evaluate(report(cols...), defaultThresholds())
			assert.Equal(t, tt.expectHalt, v.ShouldHalt)
			if tt.expectHalt {
				require.Len(t, v.Triggered, 1)
				assert.Equal(t, RuleTypeMismatch, v.Triggered[0].Rule)
				assert.Contains(t, v.Triggered[0].Detail, "t.m")
			}
		})
	}
}

func TestEvaluate_CorruptDateRate(t *testing.T) {
	tests := []struct {
		name       string
		corrupt    int // corrupt values in a sample of 1000
		expectHalt bool
	}{
		{name: "19.9 percent passes", corrupt: 199, expectHalt: false},
		{name: "20 percent halts at the threshold", corrupt: 200, expectHalt: true},
		{name: "25 percent halts", corrupt: 250, expectHalt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := report(
				column("t", "created_at", profiler.TypeTimestamp, profiler.TypeTimestamp, 0.98, 1000, tt.corrupt),
			)

			v := Evaluate(r, defaultThresholds())
			assert.Equal(t, tt.expectHalt, v.ShouldHalt)
			if tt.expectHalt {
				require.Len(t, v.Triggered, 1)
				assert.Equal(t, RuleCorruptDate, v.Triggered[0].Rule)
				assert.Contains(t, v.Triggered[0].Detail, "t.created_at")
			}
		})
	}
}

func TestEvaluate_CorruptRuleIgnoresNonTemporalColumns(t *testing.T) {
	// Heavy corruption on a text column never trips the date rule.
	r := report(
		column("t", "notes", profiler.TypeText, profiler.TypeText, 1.0, 1000, 500),
	)

	v := Evaluate(r, defaultThresholds())
	assert.False(t, v.ShouldHalt)
}

func TestEvaluate_BothRulesTriggered(t *testing.T) {
	var cols []profiler.ColumnProfile
	// Two of ten columns mismatched at full confidence: 20% mismatch rate.
	cols = append(cols,
		column("t", "a", profiler.TypeText, profiler.TypeInteger, 1.0, 100, 0),
		column("t", "b", profiler.TypeText, profiler.TypeInteger, 1.0, 100, 0),
	)
	for i := 0; i < 7; i++ {
		cols = append(cols, column("t", "ok", profiler.TypeInteger, profiler.TypeInteger, 1.0, 100, 0))
	}
	// And a timestamp column with 30% corrupt values.
	cols = append(cols, column("t", "ts", profiler.TypeTimestamp, profiler.TypeTimestamp, 0.7, 100, 30))

	v := Evaluate(report(cols...), defaultThresholds())

	assert.True(t, v.ShouldHalt)
	require.Len(t, v.Triggered, 2)
	assert.Equal(t, RuleTypeMismatch, v.Triggered[0].Rule)
	assert.Equal(t, RuleCorruptDate, v.Triggered[1].Rule)
	assert.Contains(t, v.Summary, RuleTypeMismatch)
	assert.Contains(t, v.Summary, RuleCorruptDate)
}

func TestEvaluate_Deterministic(t *testing.T) {
	r := report(
		column("t", "a", profiler.TypeText, profiler.TypeInteger, 1.0, 100, 0),
		column("t", "ts", profiler.TypeTimestamp, profiler.TypeTimestamp, 0.75, 100, 25),
	)

	first := Evaluate(r, defaultThresholds())
	second := Evaluate(r, defaultThresholds())
	assert.Equal(t, first, second)
}

func TestHaltError_Message(t *testing.T) {
	halting := Evaluate(report(
		column("t", "a", profiler.TypeText, profiler.TypeInteger, 1.0, 100, 0),
	), config.BreakerConfig{TypeMismatchRate: 0.10, CorruptDateRate: 0.2})
	require.True(t, halting.ShouldHalt)

	err := &HaltError{Verdict: halting}
	assert.Contains(t, err.Error(), "circuit breaker halt")
	assert.Contains(t, err.Error(), RuleTypeMismatch)
}

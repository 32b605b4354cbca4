// Package breaker decides whether profiled source data is too corrupt to
// migrate. Evaluate is a pure function: no state, no I/O, identical inputs
// always produce identical verdicts.
package breaker

import (
	"fmt"
	"strings"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/profiler"
)

// Rule names recorded on triggered verdicts.
const (
	RuleTypeMismatch = "type_mismatch_rate"
	RuleCorruptDate  = "corrupt_date_rate"
)

// TriggeredRule records one threshold violation. Violations are never merged;
// each carries its own observed value and threshold.
type TriggeredRule struct {
	Rule      string  `json:"rule"`
	Observed  float64 `json:"observed"`
	Threshold float64 `json:"threshold"`
	Detail    string  `json:"detail,omitempty"`
}

func (r TriggeredRule) String() string {
	s := fmt.Sprintf("%s=%.2f >= threshold=%.2f", r.Rule, r.Observed, r.Threshold)
	if r.Detail != "" {
		s += " (" + r.Detail + ")"
	}
	return s
}

// Verdict is the circuit breaker's decision over a profiling report.
type Verdict struct {
	ShouldHalt bool            `json:"should_halt"`
	Triggered  []TriggeredRule `json:"triggered_rules,omitempty"`
	Summary    string          `json:"summary"`
}

// HaltError is surfaced when a halting verdict stops the pipeline. The data
// requires operator remediation at the source; it is never retried
// automatically.
type HaltError struct {
	Verdict *Verdict
}

func (e *HaltError) Error() string {
	return "circuit breaker halt: " + e.Verdict.Summary
}

// Evaluate applies the configured thresholds to a profiling report.
// Thresholds are inclusive: an observed rate equal to its threshold halts.
func Evaluate(report *profiler.Report, thresholds config.BreakerConfig) *Verdict {
	verdict := &Verdict{}

	mismatch := report.TypeMismatchRate()
	if mismatch >= thresholds.TypeMismatchRate {
		verdict.Triggered = append(verdict.Triggered, TriggeredRule{
			Rule:      RuleTypeMismatch,
			Observed:  mismatch,
			Threshold: thresholds.TypeMismatchRate,
			Detail:    mismatchDetail(report),
		})
	}

	corrupt, column := report.WorstCorruptDateRate()
	if column != "" && corrupt >= thresholds.CorruptDateRate {
		verdict.Triggered = append(verdict.Triggered, TriggeredRule{
			Rule:      RuleCorruptDate,
			Observed:  corrupt,
			Threshold: thresholds.CorruptDateRate,
			Detail:    "worst column " + column,
		})
	}

	verdict.ShouldHalt = len(verdict.Triggered) > 0
	verdict.Summary = summarize(verdict)
	return verdict
}

func mismatchDetail(report *profiler.Report) string {
	var mismatched []string
	for _, c := range report.AllColumns() {
		if c.Mismatched() {
			mismatched = append(mismatched, c.Table+"."+c.Column)
		}
	}
	if len(mismatched) == 0 {
		return ""
	}
	return "mismatched columns: " + strings.Join(mismatched, ", ")
}

func summarize(v *Verdict) string {
	if !v.ShouldHalt {
		return "all thresholds satisfied"
	}
	parts := make([]string, len(v.Triggered))
	for i, r := range v.Triggered {
		parts[i] = r.String()
	}
	return strings.Join(parts, "; ")
}

package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeColumn(table, column string, declared, inferred ValueType, confidence float64, sampleSize, corrupt int) ColumnProfile {
	return ColumnProfile{
		Table:        table,
		Column:       column,
		DeclaredKind: declared,
		InferredType: inferred,
		SampleSize:   sampleSize,
		Confidence:   confidence,
		Accepted:     confidence >= acceptConfidence,
		CorruptCount: corrupt,
	}
}

func TestColumnProfile_Mismatched(t *testing.T) {
	matched := makeColumn("t", "a", TypeInteger, TypeInteger, 1.0, 100, 0)
	assert.False(t, matched.Mismatched())

	mismatched := makeColumn("t", "b", TypeText, TypeInteger, 0.98, 100, 0)
	assert.True(t, mismatched.Mismatched())

	mixed := makeColumn("t", "c", TypeInteger, TypeMixed, 0.4, 100, 0)
	assert.True(t, mixed.Mismatched())
}

func TestColumnProfile_CorruptRate(t *testing.T) {
	col := makeColumn("t", "a", TypeTimestamp, TypeTimestamp, 0.95, 1000, 50)
	assert.InDelta(t, 0.05, col.CorruptRate(), 1e-9)

	empty := makeColumn("t", "b", TypeText, TypeText, 0, 0, 0)
	assert.Equal(t, 0.0, empty.CorruptRate())
}

func TestReport_TypeMismatchRate(t *testing.T) {
	tests := []struct {
		name     string
		columns  []ColumnProfile
		expected float64
	}{
		{
			name:     "empty report",
			columns:  nil,
			expected: 0,
		},
		{
			name: "no mismatches",
			columns: []ColumnProfile{
				makeColumn("t", "a", TypeInteger, TypeInteger, 1.0, 100, 0),
				makeColumn("t", "b", TypeText, TypeText, 1.0, 100, 0),
			},
			expected: 0,
		},
		{
			name: "one certain mismatch in four columns",
			columns: []ColumnProfile{
				makeColumn("t", "a", TypeInteger, TypeInteger, 1.0, 100, 0),
				makeColumn("t", "b", TypeText, TypeInteger, 1.0, 100, 0),
				makeColumn("t", "c", TypeText, TypeText, 1.0, 100, 0),
				makeColumn("t", "d", TypeFloat, TypeFloat, 1.0, 100, 0),
			},
			expected: 0.25,
		},
		{
			name: "low-confidence mismatch weighs less",
			columns: []ColumnProfile{
				makeColumn("t", "a", TypeText, TypeInteger, 0.6, 100, 0),
				makeColumn("t", "b", TypeInteger, TypeInteger, 1.0, 100, 0),
			},
			expected: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{Tables: []TableProfile{{Table: "t", Columns: tt.columns}}}
			assert.InDelta(t, tt.expected, r.TypeMismatchRate(), 1e-9)
		})
	}
}

func TestReport_WorstCorruptDateRate(t *testing.T) {
	r := &Report{Tables: []TableProfile{{
		Table: "events",
		Columns: []ColumnProfile{
			makeColumn("events", "id", TypeInteger, TypeInteger, 1.0, 1000, 0),
			makeColumn("events", "created_at", TypeTimestamp, TypeTimestamp, 0.95, 1000, 50),
			makeColumn("events", "updated_at", TypeTimestamp, TypeTimestamp, 0.88, 1000, 120),
		},
	}}}

	rate, col := r.WorstCorruptDateRate()
	assert.InDelta(t, 0.12, rate, 1e-9)
	assert.Equal(t, "events.updated_at", col)
}

func TestReport_WorstCorruptDateRate_NoTemporalColumns(t *testing.T) {
	r := &Report{Tables: []TableProfile{{
		Table: "users",
		Columns: []ColumnProfile{
			makeColumn("users", "id", TypeInteger, TypeInteger, 1.0, 100, 0),
		},
	}}}

	rate, col := r.WorstCorruptDateRate()
	assert.Equal(t, 0.0, rate)
	assert.Equal(t, "", col)
}

func TestReport_FindColumn(t *testing.T) {
	r := &Report{Tables: []TableProfile{{
		Table: "users",
		Columns: []ColumnProfile{
			makeColumn("users", "id", TypeInteger, TypeInteger, 1.0, 100, 0),
			makeColumn("users", "email", TypeText, TypeText, 1.0, 100, 0),
		},
	}}}

	col := r.FindColumn("users", "email")
	if assert.NotNil(t, col) {
		assert.Equal(t, "email", col.Column)
	}
	assert.Nil(t, r.FindColumn("users", "missing"))
	assert.Nil(t, r.FindColumn("missing", "id"))
}

// A column where 95% of values are canonical timestamps and 5% are
// day-first legacy dates: inferred timestamp at the acceptance boundary,
// with the legacy values counted corrupt.
func TestReport_MostlyCanonicalTimestamps(t *testing.T) {
	col := makeColumn("events", "created_at", TypeTimestamp, TypeTimestamp, 0.95, 1000, 50)
	assert.True(t, col.Accepted)
	assert.False(t, col.Mismatched())
	assert.InDelta(t, 0.05, col.CorruptRate(), 1e-9)
}

package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColoredStatus(t *testing.T) {
	// Color escapes depend on terminal detection; the status text itself
	// must always survive.
	for _, status := range []string{"committed", "failed", "rolled_back", "pending", "staging", "migrating"} {
		assert.Contains(t, coloredStatus(status), status)
	}
}

func TestPad(t *testing.T) {
	assert.Equal(t, "abc   ", pad("abc", 6))
	assert.Equal(t, "abcdef", pad("abcdef", 3), "pad never truncates")
}

func TestPrintRow(t *testing.T) {
	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	printRow([]int{4, 6}, "id", "status")
	assert.Equal(t, "id    status  \n", buf.String())
}

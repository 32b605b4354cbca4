package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

// coloredStatus renders a run or check status with a terminal color.
func coloredStatus(status string) string {
	switch status {
	case "committed", "passed", "active":
		return color.Green.Sprint(status)
	case "failed", "rolled_back", "halted":
		return color.Red.Sprint(status)
	case "pending", "staging", "retired":
		return color.Gray.Sprint(status)
	default:
		return color.Yellow.Sprint(status)
	}
}

// pad right-pads a cell to a fixed display width, wide runes included.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// printRow writes one aligned table row to the output writer.
func printRow(widths []int, cells ...string) {
	line := ""
	for i, cell := range cells {
		w := 0
		if i < len(widths) {
			w = widths[i]
		}
		line += pad(cell, w) + "  "
	}
	fmt.Fprintln(outputWriter, line)
}

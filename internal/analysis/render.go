package analysis

import (
	"strconv"
	"strings"

	"github.com/eddiefleurent/covered_call/internal/strategy"
)

// RenderChain joins the candidate lines, one "strike,mark,break_even,assignment_gain"
// per line, tab-indented.
func RenderChain(chain []strategy.CoveredCall) string {
	lines := make([]string, len(chain))
	for i, cc := range chain {
		lines[i] = "\t" + cc.Render()
	}
	return strings.Join(lines, "\n")
}

// RenderDisplay builds the human-readable summary of a single-expiration analysis.
func RenderDisplay(expirations []string, price float64, expiration string, chain []strategy.CoveredCall) string {
	var b strings.Builder
	b.WriteString("\nExpiration Dates: ")
	b.WriteString(strings.Join(expirations, ","))
	b.WriteString("\nShare Price: $")
	b.WriteString(strconv.FormatFloat(price, 'f', -1, 64))
	b.WriteString(", Ex Date: ")
	b.WriteString(expiration)
	b.WriteString("\n")
	b.WriteString(RenderChain(chain))
	return b.String()
}

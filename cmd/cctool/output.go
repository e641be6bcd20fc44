package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/eddiefleurent/covered_call/internal/analysis"
	"github.com/eddiefleurent/covered_call/internal/strategy"
	"github.com/eddiefleurent/covered_call/internal/util"
)

var tableHeader = []string{
	"Strike", "Mark", "Break Even", "Gain", "Gain %", "Hours", "Risk", "Gain/Day", "Gain %/Day", "ITM",
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cell(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return strconv.FormatFloat(util.RoundCents(*p), 'f', 2, 64)
}

func candidateRow(cc strategy.CoveredCall) []string {
	itm := "n/a"
	if cc.ITM != nil {
		itm = strconv.FormatBool(*cc.ITM)
	}
	return []string{
		cell(cc.Strike),
		cell(cc.Mark),
		cell(cc.BreakEven),
		cell(cc.AssignmentGain),
		cell(cc.AssignmentGainPercent),
		cell(cc.Time),
		cell(cc.Risk),
		cell(cc.TimeGain),
		cell(cc.TimeGainPercent),
		itm,
	}
}

func writeTable(w io.Writer, chain []strategy.CoveredCall) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(tableHeader)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, cc := range chain {
		table.Append(candidateRow(cc))
	}
	table.Render()
}

func writeBulk(w io.Writer, res *analysis.BulkResult, asTable bool) {
	fmt.Fprintf(w, "%s $%g\n", res.Quote.Ticker, res.Quote.Last)
	for i, exp := range res.Expirations {
		fmt.Fprintf(w, "\nEx Date: %s\n", exp)
		if asTable {
			writeTable(w, res.Pages[i])
			continue
		}
		fmt.Fprintln(w, analysis.RenderChain(res.Pages[i]))
	}
}

// Package strategy narrows option chains to covered-call candidates and derives
// their risk/return metrics.
package strategy

import "github.com/eddiefleurent/covered_call/internal/broker"

// DefaultPriceCeilingOffset bounds how far out of the money a strike may be.
const DefaultPriceCeilingOffset = 10.0

// FilterCalls keeps calls whose strike is below marketPrice+ceilingOffset and
// returns them in reverse input order. The provider lists strikes ascending, so
// the result is descending by strike. Deep in-the-money calls are kept; options
// without a strike are dropped since they cannot be compared to the ceiling.
func FilterCalls(chain []broker.Option, marketPrice, ceilingOffset float64) []broker.Option {
	ceiling := marketPrice + ceilingOffset
	out := make([]broker.Option, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		o := chain[i]
		if !o.IsCall() || o.Strike == nil {
			continue
		}
		if *o.Strike < ceiling {
			out = append(out, o)
		}
	}
	return out
}

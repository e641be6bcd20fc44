package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eddiefleurent/covered_call/internal/broker"
	"github.com/eddiefleurent/covered_call/internal/expiration"
	"github.com/eddiefleurent/covered_call/internal/market"
	"github.com/sirupsen/logrus"
)

// SharesPerContract is the number of shares one equity option covers.
const SharesPerContract = 100

// CoveredCall is a call option evaluated as a covered-call sale against the
// underlying at MarketPrice. Derived fields are nil when the inputs they depend
// on are missing or would divide by zero; Anomalies records why.
type CoveredCall struct {
	Symbol      string   `json:"symbol"`
	Expiration  string   `json:"expiration_date"`
	Strike      *float64 `json:"strike"`
	Mark        *float64 `json:"mark"`
	MarketPrice float64  `json:"market_price"`

	BreakEven             *float64 `json:"break_even"`
	AssignmentGain        *float64 `json:"assignment_gain"`
	AssignmentGainPercent *float64 `json:"assignment_gain_percent"`
	Time                  *float64 `json:"time"`
	Risk                  *float64 `json:"risk"`
	TimeGain              *float64 `json:"time_gain"`
	TimeGainPercent       *float64 `json:"time_gain_percent"`
	ITM                   *bool    `json:"itm"`

	Anomalies []string      `json:"anomalies,omitempty"`
	Option    broker.Option `json:"option"`
}

// Complete reports whether every derived field was computed.
func (c CoveredCall) Complete() bool {
	return len(c.Anomalies) == 0
}

// Render formats the candidate as "strike,mark,break_even,assignment_gain" at
// two decimals. Unset fields render as "n/a".
func (c CoveredCall) Render() string {
	fields := []*float64{c.Strike, c.Mark, c.BreakEven, c.AssignmentGain}
	parts := make([]string, len(fields))
	for i, f := range fields {
		if f == nil {
			parts[i] = "n/a"
			continue
		}
		parts[i] = fmt.Sprintf("%.2f", *f)
	}
	return strings.Join(parts, ",")
}

// Calculator derives CoveredCall metrics. Time to expiration is measured to the
// session close on the option's expiration date.
type Calculator struct {
	session market.Session
	logger  logrus.FieldLogger
}

// NewCalculator creates a Calculator. A nil logger uses the logrus standard logger.
func NewCalculator(session market.Session, logger logrus.FieldLogger) *Calculator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Calculator{session: session, logger: logger}
}

// Compute evaluates every option in order. A bad record never fails the batch:
// it yields a partial CoveredCall and a logged warning.
func (c *Calculator) Compute(chain []broker.Option, marketPrice float64, now time.Time) []CoveredCall {
	out := make([]CoveredCall, 0, len(chain))
	for _, o := range chain {
		cc := c.Evaluate(o, marketPrice, now)
		if !cc.Complete() {
			c.logger.WithFields(logrus.Fields{
				"symbol":     o.Symbol,
				"expiration": o.ExpirationDate,
				"anomalies":  strings.Join(cc.Anomalies, "; "),
			}).Warn("Covered call computed with missing fields")
		}
		out = append(out, cc)
	}
	return out
}

// Evaluate derives the metrics for a single call option.
func (c *Calculator) Evaluate(o broker.Option, marketPrice float64, now time.Time) CoveredCall {
	cc := CoveredCall{
		Symbol:      o.Symbol,
		Expiration:  o.ExpirationDate,
		Strike:      o.Strike,
		MarketPrice: marketPrice,
		Option:      o,
	}
	note := func(field, reason string) {
		cc.Anomalies = append(cc.Anomalies, field+": "+reason)
	}

	p := marketPrice
	mark, hasMark := o.Mark()
	if hasMark {
		cc.Mark = ptr(mark)
	}
	hasStrike := o.Strike != nil

	var hours float64
	hasTime := false
	if exp, err := expiration.ParseDate(o.ExpirationDate, c.session.Location); err == nil {
		hours = c.session.CloseOn(exp).Sub(now).Hours()
		hasTime = true
		cc.Time = ptr(hours)
	} else {
		note("time", fmt.Sprintf("unparsable expiration %q", o.ExpirationDate))
	}

	if hasMark {
		cc.BreakEven = ptr(p - mark)
	} else {
		note("break_even", "missing mark")
	}

	var gain float64
	hasGain := false
	switch {
	case !hasStrike:
		note("assignment_gain", "missing strike")
	case !hasMark:
		note("assignment_gain", "missing mark")
	default:
		gain = SharesPerContract * (*o.Strike + mark - p)
		hasGain = true
		cc.AssignmentGain = ptr(gain)
	}

	var gainPct float64
	hasGainPct := false
	if hasGain {
		if v, ok := divide(gain, p); ok {
			gainPct = v
			hasGainPct = true
			cc.AssignmentGainPercent = ptr(v)
		} else {
			note("assignment_gain_percent", "market price is zero")
		}
	}

	if hasTime && hasMark {
		if v, ok := divide(hours, mark); ok {
			cc.Risk = ptr(v)
		} else {
			note("risk", "mark is zero")
		}
	}

	if hasTime && hasGain {
		if v, ok := divide(24*gain, hours); ok {
			cc.TimeGain = ptr(v)
		} else {
			note("time_gain", "no time to expiration")
		}
	}
	if hasTime && hasGainPct {
		if v, ok := divide(24*gainPct, hours); ok {
			cc.TimeGainPercent = ptr(v)
		} else {
			note("time_gain_percent", "no time to expiration")
		}
	}

	if hasStrike {
		itm := *o.Strike <= p
		cc.ITM = &itm
	}
	return cc
}

func divide(a, b float64) (float64, bool) {
	if b == 0 {
		return 0, false
	}
	v := a / b
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func ptr[T any](v T) *T { return &v }

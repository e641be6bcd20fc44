package analysis

import (
	"regexp"
	"strings"

	"github.com/eddiefleurent/covered_call/internal/models"
)

// validTicker also matches the empty string; emptiness is rejected first.
var validTicker = regexp.MustCompile(`^[A-Za-z]{0,5}$`)

// ValidateTicker checks ticker syntax and returns the upper-cased symbol.
func ValidateTicker(ticker string) (string, error) {
	if ticker == "" {
		return "", models.NewError(models.KindUndefinedTicker, "")
	}
	if !validTicker.MatchString(ticker) {
		return "", models.NewError(models.KindInvalidTicker, ticker)
	}
	return strings.ToUpper(ticker), nil
}

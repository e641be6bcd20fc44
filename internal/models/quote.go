package models

// Quote is the underlying's price snapshot used for one analysis request.
type Quote struct {
	Ticker string  `json:"ticker"`
	Last   float64 `json:"last"`
}

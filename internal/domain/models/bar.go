package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one close-price observation for an instrument.
type PriceBar struct {
	Timestamp  time.Time
	Instrument string
	Close      decimal.Decimal
}

// SignalBar is a PriceBar with the signal attached for the horizon being simulated.
type SignalBar struct {
	PriceBar
	Signal Signal
}

// BarGroup holds every bar sharing one timestamp, in the feed's iteration order.
type BarGroup struct {
	Timestamp time.Time
	Bars      []SignalBar
}

// SignalRow is the flat, upstream representation of a predicted bar
// as produced by the predictor pipeline (one row per model, horizon, ticker and timestamp).
type SignalRow struct {
	Model     string    `json:"model"`
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"t"`
	Close     float64   `json:"c"`
	HorizonH  int       `json:"horizon_h"`
	Signal    int       `json:"signal"`
}

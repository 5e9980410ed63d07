package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an executed trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is an executed, signal-driven transition. Never mutated after creation.
type Trade struct {
	ModelID    string          `json:"model_type"`
	Instrument string          `json:"ticker"`
	Side       Side            `json:"trade_type"`
	Timestamp  time.Time       `json:"trade_date"`
	Price      decimal.Decimal `json:"price"`
	Shares     decimal.Decimal `json:"shares"`
}

// Notional is price * shares.
func (t Trade) Notional() decimal.Decimal { return t.Price.Mul(t.Shares) }

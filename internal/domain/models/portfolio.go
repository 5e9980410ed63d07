package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the mark-to-market value of a run at one timestamp.
type PortfolioSnapshot struct {
	ModelID    string          `json:"model_type"`
	Timestamp  time.Time       `json:"date"`
	TotalValue decimal.Decimal `json:"value"`
}

// RunStatus is the terminal state of one simulation run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunSummary describes one (model, horizon) simulation run.
type RunSummary struct {
	RunID      string          `json:"run_id"`
	ModelID    string          `json:"model_type"`
	Model      string          `json:"model"`
	Horizon    Horizon         `json:"horizon_h"`
	Buys       int             `json:"total_buys"`
	Sells      int             `json:"total_sells"`
	Snapshots  int             `json:"snapshots"`
	FinalValue decimal.Decimal `json:"final_value"`
	Status     RunStatus       `json:"status"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// PortfolioStats summarizes an equity curve.
type PortfolioStats struct {
	StartingValue float64 `json:"starting_value"`
	CurrentValue  float64 `json:"current_value"`
	HighestValue  float64 `json:"highest_value"`
	LowestValue   float64 `json:"lowest_value"`
	TotalReturn   float64 `json:"total_return"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	Volatility    float64 `json:"volatility"`
}

// TradesReport is the trade ledger of the latest run of a model.
type TradesReport struct {
	ModelID    string  `json:"model_type"`
	TotalBuys  int     `json:"total_buys"`
	TotalSells int     `json:"total_sells"`
	Trades     []Trade `json:"trades"`
}

// PortfolioReport is the equity curve of the latest run of a model with its stats.
type PortfolioReport struct {
	PortfolioStats
	ModelID   string              `json:"model_type"`
	Portfolio []PortfolioSnapshot `json:"portfolio"`
}

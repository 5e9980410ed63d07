package repository

import (
	"context"
	"time"

	"SignalSim/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Feed yields bar groups in strictly increasing timestamp order.
// Next returns io.EOF once the feed is exhausted.
type Feed interface {
	Next() (models.BarGroup, error)
}

// PriceLookup resolves the close price of an instrument at a timestamp.
type PriceLookup interface {
	Price(ts time.Time, instrument string) (decimal.Decimal, bool)
}

// SignalSource loads the predicted bars of one model and horizon.
type SignalSource interface {
	LoadRows(ctx context.Context, model string, horizon models.Horizon) ([]models.SignalRow, error)
}

// SignalStore is a SignalSource that also accepts ingested rows.
type SignalStore interface {
	SignalSource
	StoreBatch(ctx context.Context, rows []models.SignalRow) error
}

// EventStore persists simulation output and serves it back for the results API.
type EventStore interface {
	SaveRun(ctx context.Context, run models.RunSummary, trades []models.Trade, snaps []models.PortfolioSnapshot) error
	LatestTrades(ctx context.Context, modelID string) ([]models.Trade, error)
	LatestPortfolio(ctx context.Context, modelID string) ([]models.PortfolioSnapshot, error)
	Runs(ctx context.Context, modelID string, limit int) ([]models.RunSummary, error)
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher fans simulation output out to downstream consumers.
type EventPublisher interface {
	PublishRun(ctx context.Context, run models.RunSummary, trades []models.Trade, snaps []models.PortfolioSnapshot) error
	Close() error
}

// Notifier pushes run notifications to live subscribers.
type Notifier interface {
	Broadcast(v any)
}

type Metrics interface {
	RecordRun(model, status string)
	RecordTrades(model string, side models.Side, n int)
	RecordFinalValue(model string, value float64)
	RecordSignalsIngested(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

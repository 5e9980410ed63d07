package simulation

import (
	"errors"
	"fmt"
	"io"
	"time"

	"SignalSim/internal/domain/models"
	"SignalSim/internal/domain/repository"
	applogger "SignalSim/pkg/logger"

	"github.com/shopspring/decimal"
)

// Params configures one run.
type Params struct {
	ModelID              string
	StartingCapital      decimal.Decimal
	PositionSizeFraction decimal.Decimal
}

// Validate rejects parameters the engine cannot run with.
func (p Params) Validate() error {
	if p.ModelID == "" {
		return &ConfigurationError{Field: "model identifier", Reason: "is required"}
	}
	if !p.StartingCapital.IsPositive() {
		return &ConfigurationError{Field: "starting capital", Reason: fmt.Sprintf("must be > 0, got %s", p.StartingCapital)}
	}
	if !p.PositionSizeFraction.IsPositive() || p.PositionSizeFraction.GreaterThan(decimal.NewFromInt(1)) {
		return &ConfigurationError{Field: "position size fraction", Reason: fmt.Sprintf("must be in (0, 1], got %s", p.PositionSizeFraction)}
	}
	return nil
}

// Result is the ordered output of a run. Only fully applied bar groups are included,
// so a Result returned alongside an error still holds valid partial output.
type Result struct {
	ModelID   string
	Trades    []models.Trade
	Snapshots []models.PortfolioSnapshot
	Buys      int
	Sells     int
	Cash      decimal.Decimal
}

// FinalValue returns the last snapshot's value, or zero when nothing was emitted.
func (r *Result) FinalValue() decimal.Decimal {
	if len(r.Snapshots) == 0 {
		return decimal.Zero
	}
	return r.Snapshots[len(r.Snapshots)-1].TotalValue
}

// Engine folds a signal feed into trades and portfolio snapshots.
// It holds no run state; every Run builds its own PortfolioState, so one Engine
// may serve concurrent runs.
type Engine struct {
	l *applogger.Logger
}

type Option func(*Engine)

// WithLogger enables per-trade debug logging.
func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) { e.l = l }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run walks feed group by group. prices resolves instruments with open positions
// that have no bar in the current group; it may be nil when the feed is dense.
func (e *Engine) Run(feed repository.Feed, prices repository.PriceLookup, p Params) (*Result, error) {
	res := &Result{ModelID: p.ModelID}
	if err := p.Validate(); err != nil {
		return res, err
	}
	state := NewPortfolioState(p.StartingCapital)
	res.Cash = state.Cash()

	var last time.Time
	for n := 0; ; n++ {
		g, err := feed.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("feed: %w", err)
		}
		if n > 0 && !g.Timestamp.After(last) {
			return res, integrityErr(g.Timestamp, "", "bar group not after previous group %s", last.Format(time.RFC3339))
		}
		last = g.Timestamp

		trades, snap, err := e.step(state, g, prices, p)
		if err != nil {
			return res, err
		}
		res.Trades = append(res.Trades, trades...)
		res.Snapshots = append(res.Snapshots, snap)
		res.Buys, res.Sells = state.BuyCount(), state.SellCount()
		res.Cash = state.Cash()
	}
	return res, nil
}

// step applies one bar group and values the portfolio at its timestamp.
func (e *Engine) step(state *PortfolioState, g models.BarGroup, prices repository.PriceLookup, p Params) ([]models.Trade, models.PortfolioSnapshot, error) {
	ts := g.Timestamp
	if err := validateGroup(g); err != nil {
		return nil, models.PortfolioSnapshot{}, err
	}

	var trades []models.Trade
	groupPrices := make(map[string]decimal.Decimal, len(g.Bars))
	for _, b := range g.Bars {
		groupPrices[b.Instrument] = b.Close
		state.touch(b.Instrument)

		switch {
		case b.Signal == models.SignalBuy && state.Cash().IsPositive():
			shares := state.buy(b.Instrument, b.Close, p.PositionSizeFraction)
			if !shares.IsPositive() {
				// notional below one share increment: no trade, buy count unchanged
				continue
			}
			trades = append(trades, e.trade(p.ModelID, b, models.SideBuy, shares))
		case b.Signal == models.SignalSell && state.Shares(b.Instrument).IsPositive():
			held := state.sell(b.Instrument, b.Close)
			trades = append(trades, e.trade(p.ModelID, b, models.SideSell, held))
		}
	}

	total := state.Cash()
	for _, inst := range state.order {
		shares := state.positions[inst]
		if !shares.IsPositive() {
			continue
		}
		price, ok := groupPrices[inst]
		if !ok && prices != nil {
			price, ok = prices.Price(ts, inst)
		}
		if !ok {
			return nil, models.PortfolioSnapshot{}, integrityErr(ts, inst, "missing price for open position")
		}
		if !price.IsPositive() {
			return nil, models.PortfolioSnapshot{}, integrityErr(ts, inst, "invalid price %s for open position", price)
		}
		total = total.Add(shares.Mul(price))
	}

	return trades, models.PortfolioSnapshot{ModelID: p.ModelID, Timestamp: ts, TotalValue: total}, nil
}

func (e *Engine) trade(modelID string, b models.SignalBar, side models.Side, shares decimal.Decimal) models.Trade {
	t := models.Trade{
		ModelID:    modelID,
		Instrument: b.Instrument,
		Side:       side,
		Timestamp:  b.Timestamp,
		Price:      b.Close,
		Shares:     shares,
	}
	if e.l != nil {
		e.l.Debug("trade executed",
			applogger.String("model", modelID),
			applogger.String("ticker", t.Instrument),
			applogger.String("side", string(side)),
			applogger.String("price", t.Price.String()),
			applogger.String("shares", t.Shares.String()),
		)
	}
	return t
}

// validateGroup checks the whole group up front so a bad tuple never leaves
// the group half applied.
func validateGroup(g models.BarGroup) error {
	seen := make(map[string]struct{}, len(g.Bars))
	for _, b := range g.Bars {
		if b.Instrument == "" {
			return integrityErr(g.Timestamp, "", "bar without instrument")
		}
		if !b.Timestamp.Equal(g.Timestamp) {
			return integrityErr(g.Timestamp, b.Instrument, "bar timestamp %s outside its group", b.Timestamp.Format(time.RFC3339))
		}
		if _, dup := seen[b.Instrument]; dup {
			return integrityErr(g.Timestamp, b.Instrument, "duplicate bar in group")
		}
		seen[b.Instrument] = struct{}{}
		if !b.Close.IsPositive() {
			return integrityErr(g.Timestamp, b.Instrument, "non-positive price %s", b.Close)
		}
		if !b.Signal.Valid() {
			return integrityErr(g.Timestamp, b.Instrument, "unrecognized signal %s", b.Signal)
		}
	}
	return nil
}

package repository

import (
	"io"
	"math"
	"sort"
	"time"

	"SignalSim/internal/domain/models"
	"SignalSim/internal/services/simulation"

	"github.com/shopspring/decimal"
)

// SliceFeed serves in-memory signal rows as bar groups and answers price lookups over them.
// Rows are grouped by timestamp and ordered by instrument within a group. Conversion and
// validation happen per group, as Next reaches it, so groups before a bad row still run.
type SliceFeed struct {
	times  []time.Time
	groups map[int64][]models.SignalRow
	next   int

	history   map[string][]pricePoint
	staleness time.Duration
}

type pricePoint struct {
	ts    time.Time
	price decimal.Decimal
}

type FeedOption func(*SliceFeed)

// WithCarryForward lets Price fall back to the latest close at most maxAge before the asked time.
// Without it a lookup only matches an exact timestamp.
func WithCarryForward(maxAge time.Duration) FeedOption {
	return func(f *SliceFeed) { f.staleness = maxAge }
}

// NewSliceFeed indexes rows. The slice is not retained.
func NewSliceFeed(rows []models.SignalRow, opts ...FeedOption) *SliceFeed {
	f := &SliceFeed{
		groups:  make(map[int64][]models.SignalRow),
		history: make(map[string][]pricePoint),
	}
	for _, opt := range opts {
		opt(f)
	}

	for _, r := range rows {
		ts := r.Timestamp.UTC()
		key := ts.UnixNano()
		if _, ok := f.groups[key]; !ok {
			f.times = append(f.times, ts)
		}
		f.groups[key] = append(f.groups[key], r)

		if validPrice(r.Close) {
			f.history[r.Ticker] = append(f.history[r.Ticker], pricePoint{ts: ts, price: decimal.NewFromFloat(r.Close)})
		}
	}

	sort.Slice(f.times, func(i, j int) bool { return f.times[i].Before(f.times[j]) })
	for _, g := range f.groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Ticker < g[j].Ticker })
	}
	for _, h := range f.history {
		sort.SliceStable(h, func(i, j int) bool { return h[i].ts.Before(h[j].ts) })
	}
	return f
}

// Len returns the number of distinct timestamps.
func (f *SliceFeed) Len() int { return len(f.times) }

// Next returns the next bar group, or io.EOF.
func (f *SliceFeed) Next() (models.BarGroup, error) {
	if f.next >= len(f.times) {
		return models.BarGroup{}, io.EOF
	}
	ts := f.times[f.next]
	f.next++

	rows := f.groups[ts.UnixNano()]
	g := models.BarGroup{Timestamp: ts, Bars: make([]models.SignalBar, 0, len(rows))}
	for i, r := range rows {
		if i > 0 && rows[i-1].Ticker == r.Ticker {
			return g, &simulation.DataIntegrityError{Timestamp: ts, Instrument: r.Ticker, Reason: "duplicate row for timestamp"}
		}
		if !validPrice(r.Close) {
			return g, &simulation.DataIntegrityError{Timestamp: ts, Instrument: r.Ticker, Reason: "close price must be finite and > 0"}
		}
		sig, err := models.ParseSignalCode(r.Signal)
		if err != nil {
			return g, &simulation.DataIntegrityError{Timestamp: ts, Instrument: r.Ticker, Reason: err.Error()}
		}
		g.Bars = append(g.Bars, models.SignalBar{
			PriceBar: models.PriceBar{Timestamp: ts, Instrument: r.Ticker, Close: decimal.NewFromFloat(r.Close)},
			Signal:   sig,
		})
	}
	return g, nil
}

// Price returns the close of instrument at ts, or the latest earlier close within the carry-forward window.
func (f *SliceFeed) Price(ts time.Time, instrument string) (decimal.Decimal, bool) {
	h := f.history[instrument]
	// first point after ts
	i := sort.Search(len(h), func(i int) bool { return h[i].ts.After(ts) })
	if i == 0 {
		return decimal.Zero, false
	}
	p := h[i-1]
	if p.ts.Equal(ts) || (f.staleness > 0 && ts.Sub(p.ts) <= f.staleness) {
		return p.price, true
	}
	return decimal.Zero, false
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

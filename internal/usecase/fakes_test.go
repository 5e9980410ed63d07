package usecase

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"SignalSim/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func signalRow(h int, ticker string, px float64, sig models.Signal) models.SignalRow {
	return models.SignalRow{Ticker: ticker, Timestamp: t0.Add(time.Duration(h) * time.Hour), Close: px, Signal: int(sig)}
}

// roundTrip buys AAPL at 100 and sells it at 110.
func roundTrip() []models.SignalRow {
	return []models.SignalRow{
		signalRow(0, "AAPL", 100, models.SignalBuy),
		signalRow(1, "AAPL", 110, models.SignalSell),
	}
}

type fakeSource struct {
	rows  map[string][]models.SignalRow
	errs  map[string]error
	block bool
}

func (s *fakeSource) LoadRows(ctx context.Context, model string, h models.Horizon) ([]models.SignalRow, error) {
	id := models.ModelIdentifier(model, h)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := s.errs[id]; err != nil {
		return nil, err
	}
	return s.rows[id], nil
}

type fakeSignalStore struct {
	fakeSource
	mu     sync.Mutex
	stored []models.SignalRow
	err    error
}

func (s *fakeSignalStore) StoreBatch(_ context.Context, rows []models.SignalRow) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, rows...)
	return nil
}

type savedRun struct {
	run    models.RunSummary
	trades []models.Trade
	snaps  []models.PortfolioSnapshot
}

type fakeEventStore struct {
	mu    sync.Mutex
	saved []savedRun
	reads int
}

func (s *fakeEventStore) SaveRun(_ context.Context, run models.RunSummary, trades []models.Trade, snaps []models.PortfolioSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedRun{run, trades, snaps})
	return nil
}

func (s *fakeEventStore) latest(modelID string) *savedRun {
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].run.ModelID == modelID && s.saved[i].run.Status == models.RunCompleted {
			return &s.saved[i]
		}
	}
	return nil
}

func (s *fakeEventStore) LatestTrades(_ context.Context, modelID string) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if r := s.latest(modelID); r != nil {
		return r.trades, nil
	}
	return nil, nil
}

func (s *fakeEventStore) LatestPortfolio(_ context.Context, modelID string) ([]models.PortfolioSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if r := s.latest(modelID); r != nil {
		return r.snaps, nil
	}
	return nil, nil
}

func (s *fakeEventStore) Runs(_ context.Context, modelID string, limit int) ([]models.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	var out []models.RunSummary
	for i := len(s.saved) - 1; i >= 0 && len(out) < limit; i-- {
		if s.saved[i].run.ModelID == modelID {
			out = append(out, s.saved[i].run)
		}
	}
	return out, nil
}

func (s *fakeEventStore) Health(context.Context) error { return nil }
func (s *fakeEventStore) Close() error                 { return nil }

type fakePublisher struct {
	mu   sync.Mutex
	runs []models.RunSummary
}

func (p *fakePublisher) PublishRun(_ context.Context, run models.RunSummary, _ []models.Trade, _ []models.PortfolioSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, run)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeNotifier struct {
	mu  sync.Mutex
	got []any
}

func (n *fakeNotifier) Broadcast(v any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, v)
}

type fakeMetrics struct {
	mu       sync.Mutex
	runs     map[string]int
	errors   map[string]int
	ingested int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{runs: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordRun(model, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[model+"/"+status]++
}

func (m *fakeMetrics) RecordTrades(string, models.Side, int) {}
func (m *fakeMetrics) RecordFinalValue(string, float64)      {}
func (m *fakeMetrics) RecordLatency(string, float64)         {}

func (m *fakeMetrics) RecordSignalsIngested(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested += n
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

// syncBuffer lets concurrent runs share one log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var errBoom = fmt.Errorf("boom")

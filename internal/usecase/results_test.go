package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalSim/internal/domain/models"
	"SignalSim/pkg/cache"

	"github.com/shopspring/decimal"
)

func seededResults(t *testing.T) (*ResultsUseCase, *fakeEventStore, *cache.MemoryCache) {
	t.Helper()
	store := &fakeEventStore{}
	src := &fakeSource{rows: map[string][]models.SignalRow{"LSTM_CE_6H": roundTrip()}}
	r := NewSimulationRunner(src, newFakeMetrics(), runnerConfig(), WithEventStore(store))
	if _, err := r.Run(context.Background(), RunSpec{"LSTM_CE", 6}, decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("run: %v", err)
	}
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	return NewResultsUseCase(store, mem, time.Minute, newFakeMetrics()), store, mem
}

func TestResultsTradesAndPortfolio(t *testing.T) {
	uc, store, _ := seededResults(t)
	ctx := context.Background()

	tr, err := uc.Trades(ctx, "LSTM_CE_6H")
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if tr.TotalBuys != 1 || tr.TotalSells != 1 || len(tr.Trades) != 2 {
		t.Fatalf("unexpected report %+v", tr)
	}

	pf, err := uc.Portfolio(ctx, "LSTM_CE_6H")
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if pf.StartingValue != 10000 || pf.CurrentValue != 10100 || pf.HighestValue != 10100 || len(pf.Portfolio) != 2 {
		t.Fatalf("unexpected portfolio %+v", pf)
	}

	reads := store.reads
	if _, err := uc.Portfolio(ctx, "LSTM_CE_6H"); err != nil {
		t.Fatalf("cached portfolio: %v", err)
	}
	if store.reads != reads {
		t.Fatalf("second read should be served from cache")
	}
}

func TestResultsUnknownModel(t *testing.T) {
	uc, _, mem := seededResults(t)
	if _, err := uc.Trades(context.Background(), "NOPE_6H"); !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
	if _, err := uc.Portfolio(context.Background(), "NOPE_6H"); !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("misses must not be cached")
	}
	runs, err := uc.Runs(context.Background(), "LSTM_CE_6H", 10)
	if err != nil || len(runs) != 1 || runs[0].Status != models.RunCompleted {
		t.Fatalf("runs: %v %+v", err, runs)
	}
}

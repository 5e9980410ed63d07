package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"SignalSim/internal/domain/models"
	"SignalSim/internal/services/simulation"
	"SignalSim/pkg/cache"
	applogger "SignalSim/pkg/logger"

	"github.com/shopspring/decimal"
)

func runnerConfig(runs ...RunSpec) RunnerConfig {
	return RunnerConfig{
		StartingCapital: decimal.NewFromInt(10000),
		PositionSize:    decimal.RequireFromString("0.1"),
		Parallelism:     2,
		Runs:            runs,
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	src := &fakeSource{
		rows: map[string][]models.SignalRow{
			"LSTM_CE_6H": roundTrip(),
			"XGBOOST_6H": {signalRow(0, "MSFT", 400, models.SignalHold), signalRow(0, "MSFT", 401, models.SignalBuy)},
		},
		errs: map[string]error{"LSTM_FL_6H": errBoom},
	}
	store, pub, note, met := &fakeEventStore{}, &fakePublisher{}, &fakeNotifier{}, newFakeMetrics()
	logs := &syncBuffer{}
	r := NewSimulationRunner(src, met,
		runnerConfig(RunSpec{"LSTM_CE", 6}, RunSpec{"LSTM_FL", 6}, RunSpec{"XGBOOST", 6}),
		WithEventStore(store), WithEventPublisher(pub), WithNotifier(note),
		WithRunnerLogger(applogger.NewWriter(logs, "info")),
	)

	sums := r.RunBatch(context.Background(), BatchParams{})
	if len(sums) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(sums))
	}
	ok := sums[0]
	if ok.ModelID != "LSTM_CE_6H" || ok.Status != models.RunCompleted || ok.Buys != 1 || ok.Sells != 1 || ok.Snapshots != 2 {
		t.Fatalf("unexpected summary %+v", ok)
	}
	if !ok.FinalValue.Equal(decimal.NewFromInt(10100)) {
		t.Fatalf("final value %s", ok.FinalValue)
	}
	if sums[1].Status != models.RunFailed || !strings.Contains(sums[1].Error, "boom") {
		t.Fatalf("expected load failure, got %+v", sums[1])
	}
	if sums[2].Status != models.RunFailed || !strings.Contains(sums[2].Error, "duplicate") {
		t.Fatalf("expected integrity failure, got %+v", sums[2])
	}

	if len(store.saved) != 3 {
		t.Fatalf("every run is persisted, got %d", len(store.saved))
	}
	if len(pub.runs) != 1 || pub.runs[0].ModelID != "LSTM_CE_6H" {
		t.Fatalf("only completed runs are published: %+v", pub.runs)
	}
	if len(note.got) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(note.got))
	}
	if met.runs["LSTM_CE_6H/completed"] != 1 || met.errorCount("load") != 1 || met.errorCount("data_integrity") != 1 {
		t.Fatalf("unexpected metrics %+v %+v", met.runs, met.errors)
	}
	if !strings.Contains(logs.String(), "LSTM_CE_6H Simulation Complete: Buys: 1, Sells: 1") {
		t.Fatalf("missing completion line in %s", logs.String())
	}
}

func TestRunKeepsPartialOutputOnFailure(t *testing.T) {
	// the open AAPL position has no price at hour 1
	src := &fakeSource{rows: map[string][]models.SignalRow{"LSTM_CE_24H": {
		signalRow(0, "AAPL", 100, models.SignalBuy),
		signalRow(1, "MSFT", 400, models.SignalHold),
	}}}
	store := &fakeEventStore{}
	r := NewSimulationRunner(src, newFakeMetrics(), runnerConfig(), WithEventStore(store))

	sum, err := r.Run(context.Background(), RunSpec{"LSTM_CE", 24}, decimal.Zero, decimal.Zero)
	var die *simulation.DataIntegrityError
	if !errors.As(err, &die) || die.Instrument != "AAPL" {
		t.Fatalf("expected missing price error, got %v", err)
	}
	if sum.Status != models.RunFailed || sum.Buys != 1 || sum.Snapshots != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(store.saved) != 1 || len(store.saved[0].trades) != 1 || len(store.saved[0].snaps) != 1 {
		t.Fatalf("partial output not persisted: %+v", store.saved)
	}
}

func TestRunCarriesPricesForwardWhenConfigured(t *testing.T) {
	src := &fakeSource{rows: map[string][]models.SignalRow{"LSTM_CE_24H": {
		signalRow(0, "AAPL", 100, models.SignalBuy),
		signalRow(1, "MSFT", 400, models.SignalHold),
	}}}
	cfg := runnerConfig()
	cfg.PriceStaleness = time.Hour
	r := NewSimulationRunner(src, newFakeMetrics(), cfg)

	sum, err := r.Run(context.Background(), RunSpec{"LSTM_CE", 24}, decimal.Zero, decimal.Zero)
	if err != nil || sum.Snapshots != 2 || !sum.FinalValue.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("carry-forward run: %v %+v", err, sum)
	}
}

func TestRunAppliesOverridesAndTimeout(t *testing.T) {
	src := &fakeSource{rows: map[string][]models.SignalRow{"LSTM_CE_6H": roundTrip()}}
	r := NewSimulationRunner(src, newFakeMetrics(), runnerConfig())
	sum, err := r.Run(context.Background(), RunSpec{"LSTM_CE", 6}, decimal.NewFromInt(1000), decimal.NewFromInt(1))
	if err != nil || !sum.FinalValue.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("override run: %v %s", err, sum.FinalValue)
	}

	bad, err := r.Run(context.Background(), RunSpec{"LSTM_CE", 6}, decimal.NewFromInt(1000), decimal.NewFromInt(2))
	var cfe *simulation.ConfigurationError
	if !errors.As(err, &cfe) || bad.Snapshots != 0 {
		t.Fatalf("expected configuration error, got %v", err)
	}

	met := newFakeMetrics()
	cfg := runnerConfig()
	cfg.RunTimeout = 20 * time.Millisecond
	slow := NewSimulationRunner(&fakeSource{block: true}, met, cfg)
	sum, err = slow.Run(context.Background(), RunSpec{"LSTM_CE", 6}, decimal.Zero, decimal.Zero)
	if !errors.Is(err, context.DeadlineExceeded) || sum.Status != models.RunFailed {
		t.Fatalf("expected timeout, got %v", err)
	}
	if met.errorCount("timeout") != 1 {
		t.Fatalf("timeout not recorded: %+v", met.errors)
	}
}

func TestRunInvalidatesCachedResults(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	store := &fakeEventStore{}
	results := NewResultsUseCase(store, mem, time.Minute, newFakeMetrics())
	src := &fakeSource{rows: map[string][]models.SignalRow{"LSTM_CE_6H": roundTrip()}}
	r := NewSimulationRunner(src, newFakeMetrics(), runnerConfig(), WithEventStore(store), WithInvalidator(results))

	ctx := context.Background()
	if _, err := r.Run(ctx, RunSpec{"LSTM_CE", 6}, decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := results.Trades(ctx, "LSTM_CE_6H"); err != nil {
		t.Fatalf("trades: %v", err)
	}
	if mem.Len() != 1 {
		t.Fatalf("expected cached report, have %d entries", mem.Len())
	}

	if _, err := r.Run(ctx, RunSpec{"LSTM_CE", 6}, decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("new run should drop cached results, have %d entries", mem.Len())
	}
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"data_integrity": fmt.Errorf("feed: %w", &simulation.DataIntegrityError{Timestamp: t0, Reason: "bad"}),
		"configuration":  &simulation.ConfigurationError{Field: "starting capital", Reason: "must be > 0"},
		"timeout":        fmt.Errorf("simulation: %w", context.DeadlineExceeded),
		"canceled":       fmt.Errorf("%w: %w", errLoadSignals, context.Canceled),
		"load":           fmt.Errorf("%w: %w", errLoadSignals, errBoom),
		"feed":           fmt.Errorf("feed: %w", io.ErrUnexpectedEOF),
	}
	for want, err := range cases {
		if got := errorKind(err); got != want {
			t.Fatalf("errorKind(%v) = %s, want %s", err, got, want)
		}
	}
}

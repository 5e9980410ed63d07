package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalSim/internal/domain/models"
	domrepo "SignalSim/internal/domain/repository"
	"SignalSim/internal/repository"
	"SignalSim/internal/services/simulation"
	applogger "SignalSim/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RunSpec names one (model, horizon) pair.
type RunSpec struct {
	Model   string         `json:"model"`
	Horizon models.Horizon `json:"horizon_h"`
}

func (s RunSpec) ModelID() string { return models.ModelIdentifier(s.Model, s.Horizon) }

// RunnerConfig holds the defaults applied to every run.
type RunnerConfig struct {
	StartingCapital decimal.Decimal
	PositionSize    decimal.Decimal
	Parallelism     int
	RunTimeout      time.Duration
	PriceStaleness  time.Duration
	Runs            []RunSpec
}

// BatchParams overrides the configured defaults for one batch. Zero values keep the default.
type BatchParams struct {
	Runs            []RunSpec       `json:"runs"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
	PositionSize    decimal.Decimal `json:"position_size"`
}

// ResultsInvalidator drops cached results of a model once a newer run is stored.
type ResultsInvalidator interface {
	Invalidate(ctx context.Context, modelID string) error
}

// SimulationRunner loads signals, runs the engine and fans the output out to
// storage, the event bus and live subscribers.
type SimulationRunner struct {
	source    domrepo.SignalSource
	metrics   domrepo.Metrics
	engine    *simulation.Engine
	cfg       RunnerConfig
	l         *applogger.Logger
	store     domrepo.EventStore
	publisher domrepo.EventPublisher
	notifier  domrepo.Notifier
	cache     ResultsInvalidator
	now       func() time.Time
}

type RunnerOption func(*SimulationRunner)

func WithRunnerLogger(l *applogger.Logger) RunnerOption {
	return func(r *SimulationRunner) { r.l = l }
}

// WithEventStore persists every run, failed ones included.
func WithEventStore(s domrepo.EventStore) RunnerOption {
	return func(r *SimulationRunner) { r.store = s }
}

// WithEventPublisher publishes completed runs.
func WithEventPublisher(p domrepo.EventPublisher) RunnerOption {
	return func(r *SimulationRunner) { r.publisher = p }
}

func WithNotifier(n domrepo.Notifier) RunnerOption {
	return func(r *SimulationRunner) { r.notifier = n }
}

func WithInvalidator(c ResultsInvalidator) RunnerOption {
	return func(r *SimulationRunner) { r.cache = c }
}

func NewSimulationRunner(source domrepo.SignalSource, metrics domrepo.Metrics, cfg RunnerConfig, opts ...RunnerOption) *SimulationRunner {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	r := &SimulationRunner{
		source:  source,
		metrics: metrics,
		cfg:     cfg,
		l:       applogger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.engine = simulation.NewEngine(simulation.WithLogger(r.l))
	return r
}

// Runs returns the configured (model, horizon) pairs.
func (r *SimulationRunner) Runs() []RunSpec {
	out := make([]RunSpec, len(r.cfg.Runs))
	copy(out, r.cfg.Runs)
	return out
}

// RunBatch runs every pair concurrently, at most Parallelism at a time.
// A failed pair does not stop the others; summaries come back in input order.
func (r *SimulationRunner) RunBatch(ctx context.Context, p BatchParams) []models.RunSummary {
	runs := p.Runs
	if len(runs) == 0 {
		runs = r.cfg.Runs
	}
	out := make([]models.RunSummary, len(runs))

	var g errgroup.Group
	g.SetLimit(r.cfg.Parallelism)
	for i, spec := range runs {
		g.Go(func() error {
			out[i], _ = r.Run(ctx, spec, p.StartingCapital, p.PositionSize)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, s := range out {
		if s.Status != models.RunCompleted {
			failed++
		}
	}
	r.l.Info("simulation batch finished", applogger.Int("runs", len(out)), applogger.Int("failed", failed))
	return out
}

// Run executes one pair. The returned summary is always filled in, with status failed on error.
func (r *SimulationRunner) Run(ctx context.Context, spec RunSpec, capital, fraction decimal.Decimal) (models.RunSummary, error) {
	if capital.IsZero() {
		capital = r.cfg.StartingCapital
	}
	if fraction.IsZero() {
		fraction = r.cfg.PositionSize
	}
	modelID := spec.ModelID()
	sum := models.RunSummary{
		RunID:     uuid.NewString(),
		ModelID:   modelID,
		Model:     spec.Model,
		Horizon:   spec.Horizon,
		StartedAt: r.now().UTC(),
	}
	log := r.l.With(applogger.String("model", modelID), applogger.String("run_id", sum.RunID))
	log.Info("simulation started")

	res, err := r.execute(ctx, spec, simulation.Params{
		ModelID:              modelID,
		StartingCapital:      capital,
		PositionSizeFraction: fraction,
	})
	sum.FinishedAt = r.now().UTC()
	sum.Buys, sum.Sells = res.Buys, res.Sells
	sum.Snapshots = len(res.Snapshots)
	sum.FinalValue = res.FinalValue()
	sum.Status = models.RunCompleted
	if err != nil {
		sum.Status = models.RunFailed
		sum.Error = err.Error()
	}

	r.metrics.RecordLatency("simulation_run", sum.FinishedAt.Sub(sum.StartedAt).Seconds())
	r.metrics.RecordRun(modelID, string(sum.Status))
	r.metrics.RecordTrades(modelID, models.SideBuy, sum.Buys)
	r.metrics.RecordTrades(modelID, models.SideSell, sum.Sells)

	if err != nil {
		r.metrics.RecordError(errorKind(err))
		log.Error("simulation failed", applogger.Error(err), applogger.Int("snapshots", sum.Snapshots))
	} else {
		r.metrics.RecordFinalValue(modelID, sum.FinalValue.InexactFloat64())
		log.Info(fmt.Sprintf("%s Simulation Complete: Buys: %d, Sells: %d", modelID, sum.Buys, sum.Sells),
			applogger.String("final_value", sum.FinalValue.StringFixed(2)),
			applogger.Duration("took_ms", sum.FinishedAt.Sub(sum.StartedAt)),
		)
	}

	if perr := r.deliver(ctx, log, sum, res); perr != nil && err == nil {
		err = perr
	}
	return sum, err
}

// execute loads the pair's signals and folds them. The timeout covers both; the fold itself
// is not interrupted, its result is discarded once the deadline passes.
func (r *SimulationRunner) execute(ctx context.Context, spec RunSpec, p simulation.Params) (*simulation.Result, error) {
	empty := &simulation.Result{ModelID: p.ModelID, Cash: p.StartingCapital}
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	rows, err := r.source.LoadRows(ctx, spec.Model, spec.Horizon)
	if err != nil {
		return empty, fmt.Errorf("%w: %w", errLoadSignals, err)
	}
	feed := repository.NewSliceFeed(rows, repository.WithCarryForward(r.cfg.PriceStaleness))

	type outcome struct {
		res *simulation.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.engine.Run(feed, feed, p)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return empty, fmt.Errorf("simulation: %w", ctx.Err())
	}
}

// deliver persists, publishes and announces a finished run. Storage errors are returned,
// publish and notify failures are only logged.
func (r *SimulationRunner) deliver(ctx context.Context, log *applogger.Logger, sum models.RunSummary, res *simulation.Result) error {
	// the run context may already be spent by a timeout; the audit trail still gets written
	ctx = context.WithoutCancel(ctx)

	if r.store != nil {
		start := time.Now()
		if err := r.store.SaveRun(ctx, sum, res.Trades, res.Snapshots); err != nil {
			r.metrics.RecordError("persist")
			log.Error("persist run failed", applogger.Error(err))
			return fmt.Errorf("persist run: %w", err)
		}
		r.metrics.RecordLatency("persist_run", time.Since(start).Seconds())
		if r.cache != nil && sum.Status == models.RunCompleted {
			if err := r.cache.Invalidate(ctx, sum.ModelID); err != nil {
				log.Warn("results cache invalidation failed", applogger.Error(err))
			}
		}
	}

	if r.publisher != nil && sum.Status == models.RunCompleted {
		if err := r.publisher.PublishRun(ctx, sum, res.Trades, res.Snapshots); err != nil {
			r.metrics.RecordError("publish")
			log.Warn("publish run events failed", applogger.Error(err))
		}
	}

	if r.notifier != nil {
		r.notifier.Broadcast(sum)
	}
	return nil
}

// errLoadSignals marks failures of the signal source, as opposed to the fold.
var errLoadSignals = errors.New("load signals")

func errorKind(err error) string {
	var die *simulation.DataIntegrityError
	var cfe *simulation.ConfigurationError
	switch {
	case errors.As(err, &die):
		return "data_integrity"
	case errors.As(err, &cfe):
		return "configuration"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, errLoadSignals):
		return "load"
	default:
		return "feed"
	}
}

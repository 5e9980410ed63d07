package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"SignalSim/internal/domain/models"
	"SignalSim/pkg/cache"
	applogger "SignalSim/pkg/logger"
	"SignalSim/pkg/queue"

	"github.com/shopspring/decimal"
)

// SimulationJobType is the queue message type of a requested batch.
const SimulationJobType = "simulation.run"

// ErrBatchInProgress is returned while an identical batch holds the lock.
var ErrBatchInProgress = errors.New("an identical simulation batch is already running")

// PlanRuns expands a request against the configured pairs. Empty models or horizons mean
// all configured ones; anything not configured is refused.
func PlanRuns(configured []RunSpec, req models.SimulationRequest) ([]RunSpec, error) {
	byModel := make(map[string][]models.Horizon)
	var order []string
	for _, s := range configured {
		if _, ok := byModel[s.Model]; !ok {
			order = append(order, s.Model)
		}
		byModel[s.Model] = append(byModel[s.Model], s.Horizon)
	}

	wantModels := req.Models
	if len(wantModels) == 0 {
		wantModels = order
	}
	var out []RunSpec
	for _, m := range wantModels {
		horizons, ok := byModel[m]
		if !ok {
			return nil, fmt.Errorf("model %q is not configured", m)
		}
		if len(req.Horizons) == 0 {
			for _, h := range horizons {
				out = append(out, RunSpec{Model: m, Horizon: h})
			}
			continue
		}
		for _, h := range req.Horizons {
			if !containsHorizon(horizons, models.Horizon(h)) {
				return nil, fmt.Errorf("horizon %dH is not configured for %s", h, m)
			}
			out = append(out, RunSpec{Model: m, Horizon: models.Horizon(h)})
		}
	}
	return out, nil
}

func containsHorizon(hs []models.Horizon, h models.Horizon) bool {
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}

// NewBatchParams builds the queue payload for a planned request.
func NewBatchParams(runs []RunSpec, req models.SimulationRequest) BatchParams {
	return BatchParams{
		Runs:            runs,
		StartingCapital: decimal.NewFromFloat(req.StartingCapital),
		PositionSize:    decimal.NewFromFloat(req.PositionSize),
	}
}

// SimulationJob runs queued batches. A lock keyed by the batch's pairs keeps
// a double-submitted batch from running twice at the same time.
type SimulationJob struct {
	runner  *SimulationRunner
	locks   cache.Service
	lockTTL time.Duration
	l       *applogger.Logger
}

func NewSimulationJob(runner *SimulationRunner, locks cache.Service, lockTTL time.Duration, l *applogger.Logger) *SimulationJob {
	if l == nil {
		l = applogger.Nop()
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &SimulationJob{runner: runner, locks: locks, lockTTL: lockTTL, l: l}
}

func (j *SimulationJob) Name() string { return "simulation-batch" }

func (j *SimulationJob) Type() string { return SimulationJobType }

func (j *SimulationJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[BatchParams](payload)
	if err != nil {
		return err
	}

	key := batchLockKey(p.Runs)
	ok, err := j.locks.TryLock(ctx, key, j.lockTTL)
	if err != nil {
		return fmt.Errorf("batch lock: %w", err)
	}
	if !ok {
		return ErrBatchInProgress
	}
	defer func() {
		if err := j.locks.Unlock(context.WithoutCancel(ctx), key); err != nil {
			j.l.Warn("batch unlock failed", applogger.String("key", key), applogger.Error(err))
		}
	}()

	sums := j.runner.RunBatch(ctx, *p)
	if err := ctx.Err(); err != nil {
		// shutdown interrupted the batch; let the queue hand it to the next worker
		return err
	}
	for _, s := range sums {
		if s.Status != models.RunCompleted {
			j.l.Warn("batch finished with failed runs", applogger.String("model", s.ModelID), applogger.String("error", s.Error))
		}
	}
	return nil
}

func batchLockKey(runs []RunSpec) string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ModelID())
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		ids = append(ids, "all")
	}
	return cache.GenerateKeyWithParams("lock:simulation", strings.Join(ids, ","))
}

var _ queue.Job = (*SimulationJob)(nil)

package usecase

import (
	"context"
	"errors"
	"time"

	"SignalSim/internal/domain/models"
	domrepo "SignalSim/internal/domain/repository"
	"SignalSim/internal/services/performance"
	"SignalSim/pkg/cache"
)

const resultsCachePrefix = "results"

// ErrNoResults means the model has no completed run with data.
var ErrNoResults = errors.New("no results for model")

// ResultsUseCase serves the latest completed run of a model, cached per model.
type ResultsUseCase struct {
	store   domrepo.EventStore
	cache   cache.Service
	ttl     time.Duration
	metrics domrepo.Metrics
}

func NewResultsUseCase(store domrepo.EventStore, c cache.Service, ttl time.Duration, metrics domrepo.Metrics) *ResultsUseCase {
	return &ResultsUseCase{store: store, cache: c, ttl: ttl, metrics: metrics}
}

// Trades returns the trade ledger with its buy and sell totals.
func (uc *ResultsUseCase) Trades(ctx context.Context, modelID string) (models.TradesReport, error) {
	key := cache.GenerateKeyWithParams(resultsCachePrefix, "trades", modelID)
	rep, _, err := cache.GetOrLoad(ctx, uc.cache, key, uc.ttl, func(ctx context.Context) (models.TradesReport, error) {
		trades, err := uc.store.LatestTrades(ctx, modelID)
		if err != nil {
			return models.TradesReport{}, err
		}
		if len(trades) == 0 {
			return models.TradesReport{}, ErrNoResults
		}
		rep := models.TradesReport{ModelID: modelID, Trades: trades}
		for _, t := range trades {
			if t.Side == models.SideBuy {
				rep.TotalBuys++
			} else {
				rep.TotalSells++
			}
		}
		return rep, nil
	})
	uc.recordLookup("trades", err)
	return rep, err
}

// Portfolio returns the equity curve with its summary statistics.
func (uc *ResultsUseCase) Portfolio(ctx context.Context, modelID string) (models.PortfolioReport, error) {
	key := cache.GenerateKeyWithParams(resultsCachePrefix, "portfolio", modelID)
	rep, _, err := cache.GetOrLoad(ctx, uc.cache, key, uc.ttl, func(ctx context.Context) (models.PortfolioReport, error) {
		snaps, err := uc.store.LatestPortfolio(ctx, modelID)
		if err != nil {
			return models.PortfolioReport{}, err
		}
		if len(snaps) == 0 {
			return models.PortfolioReport{}, ErrNoResults
		}
		return models.PortfolioReport{
			PortfolioStats: performance.Compute(snaps),
			ModelID:        modelID,
			Portfolio:      snaps,
		}, nil
	})
	uc.recordLookup("portfolio", err)
	return rep, err
}

// Runs lists recent run summaries, newest first. Failed runs are included.
func (uc *ResultsUseCase) Runs(ctx context.Context, modelID string, limit int) ([]models.RunSummary, error) {
	key := cache.GenerateKeyWithParams(resultsCachePrefix, "runs", limit, modelID)
	runs, _, err := cache.GetOrLoad(ctx, uc.cache, key, uc.ttl, func(ctx context.Context) ([]models.RunSummary, error) {
		return uc.store.Runs(ctx, modelID, limit)
	})
	uc.recordLookup("runs", err)
	return runs, err
}

// Invalidate drops every cached result of modelID.
func (uc *ResultsUseCase) Invalidate(ctx context.Context, modelID string) error {
	return uc.cache.DeleteByPattern(ctx, cache.BuildPattern(resultsCachePrefix, modelID))
}

func (uc *ResultsUseCase) recordLookup(kind string, err error) {
	if err != nil && !errors.Is(err, ErrNoResults) {
		uc.metrics.RecordError("results_" + kind)
	}
}

var _ ResultsInvalidator = (*ResultsUseCase)(nil)

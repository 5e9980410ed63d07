package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalSim/internal/domain/models"
	pkgch "SignalSim/pkg/clickhouse"
	applogger "SignalSim/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CHEventStore persists run output. The runs row is written last, so a run is
// visible to readers only once its trades and snapshots are stored.
type CHEventStore struct {
	client *pkgch.Client
	db     *sql.DB
	dbName string
	l      *applogger.Logger
}

func NewCHEventStore(ch *pkgch.Client) *CHEventStore {
	return &CHEventStore{client: ch, db: ch.DB(), dbName: ch.Database(), l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHEventStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHEventStore) table(name string) string { return s.dbName + "." + name }

func (s *CHEventStore) SaveRun(ctx context.Context, run models.RunSummary, trades []models.Trade, snaps []models.PortfolioSnapshot) error {
	start := time.Now()
	runID, err := uuid.Parse(run.RunID)
	if err != nil {
		return fmt.Errorf("run id %q: %w", run.RunID, err)
	}

	tradeRows := make([][]any, 0, len(trades))
	for i, t := range trades {
		tradeRows = append(tradeRows, []any{
			runID, t.ModelID, uint32(i), t.Instrument, string(t.Side), t.Timestamp.UTC(),
			t.Price.Round(moneyScale), t.Shares.Round(moneyScale),
		})
	}
	q := fmt.Sprintf("INSERT INTO %s (run_id, model_type, seq, ticker, side, ts, price, shares)", s.table(TableTrades))
	if err := pkgch.InsertBatch(ctx, s.db, q, tradeRows); err != nil {
		return fmt.Errorf("save trades: %w", err)
	}

	snapRows := make([][]any, 0, len(snaps))
	for i, sn := range snaps {
		snapRows = append(snapRows, []any{runID, sn.ModelID, uint32(i), sn.Timestamp.UTC(), sn.TotalValue.Round(moneyScale)})
	}
	q = fmt.Sprintf("INSERT INTO %s (run_id, model_type, seq, ts, total_value)", s.table(TablePortfolio))
	if err := pkgch.InsertBatch(ctx, s.db, q, snapRows); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}

	q = fmt.Sprintf(`INSERT INTO %s (run_id, model_type, model, horizon_h, buys, sells, snapshots,
        final_value, status, error, started_at, finished_at)`, s.table(TableRuns))
	err = pkgch.InsertBatch(ctx, s.db, q, [][]any{{
		runID, run.ModelID, run.Model, uint16(run.Horizon), uint32(run.Buys), uint32(run.Sells), uint32(run.Snapshots),
		run.FinalValue.Round(moneyScale), string(run.Status), run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	}})
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	s.l.Debug("clickhouse save_run ok",
		applogger.String("run_id", run.RunID),
		applogger.String("model", run.ModelID),
		applogger.Int("trades", len(trades)),
		applogger.Int("snapshots", len(snaps)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// latestRun selects the newest completed run of a model.
func (s *CHEventStore) latestRun() string {
	return fmt.Sprintf(`(SELECT run_id FROM %s WHERE model_type = ? AND status = '%s'
        ORDER BY finished_at DESC LIMIT 1)`, s.table(TableRuns), models.RunCompleted)
}

func (s *CHEventStore) LatestTrades(ctx context.Context, modelID string) ([]models.Trade, error) {
	q := fmt.Sprintf(`
        SELECT ticker, side, ts, price, shares
        FROM %s
        WHERE model_type = ? AND run_id = %s
        ORDER BY seq ASC`, s.table(TableTrades), s.latestRun())

	rows, err := s.db.QueryContext(ctx, q, modelID, modelID)
	if err != nil {
		return nil, fmt.Errorf("latest trades %s: %w", modelID, err)
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		t := models.Trade{ModelID: modelID}
		var side string
		if err := rows.Scan(&t.Instrument, &side, &t.Timestamp, &t.Price, &t.Shares); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = models.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *CHEventStore) LatestPortfolio(ctx context.Context, modelID string) ([]models.PortfolioSnapshot, error) {
	q := fmt.Sprintf(`
        SELECT ts, total_value
        FROM %s
        WHERE model_type = ? AND run_id = %s
        ORDER BY seq ASC`, s.table(TablePortfolio), s.latestRun())

	rows, err := s.db.QueryContext(ctx, q, modelID, modelID)
	if err != nil {
		return nil, fmt.Errorf("latest portfolio %s: %w", modelID, err)
	}
	defer rows.Close()

	var out []models.PortfolioSnapshot
	for rows.Next() {
		sn := models.PortfolioSnapshot{ModelID: modelID}
		if err := rows.Scan(&sn.Timestamp, &sn.TotalValue); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *CHEventStore) Runs(ctx context.Context, modelID string, limit int) ([]models.RunSummary, error) {
	q := fmt.Sprintf(`
        SELECT run_id, model, horizon_h, buys, sells, snapshots, final_value, status, error, started_at, finished_at
        FROM %s
        WHERE model_type = ?
        ORDER BY finished_at DESC
        LIMIT ?`, s.table(TableRuns))

	rows, err := s.db.QueryContext(ctx, q, modelID, limit)
	if err != nil {
		return nil, fmt.Errorf("runs %s: %w", modelID, err)
	}
	defer rows.Close()

	var out []models.RunSummary
	for rows.Next() {
		var (
			id                     uuid.UUID
			horizon                uint16
			buys, sells, snapshots uint32
			final                  decimal.Decimal
			status                 string
			r                      = models.RunSummary{ModelID: modelID}
		)
		if err := rows.Scan(&id, &r.Model, &horizon, &buys, &sells, &snapshots, &final, &status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.RunID = id.String()
		r.Horizon = models.Horizon(horizon)
		r.Buys, r.Sells, r.Snapshots = int(buys), int(sells), int(snapshots)
		r.FinalValue = final
		r.Status = models.RunStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHEventStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op: the client is shared with the signal store and closed by its owner.
func (s *CHEventStore) Close() error {
	return nil
}

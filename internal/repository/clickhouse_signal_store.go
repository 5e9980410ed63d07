package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalSim/internal/domain/models"
	pkgch "SignalSim/pkg/clickhouse"
	applogger "SignalSim/pkg/logger"
)

// CHSignalStore keeps predicted bars in ClickHouse. It is both the feed source of
// scheduled runs and the sink of the Kafka ingest path.
type CHSignalStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client) *CHSignalStore {
	return &CHSignalStore{db: ch.DB(), table: ch.Database() + "." + TableSignals, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHSignalStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// LoadRows returns the rows of one model and horizon in (ts, ticker) order.
// FINAL collapses re-ingested duplicates to their latest version.
func (s *CHSignalStore) LoadRows(ctx context.Context, model string, horizon models.Horizon) ([]models.SignalRow, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT ticker, ts, close, signal
        FROM %s FINAL
        WHERE model = ? AND horizon_h = ?
        ORDER BY ts ASC, ticker ASC`, s.table)

	rows, err := s.db.QueryContext(ctx, q, model, uint16(horizon))
	if err != nil {
		return nil, fmt.Errorf("load signals %s %s: %w", model, horizon, err)
	}
	defer rows.Close()

	out := make([]models.SignalRow, 0, 1024)
	for rows.Next() {
		r := models.SignalRow{Model: model, HorizonH: int(horizon)}
		var sig int8
		if err := rows.Scan(&r.Ticker, &r.Timestamp, &r.Close, &sig); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		r.Signal = int(sig)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Debug("clickhouse load_signals ok",
		applogger.String("model", model),
		applogger.Int("horizon_h", int(horizon)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// StoreBatch inserts rows as one block.
func (s *CHSignalStore) StoreBatch(ctx context.Context, rows []models.SignalRow) error {
	if len(rows) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (model, horizon_h, ticker, ts, close, signal)", s.table)
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{r.Model, uint16(r.HorizonH), r.Ticker, r.Timestamp.UTC(), r.Close, int8(r.Signal)})
	}
	if err := pkgch.InsertBatch(ctx, s.db, q, batch); err != nil {
		s.l.Error("clickhouse store_signals error", applogger.Int("rows", len(rows)), applogger.Error(err))
		return fmt.Errorf("store signals: %w", err)
	}
	return nil
}

func (s *CHSignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

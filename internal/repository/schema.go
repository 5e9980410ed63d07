package repository

import "fmt"

// Table names.
const (
	TableSignals   = "signals"
	TableRuns      = "sim_runs"
	TableTrades    = "sim_trades"
	TablePortfolio = "sim_portfolio"
)

// moneyScale matches the share precision of the engine.
const moneyScale = 16

// Schema returns the idempotent DDL for every table, qualified with db.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    model       LowCardinality(String),
    horizon_h   UInt16,
    ticker      LowCardinality(String),
    ts          DateTime64(3, 'UTC'),
    close       Float64,
    signal      Int8,
    ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested_at)
ORDER BY (model, horizon_h, ts, ticker)`, db, TableSignals),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_id      UUID,
    model_type  LowCardinality(String),
    model       LowCardinality(String),
    horizon_h   UInt16,
    buys        UInt32,
    sells       UInt32,
    snapshots   UInt32,
    final_value Decimal(38, %d),
    status      LowCardinality(String),
    error       String,
    started_at  DateTime64(3, 'UTC'),
    finished_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (model_type, finished_at, run_id)`, db, TableRuns, moneyScale),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_id     UUID,
    model_type LowCardinality(String),
    seq        UInt32,
    ticker     LowCardinality(String),
    side       LowCardinality(String),
    ts         DateTime64(3, 'UTC'),
    price      Decimal(38, %d),
    shares     Decimal(38, %d)
) ENGINE = MergeTree
ORDER BY (model_type, run_id, seq)`, db, TableTrades, moneyScale, moneyScale),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_id      UUID,
    model_type  LowCardinality(String),
    seq         UInt32,
    ts          DateTime64(3, 'UTC'),
    total_value Decimal(38, %d)
) ENGINE = MergeTree
ORDER BY (model_type, run_id, seq)`, db, TablePortfolio, moneyScale),
	}
}

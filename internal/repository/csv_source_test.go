package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"SignalSim/internal/domain/models"
	"SignalSim/internal/services/simulation"
)

const predictions = `Date,Ticker,Close,6 Hour Prediction,24 Hour Prediction,48 Hour Prediction
2024-03-01 14:00:00,AAPL,180.5,2.0,1,0
2024-03-01 14:00:00,MSFT,410.25,1.0,2,2
2024-03-01 15:00:00,AAPL,181,0.0,0,1
`

func TestLoadCSVRowsPicksHorizonColumn(t *testing.T) {
	rows, err := LoadCSVRows(strings.NewReader(predictions), "LSTM_CE", 24)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	r := rows[1]
	if r.Ticker != "MSFT" || r.Close != 410.25 || r.Signal != int(models.SignalBuy) || r.HorizonH != 24 || r.Model != "LSTM_CE" {
		t.Fatalf("unexpected row %+v", r)
	}
	if !r.Timestamp.Equal(hour(0)) {
		t.Fatalf("timestamp %v", r.Timestamp)
	}
}

func TestLoadCSVRowsErrors(t *testing.T) {
	cases := map[string]string{
		"missing horizon": "Date,Ticker,Close,6 Hour Prediction\n2024-03-01,AAPL,1,1\n",
		"bad signal":      "Date,Ticker,Close,24 Hour Prediction\n2024-03-01,AAPL,1,up\n",
		"bad date":        "Date,Ticker,Close,24 Hour Prediction\nyesterday,AAPL,1,1\n",
		"bad close":       "Date,Ticker,Close,24 Hour Prediction\n2024-03-01,AAPL,abc,1\n",
		"empty":           "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadCSVRows(strings.NewReader(body), "M", 24); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadCSVRowsRejectsUnreadableSignal(t *testing.T) {
	body := "Date,Ticker,Close,6 Hour Prediction\n" +
		"2024-03-01 14:00:00,AAPL,180,1\n" +
		"2024-03-01 15:00:00,AAPL,181,1.5\n"
	_, err := LoadCSVRows(strings.NewReader(body), "M", 6)
	var die *simulation.DataIntegrityError
	if !errors.As(err, &die) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
	if die.Instrument != "AAPL" || !die.Timestamp.Equal(hour(1)) {
		t.Fatalf("unexpected error fields %+v", die)
	}
}

// An out-of-range code fails only the group that carries it.
func TestLoadCSVRowsUnknownCodeFailsInFeed(t *testing.T) {
	body := "Date,Ticker,Close,6 Hour Prediction\n" +
		"2024-03-01 14:00:00,AAPL,180,2\n" +
		"2024-03-01 15:00:00,AAPL,181,7\n"
	rows, err := LoadCSVRows(strings.NewReader(body), "M", 6)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 2 || rows[1].Signal != 7 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	groups, err := drain(t, NewSliceFeed(rows))
	var die *simulation.DataIntegrityError
	if !errors.As(err, &die) || die.Instrument != "AAPL" || !die.Timestamp.Equal(hour(1)) {
		t.Fatalf("expected data integrity error at hour 1, got %v", err)
	}
	if len(groups) != 1 || groups[0].Bars[0].Signal != models.SignalBuy {
		t.Fatalf("expected the first group to be served, got %+v", groups)
	}
}

func TestLoadCSVRowsFiltersModelColumn(t *testing.T) {
	body := "Model,Date,Ticker,Close,6 Hour Prediction\n" +
		"LSTM_CE,2024-03-01,AAPL,1,1\n" +
		"XGBOOST,2024-03-01,AAPL,1,2\n"
	rows, err := LoadCSVRows(strings.NewReader(body), "XGBOOST", 6)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 || rows[0].Signal != int(models.SignalBuy) {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestCSVSignalSourceResolvesModelPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "LSTM_FL.csv"), []byte(predictions), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := NewCSVSignalSource(filepath.Join(dir, "{model}.csv"))

	rows, err := src.LoadRows(context.Background(), "LSTM_FL", 48)
	if err != nil || len(rows) != 3 {
		t.Fatalf("load: %v (%d rows)", err, len(rows))
	}
	if _, err := src.LoadRows(context.Background(), "XGBOOST", 6); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"SignalSim/internal/domain/models"
	"SignalSim/internal/services/simulation"
	"SignalSim/pkg/util"
)

// CSVSignalSource reads the cleaned prediction tables written by the predictor notebooks:
// one file per model with columns Date, Ticker, Close and one "<h> Hour Prediction" column per horizon.
// The path may hold a {model} placeholder; a file without it may carry a Model column instead.
type CSVSignalSource struct {
	pathTemplate string
}

func NewCSVSignalSource(pathTemplate string) *CSVSignalSource {
	return &CSVSignalSource{pathTemplate: pathTemplate}
}

// Path returns the file read for model.
func (s *CSVSignalSource) Path(model string) string {
	return strings.ReplaceAll(s.pathTemplate, "{model}", model)
}

func (s *CSVSignalSource) LoadRows(_ context.Context, model string, horizon models.Horizon) ([]models.SignalRow, error) {
	path := s.Path(model)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signals csv: %w", err)
	}
	defer f.Close()

	rows, err := LoadCSVRows(f, model, horizon)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// PredictionColumn names the signal column of a horizon.
func PredictionColumn(h models.Horizon) string {
	return fmt.Sprintf("%d Hour Prediction", int(h))
}

// LoadCSVRows parses one horizon out of a prediction table. Rows of other models are skipped
// when a Model column is present. Cell-level problems are reported with their line number.
func LoadCSVRows(r io.Reader, model string, horizon models.Horizon) ([]models.SignalRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	pred := PredictionColumn(horizon)
	idx := make(map[string]int, 4)
	for _, name := range []string{"Date", "Ticker", "Close", pred} {
		i, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		idx[name] = i
	}
	modelCol, hasModel := cols["Model"]

	var out []models.SignalRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if hasModel && !strings.EqualFold(strings.TrimSpace(rec[modelCol]), model) {
			continue
		}

		ts, ok := util.ParseTime(strings.TrimSpace(rec[idx["Date"]]))
		if !ok {
			return nil, fmt.Errorf("line %d: unparseable Date %q", line, rec[idx["Date"]])
		}
		closePx, err := strconv.ParseFloat(strings.TrimSpace(rec[idx["Close"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: Close: %w", line, err)
		}
		ticker := strings.TrimSpace(rec[idx["Ticker"]])
		code, err := signalCode(rec[idx[pred]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, pred, &simulation.DataIntegrityError{
				Timestamp: ts, Instrument: ticker, Reason: err.Error(),
			})
		}

		out = append(out, models.SignalRow{
			Model:     model,
			Ticker:    ticker,
			Timestamp: ts,
			Close:     closePx,
			HorizonH:  int(horizon),
			Signal:    code,
		})
	}
	return out, nil
}

// signalCode maps a prediction cell to its class code. Integral codes outside the known
// classes pass through, so the feed rejects them when their bar group is reached.
func signalCode(v string) (int, error) {
	if sig, err := models.ParseSignal(v); err == nil {
		return int(sig), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<31 {
		return 0, fmt.Errorf("unrecognized signal %q", v)
	}
	return int(f), nil
}

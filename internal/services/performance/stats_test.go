package performance

import (
	"math"
	"testing"
	"time"

	"SignalSim/internal/domain/models"

	"github.com/shopspring/decimal"
)

func curve(values ...float64) []models.PortfolioSnapshot {
	t0 := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)
	out := make([]models.PortfolioSnapshot, len(values))
	for i, v := range values {
		out[i] = models.PortfolioSnapshot{ModelID: "LSTM_CE_6H", Timestamp: t0.Add(time.Duration(i) * time.Hour), TotalValue: decimal.NewFromFloat(v)}
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestComputeSummary(t *testing.T) {
	st := Compute(curve(10000, 11000, 9900, 10500))
	if st.StartingValue != 10000 || st.CurrentValue != 10500 || st.HighestValue != 11000 || st.LowestValue != 9900 {
		t.Fatalf("unexpected extremes %+v", st)
	}
	if !near(st.TotalReturn, 0.05) {
		t.Fatalf("total return %v", st.TotalReturn)
	}
	if !near(st.MaxDrawdown, 0.1) {
		t.Fatalf("max drawdown %v", st.MaxDrawdown)
	}
	if st.Volatility <= 0 {
		t.Fatalf("expected positive volatility, got %v", st.Volatility)
	}
}

func TestComputeEdgeCases(t *testing.T) {
	if st := Compute(nil); st != (models.PortfolioStats{}) {
		t.Fatalf("empty curve should give zero stats, got %+v", st)
	}
	st := Compute(curve(10000))
	if st.CurrentValue != 10000 || st.Volatility != 0 || st.MaxDrawdown != 0 {
		t.Fatalf("single point %+v", st)
	}
	flat := Compute(curve(10000, 10000, 10000))
	if flat.Volatility != 0 || flat.TotalReturn != 0 {
		t.Fatalf("flat curve %+v", flat)
	}
}

func TestRealizedVolatilityAnnualizes(t *testing.T) {
	r := []float64{0.01, -0.01, 0.01, -0.01}
	hourly := RealizedVolatility(r, BarsPerYear(time.Hour))
	daily := RealizedVolatility(r, BarsPerYear(24*time.Hour))
	if !near(hourly/daily, math.Sqrt(24)) {
		t.Fatalf("annualization ratio %v", hourly/daily)
	}
}

func TestMedianStepIgnoresGaps(t *testing.T) {
	t0 := time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC)
	ts := []time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour), t0.Add(66 * time.Hour), t0.Add(67 * time.Hour)}
	if got := MedianStep(ts); got != time.Hour {
		t.Fatalf("median step %v", got)
	}
}

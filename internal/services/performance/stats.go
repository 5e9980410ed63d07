package performance

import (
	"math"
	"sort"
	"time"

	"SignalSim/internal/domain/models"
)

const year = 365 * 24 * time.Hour

// ComputeLogReturns computes r_t = ln(V_t / V_{t-1}) over an equity curve.
// It returns a slice of length len(values)-1, or nil if insufficient data.
func ComputeLogReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample standard deviation of returns.
func RealizedVolatility(returns []float64, barsPerYear float64) float64 {
	n := float64(len(returns))
	if n < 2 || barsPerYear <= 0 {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for _, r := range returns {
		sum += r
		sum2 += r * r
	}
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYear converts a snapshot spacing into the annualization factor.
func BarsPerYear(step time.Duration) float64 {
	if step <= 0 {
		return 0
	}
	return float64(year) / float64(step)
}

// MedianStep returns the median gap between consecutive timestamps.
// Market-hours data has overnight and weekend gaps, so the mean would overstate the spacing.
func MedianStep(ts []time.Time) time.Duration {
	if len(ts) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		gaps = append(gaps, ts[i].Sub(ts[i-1]))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction of the peak.
func MaxDrawdown(values []float64) float64 {
	var peak, worst float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// Compute summarizes an equity curve. An empty curve yields zero stats.
func Compute(snaps []models.PortfolioSnapshot) models.PortfolioStats {
	if len(snaps) == 0 {
		return models.PortfolioStats{}
	}
	values := make([]float64, len(snaps))
	times := make([]time.Time, len(snaps))
	for i, s := range snaps {
		values[i] = s.TotalValue.InexactFloat64()
		times[i] = s.Timestamp
	}

	st := models.PortfolioStats{
		StartingValue: values[0],
		CurrentValue:  values[len(values)-1],
		HighestValue:  values[0],
		LowestValue:   values[0],
	}
	for _, v := range values[1:] {
		st.HighestValue = math.Max(st.HighestValue, v)
		st.LowestValue = math.Min(st.LowestValue, v)
	}
	if st.StartingValue > 0 {
		st.TotalReturn = st.CurrentValue/st.StartingValue - 1
	}
	st.MaxDrawdown = MaxDrawdown(values)
	st.Volatility = RealizedVolatility(ComputeLogReturns(values), BarsPerYear(MedianStep(times)))
	return st
}

package simulation

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"SignalSim/internal/domain/models"

	"github.com/shopspring/decimal"
)

// randomGroups builds a dense feed where every instrument has a bar at every timestamp.
func randomGroups(seed int64, steps int, instruments []string) []models.BarGroup {
	r := rand.New(rand.NewSource(seed))
	prices := make(map[string]float64, len(instruments))
	for _, inst := range instruments {
		prices[inst] = 20 + r.Float64()*200
	}
	groups := make([]models.BarGroup, 0, steps)
	for i := 0; i < steps; i++ {
		ts := at(i)
		g := models.BarGroup{Timestamp: ts}
		for _, inst := range instruments {
			prices[inst] *= 1 + (r.Float64()-0.5)*0.04
			px := decimal.NewFromFloat(prices[inst]).Round(4)
			g.Bars = append(g.Bars, models.SignalBar{
				PriceBar: models.PriceBar{Timestamp: ts, Instrument: inst, Close: px},
				Signal:   models.Signal(r.Intn(3)),
			})
		}
		groups = append(groups, g)
	}
	return groups
}

type replay struct {
	cash     decimal.Decimal
	shares   map[string]decimal.Decimal
	lastSeen map[string]decimal.Decimal
}

func replayTrades(t *testing.T, start decimal.Decimal, trades []models.Trade) replay {
	t.Helper()
	rp := replay{cash: start, shares: map[string]decimal.Decimal{}, lastSeen: map[string]decimal.Decimal{}}
	for i, tr := range trades {
		notional := tr.Price.Mul(tr.Shares)
		switch tr.Side {
		case models.SideBuy:
			rp.cash = rp.cash.Sub(notional)
			rp.shares[tr.Instrument] = rp.shares[tr.Instrument].Add(tr.Shares)
		case models.SideSell:
			held := rp.shares[tr.Instrument]
			if tr.Shares.GreaterThan(held) {
				t.Fatalf("trade %d oversells %s: %s > %s", i, tr.Instrument, tr.Shares, held)
			}
			rp.cash = rp.cash.Add(notional)
			rp.shares[tr.Instrument] = held.Sub(tr.Shares)
		}
		if rp.cash.IsNegative() {
			t.Fatalf("trade %d drives cash negative: %s", i, rp.cash)
		}
	}
	return rp
}

func TestEngineProperties(t *testing.T) {
	instruments := []string{"AAPL", "MSFT", "NVDA", "TSLA"}
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			groups := randomGroups(seed, 60, instruments)
			p := defaultParams()
			p.PositionSizeFraction = decimal.NewFromFloat(0.05 + float64(seed%10)*0.1)

			res := mustRun(t, groups, nil, p)

			if len(res.Snapshots) != len(groups) {
				t.Fatalf("snapshots %d, timestamps %d", len(res.Snapshots), len(groups))
			}

			var buys, sells int
			for _, tr := range res.Trades {
				if tr.Side == models.SideBuy {
					buys++
				} else {
					sells++
				}
			}
			if buys != res.Buys || sells != res.Sells {
				t.Fatalf("counters buys=%d/%d sells=%d/%d", res.Buys, buys, res.Sells, sells)
			}

			rp := replayTrades(t, p.StartingCapital, res.Trades)
			if !rp.cash.Equal(res.Cash) {
				t.Fatalf("replayed cash %s, engine cash %s", rp.cash, res.Cash)
			}

			last := groups[len(groups)-1]
			value := rp.cash
			for _, b := range last.Bars {
				value = value.Add(rp.shares[b.Instrument].Mul(b.Close))
			}
			if !value.Equal(res.FinalValue()) {
				t.Fatalf("replayed value %s, final snapshot %s", value, res.FinalValue())
			}
		})
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	groups := randomGroups(42, 100, []string{"A", "B", "C"})
	first := mustRun(t, groups, nil, defaultParams())
	second := mustRun(t, groups, nil, defaultParams())
	if !reflect.DeepEqual(first.Trades, second.Trades) {
		t.Fatalf("trade sequences differ")
	}
	if !reflect.DeepEqual(first.Snapshots, second.Snapshots) {
		t.Fatalf("snapshot sequences differ")
	}
}

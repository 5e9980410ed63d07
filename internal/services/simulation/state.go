package simulation

import "github.com/shopspring/decimal"

// PortfolioState is the exclusively owned mutable state of one run.
type PortfolioState struct {
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
	// first-seen order, so valuation walks instruments deterministically
	order     []string
	buyCount  int
	sellCount int
}

// NewPortfolioState creates state holding only the starting capital.
func NewPortfolioState(startingCapital decimal.Decimal) *PortfolioState {
	return &PortfolioState{
		cash:      startingCapital,
		positions: make(map[string]decimal.Decimal),
	}
}

// Cash returns the uninvested balance.
func (s *PortfolioState) Cash() decimal.Decimal { return s.cash }

// Shares returns the held shares of instrument (zero if never encountered).
func (s *PortfolioState) Shares(instrument string) decimal.Decimal { return s.positions[instrument] }

// Instruments returns every instrument encountered so far, in first-seen order.
func (s *PortfolioState) Instruments() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *PortfolioState) BuyCount() int  { return s.buyCount }
func (s *PortfolioState) SellCount() int { return s.sellCount }

// touch registers instrument with a zero position on first encounter.
func (s *PortfolioState) touch(instrument string) {
	if _, ok := s.positions[instrument]; ok {
		return
	}
	s.positions[instrument] = decimal.Zero
	s.order = append(s.order, instrument)
}

// sharePrecision is the number of decimal places kept for fractional shares.
const sharePrecision = 16

// buy commits fraction of current cash to instrument and returns the shares bought.
// The caller guarantees cash > 0, price > 0 and fraction in (0, 1].
// Shares are truncated to sharePrecision places and cash is debited by exactly
// price*shares, which never exceeds cash*fraction.
func (s *PortfolioState) buy(instrument string, price, fraction decimal.Decimal) decimal.Decimal {
	notional := s.cash.Mul(fraction)
	shares, _ := notional.QuoRem(price, sharePrecision)
	if !shares.IsPositive() {
		// dust cash below one share increment: nothing to execute
		return decimal.Zero
	}
	s.cash = s.cash.Sub(price.Mul(shares))
	s.positions[instrument] = s.positions[instrument].Add(shares)
	s.buyCount++
	return shares
}

// sell liquidates the whole position and returns the shares held before liquidation.
func (s *PortfolioState) sell(instrument string, price decimal.Decimal) decimal.Decimal {
	held := s.positions[instrument]
	s.cash = s.cash.Add(price.Mul(held))
	s.positions[instrument] = decimal.Zero
	s.sellCount++
	return held
}

package models

import (
	"fmt"
	"strings"
)

// Signal is the per-bar trading decision produced by an upstream model.
type Signal int8

const (
	SignalSell Signal = iota
	SignalHold
	SignalBuy
)

// ParseSignalCode maps the classifier's argmax class code (0=SELL, 1=HOLD, 2=BUY).
func ParseSignalCode(code int) (Signal, error) {
	s := Signal(code)
	if int(s) != code || !s.Valid() {
		return 0, fmt.Errorf("unrecognized signal code %d", code)
	}
	return s, nil
}

// ParseSignal accepts either the textual form ("BUY") or the numeric class code ("2").
func ParseSignal(v string) (Signal, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "SELL", "0", "0.0":
		return SignalSell, nil
	case "HOLD", "1", "1.0":
		return SignalHold, nil
	case "BUY", "2", "2.0":
		return SignalBuy, nil
	default:
		return 0, fmt.Errorf("unrecognized signal %q", v)
	}
}

// Valid reports whether s is one of SELL, HOLD, BUY.
func (s Signal) Valid() bool {
	return s >= SignalSell && s <= SignalBuy
}

func (s Signal) String() string {
	switch s {
	case SignalSell:
		return "SELL"
	case SignalHold:
		return "HOLD"
	case SignalBuy:
		return "BUY"
	default:
		return fmt.Sprintf("Signal(%d)", int8(s))
	}
}

// Horizon is the forward window, in hours, a signal was trained to predict.
type Horizon int

func (h Horizon) String() string { return fmt.Sprintf("%dH", int(h)) }

// ModelIdentifier composes the run tag used downstream, e.g. "LSTM_CE_6H".
func ModelIdentifier(model string, h Horizon) string {
	return model + "_" + h.String()
}

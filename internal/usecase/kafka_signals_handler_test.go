package usecase

import (
	"context"
	"errors"
	"testing"

	pkgkafka "SignalSim/pkg/kafka"
)

func TestSignalsHandlerStoresValidBatch(t *testing.T) {
	store, met := &fakeSignalStore{}, newFakeMetrics()
	h := NewKafkaSignalsHandler("signals.predicted", store, met)

	msg := `[
		{"model":"LSTM_CE","ticker":"aapl","t":1709301600,"c":180.5,"horizon_h":6,"signal":2},
		{"model":"LSTM_CE","ticker":"MSFT","t":"2024-03-01 14:00:00","c":410,"horizon_h":6,"signal":0}
	]`
	if err := h.Handle(context.Background(), []byte(msg)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.stored) != 2 || met.ingested != 2 {
		t.Fatalf("stored %d rows, ingested %d", len(store.stored), met.ingested)
	}
	a, m := store.stored[0], store.stored[1]
	if a.Ticker != "AAPL" || a.Signal != 2 || !a.Timestamp.Equal(m.Timestamp) {
		t.Fatalf("unexpected rows %+v %+v", a, m)
	}
}

func TestSignalsHandlerRejectsInvalidRows(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"missing signal":   `{"model":"M","ticker":"A","t":1709301600,"c":1,"horizon_h":6}`,
		"signal code":      `{"model":"M","ticker":"A","t":1709301600,"c":1,"horizon_h":6,"signal":3}`,
		"zero price":       `{"model":"M","ticker":"A","t":1709301600,"c":0,"horizon_h":6,"signal":1}`,
		"bad time":         `{"model":"M","ticker":"A","t":"soon","c":1,"horizon_h":6,"signal":1}`,
		"no horizon":       `{"model":"M","ticker":"A","t":1709301600,"c":1,"signal":1}`,
		"one bad in batch": `[{"model":"M","ticker":"A","t":1709301600,"c":1,"horizon_h":6,"signal":1},{"model":"M","ticker":"B","t":1709301600,"c":-1,"horizon_h":6,"signal":1}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			store := &fakeSignalStore{}
			h := NewKafkaSignalsHandler("signals.predicted", store, newFakeMetrics())
			err := h.Handle(context.Background(), []byte(body))
			if !pkgkafka.IsPermanent(err) {
				t.Fatalf("expected permanent rejection, got %v", err)
			}
			if len(store.stored) != 0 {
				t.Fatalf("nothing may be stored from a rejected message")
			}
		})
	}
}

func TestSignalsHandlerStoreErrorIsRetryable(t *testing.T) {
	store := &fakeSignalStore{err: errBoom}
	h := NewKafkaSignalsHandler("signals.predicted", store, newFakeMetrics())
	err := h.Handle(context.Background(), []byte(`{"model":"M","ticker":"A","t":1709301600,"c":1,"horizon_h":6,"signal":1}`))
	if !errors.Is(err, errBoom) || pkgkafka.IsPermanent(err) {
		t.Fatalf("expected retryable store error, got %v", err)
	}
}

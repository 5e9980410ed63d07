package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"SignalSim/internal/domain/models"
	domrepo "SignalSim/internal/domain/repository"
	pkgkafka "SignalSim/pkg/kafka"
	"SignalSim/pkg/util"

	"github.com/go-playground/validator/v10"
)

// KafkaSignalsHandler stores predicted bars published by the upstream predictors.
type KafkaSignalsHandler struct {
	topic    string
	store    domrepo.SignalStore
	metrics  domrepo.Metrics
	validate *validator.Validate
}

func NewKafkaSignalsHandler(topic string, store domrepo.SignalStore, metrics domrepo.Metrics) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{topic: topic, store: store, metrics: metrics, validate: validator.New()}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// incoming message schema: {model, ticker, t, c, horizon_h, signal}, or an array of them.
// t is unix seconds, unix millis or an RFC3339 / pandas datetime string.
type signalMessage struct {
	Model    string          `json:"model" validate:"required,max=64"`
	Ticker   string          `json:"ticker" validate:"required,max=32"`
	T        json.RawMessage `json:"t" validate:"required"`
	C        float64         `json:"c" validate:"gt=0"`
	HorizonH int             `json:"horizon_h" validate:"gte=1,lte=720"`
	Signal   *int            `json:"signal" validate:"required,min=0,max=2"`
}

// Handle validates the whole message before storing any of it. Malformed payloads are
// rejected so the consumer dead-letters them instead of retrying.
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	msgs, err := decodeSignals(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Reject("ERR_DECODE", err)
	}

	rows := make([]models.SignalRow, 0, len(msgs))
	for i, m := range msgs {
		row, err := h.toRow(m)
		if err != nil {
			h.metrics.RecordError("consumer_validation")
			return pkgkafka.Reject("ERR_VALIDATION", fmt.Errorf("row %d: %w", i, err))
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	err = h.store.StoreBatch(ctx, rows)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordSignalsIngested(len(rows))
	return nil
}

func decodeSignals(b []byte) ([]signalMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var msgs []signalMessage
		if err := json.Unmarshal(b, &msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	}
	var m signalMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return []signalMessage{m}, nil
}

func (h *KafkaSignalsHandler) toRow(m signalMessage) (models.SignalRow, error) {
	if err := h.validate.Struct(m); err != nil {
		return models.SignalRow{}, err
	}
	if math.IsInf(m.C, 0) || math.IsNaN(m.C) {
		return models.SignalRow{}, fmt.Errorf("close must be finite")
	}
	ts, ok := util.ParseTime(strings.Trim(string(m.T), `"`))
	if !ok {
		return models.SignalRow{}, fmt.Errorf("unparseable t %s", m.T)
	}
	return models.SignalRow{
		Model:     m.Model,
		Ticker:    strings.ToUpper(m.Ticker),
		Timestamp: ts,
		Close:     m.C,
		HorizonH:  m.HorizonH,
		Signal:    *m.Signal,
	}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)

package repository

import (
	"context"
	"testing"
	"time"

	"SignalSim/internal/domain/models"
	pkgkafka "SignalSim/pkg/kafka"

	"github.com/shopspring/decimal"
)

type recordingProducer struct {
	batches [][]pkgkafka.Message
}

func (p *recordingProducer) PublishBatch(_ context.Context, _ string, msgs []pkgkafka.Message) error {
	p.batches = append(p.batches, append([]pkgkafka.Message(nil), msgs...))
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestKafkaEventPublisherOrdersAndChunks(t *testing.T) {
	run := models.RunSummary{RunID: "r1", ModelID: "LSTM_CE_6H", FinishedAt: hour(5), Status: models.RunCompleted}
	trades := []models.Trade{
		{ModelID: "LSTM_CE_6H", Instrument: "AAPL", Side: models.SideBuy, Timestamp: hour(0), Price: decimal.NewFromInt(100), Shares: decimal.NewFromInt(10)},
		{ModelID: "LSTM_CE_6H", Instrument: "AAPL", Side: models.SideSell, Timestamp: hour(1), Price: decimal.NewFromInt(101), Shares: decimal.NewFromInt(10)},
	}
	snaps := []models.PortfolioSnapshot{
		{ModelID: "LSTM_CE_6H", Timestamp: hour(0), TotalValue: decimal.NewFromInt(10000)},
		{ModelID: "LSTM_CE_6H", Timestamp: hour(1), TotalValue: decimal.NewFromInt(10010)},
	}

	prod := &recordingProducer{}
	pub := &KafkaEventPublisher{producer: prod, topic: "simulation.events", chunkSize: 2}
	if err := pub.PublishRun(context.Background(), run, trades, snaps); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(prod.batches) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(prod.batches))
	}

	var types []string
	for _, b := range prod.batches {
		for _, m := range b {
			if string(m.Key) != "LSTM_CE_6H" {
				t.Fatalf("unexpected key %q", m.Key)
			}
			types = append(types, m.Value.(Event).Type)
		}
	}
	want := []string{EventTrade, EventTrade, EventSnapshot, EventSnapshot, EventRun}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event order %v, want %v", types, want)
		}
	}
	if last := prod.batches[2][0].Value.(Event); last.RunID != "r1" || !last.At.Equal(hour(5)) || last.At.Location() != time.UTC {
		t.Fatalf("unexpected summary event %+v", last)
	}
}

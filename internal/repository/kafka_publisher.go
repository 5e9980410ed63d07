package repository

import (
	"context"
	"time"

	"SignalSim/internal/domain/models"
	pkgkafka "SignalSim/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// Event types carried in the event_type header and the envelope.
const (
	EventTrade    = "trade"
	EventSnapshot = "portfolio_snapshot"
	EventRun      = "run_completed"
)

// Event is the envelope of everything published on the events topic.
type Event struct {
	Type    string    `json:"type"`
	RunID   string    `json:"run_id"`
	ModelID string    `json:"model_type"`
	Seq     int       `json:"seq"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaEventPublisher publishes a run's trades, snapshots and summary, in that order,
// keyed by model identifier so one model's events stay on one partition.
type KafkaEventPublisher struct {
	producer  batchPublisher
	topic     string
	chunkSize int
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic, chunkSize: 500}
}

func (p *KafkaEventPublisher) PublishRun(ctx context.Context, run models.RunSummary, trades []models.Trade, snaps []models.PortfolioSnapshot) error {
	msgs := BuildRunEvents(run, trades, snaps)
	for start := 0; start < len(msgs); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		if err := p.producer.PublishBatch(ctx, p.topic, msgs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// BuildRunEvents lays out the messages of one run; the summary always comes last.
func BuildRunEvents(run models.RunSummary, trades []models.Trade, snaps []models.PortfolioSnapshot) []pkgkafka.Message {
	key := []byte(run.ModelID)
	msgs := make([]pkgkafka.Message, 0, len(trades)+len(snaps)+1)
	add := func(typ string, seq int, at time.Time, payload any) {
		msgs = append(msgs, pkgkafka.Message{
			Key:     key,
			Headers: []kafka.Header{{Key: "event_type", Value: []byte(typ)}},
			Value: Event{
				Type:    typ,
				RunID:   run.RunID,
				ModelID: run.ModelID,
				Seq:     seq,
				At:      at,
				Payload: payload,
			},
		})
	}
	for i, t := range trades {
		add(EventTrade, i, t.Timestamp, t)
	}
	for i, s := range snaps {
		add(EventSnapshot, i, s.Timestamp, s)
	}
	add(EventRun, 0, run.FinishedAt, run)
	return msgs
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

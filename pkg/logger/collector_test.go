package logger

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	digests []Digest
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.digests = append(p.digests, value.(Digest))
	return nil
}

func TestCollectorDeduplicatesAndFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{}
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug")
	l.AddCollector(&CollectionConfig{
		Service:        "signalsim",
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "logs.digest",
		Publisher:      pub,
	})

	for i := 0; i < 5; i++ {
		l.Error("run failed", String("model", "LSTM_CE_6H"), Error(errors.New("missing price")))
	}
	l.Warn("slow run", String("model", "XGBOOST_24H"))
	l.Info("not collected")

	if n := l.collector.Pending(); n != 2 {
		t.Fatalf("expected 2 unique entries, got %d", n)
	}
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.digests) != 1 {
		t.Fatalf("expected 1 digest, got %d", len(pub.digests))
	}
	d := pub.digests[0]
	if pub.topics[0] != "logs.digest" || d.Service != "signalsim" {
		t.Fatalf("unexpected digest routing %q %q", pub.topics[0], d.Service)
	}
	if len(d.Entries) != 2 || d.Entries[0].Count != 5 || d.Entries[0].Level != "error" {
		t.Fatalf("unexpected entries %+v", d.Entries)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected log output")
	}
}

func TestCollectorThresholdFlush(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 3, Topic: "t", Publisher: pub})
	for i := 0; i < 3; i++ {
		c.AddLog("error", "boom", map[string]interface{}{"i": i}, "x.go:1")
	}
	if n := c.Pending(); n != 0 {
		t.Fatalf("expected early flush, %d pending", n)
	}
	c.Close()
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.digests) != 1 || len(pub.digests[0].Entries) != 3 {
		t.Fatalf("unexpected digests %+v", pub.digests)
	}
}

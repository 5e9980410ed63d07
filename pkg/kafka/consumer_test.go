package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	applogger "SignalSim/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type scriptedHandler struct {
	errs  []error
	calls int
}

func (h *scriptedHandler) Topic() string { return "signals" }

func (h *scriptedHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= len(h.errs) {
		return h.errs[h.calls-1]
	}
	return nil
}

func testConsumer(retryMax int) (*Consumer, *fakeWriter) {
	c := newConsumer(&ConsumerConfig{
		WorkerCount: 1,
		BufferSize:  1,
		RetryMax:    retryMax,
		BackoffMin:  time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
		DLQTopic:    "signals.dlq",
		Logger:      applogger.Nop(),
	})
	w := &fakeWriter{}
	c.dlq = w
	return c, w
}

func testMessage() *message {
	return &message{topic: "signals", data: []byte(`{}`), km: kafka.Message{Topic: "signals", Offset: 7, Key: []byte("k")}}
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	c, dlq := testConsumer(3)
	h := &scriptedHandler{errs: []error{errors.New("timeout"), errors.New("timeout")}}

	if err := c.process(h, testMessage()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if h.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", h.calls)
	}
	if len(dlq.msgs) != 0 {
		t.Fatalf("nothing should be dead-lettered")
	}
}

func TestProcessDeadLettersAfterRetryBudget(t *testing.T) {
	c, dlq := testConsumer(2)
	boom := errors.New("clickhouse down")
	h := &scriptedHandler{errs: []error{boom, boom, boom, boom}}

	err := c.process(h, testMessage())
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if h.calls != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", h.calls)
	}
	if len(dlq.msgs) != 1 || dlq.msgs[0].Topic != "signals.dlq" {
		t.Fatalf("expected one dlq message, got %+v", dlq.msgs)
	}
	if headerValue(dlq.msgs[0], "error_code") != "ERR_HANDLER" || headerValue(dlq.msgs[0], "source_offset") != "7" {
		t.Fatalf("unexpected dlq headers %+v", dlq.msgs[0].Headers)
	}
}

func TestProcessDoesNotRetryRejectedMessages(t *testing.T) {
	c, dlq := testConsumer(5)
	h := &scriptedHandler{errs: []error{Reject("ERR_VALIDATION", errors.New("price must be > 0"))}}

	if err := c.process(h, testMessage()); !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if h.calls != 1 {
		t.Fatalf("rejected message must not be retried, calls=%d", h.calls)
	}
	if len(dlq.msgs) != 1 || headerValue(dlq.msgs[0], "error_code") != "ERR_VALIDATION" {
		t.Fatalf("unexpected dlq %+v", dlq.msgs)
	}
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "signals" }
func (panicHandler) Handle(context.Context, []byte) error { panic("bad row") }

func TestProcessRecoversHandlerPanic(t *testing.T) {
	c, dlq := testConsumer(3)
	err := c.process(panicHandler{}, testMessage())
	if ErrorCode(err) != "ERR_PANIC" {
		t.Fatalf("expected ERR_PANIC, got %v", err)
	}
	if len(dlq.msgs) != 1 {
		t.Fatalf("panicking message should be dead-lettered")
	}
}

func TestHookChainOrderAndVeto(t *testing.T) {
	var order []string
	mk := func(name string, veto bool) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before:"+name)
				if veto {
					return ctx, km, data, Reject("ERR_VETO", nil)
				}
				return ctx, km, data, nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after:"+name)
			},
		}
	}

	chain := NewHookChain(mk("a", false), nil, mk("b", false))
	c, _ := testConsumer(0)
	c.WithConsumerHook(chain)
	if err := c.process(&scriptedHandler{}, testMessage()); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	want := []string{"before:a", "before:b", "after:b", "after:a"}
	if len(order) != len(want) {
		t.Fatalf("order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, want %v", order, want)
		}
	}

	order = nil
	h := &scriptedHandler{}
	c.WithConsumerHook(NewHookChain(mk("veto", true)))
	if err := c.process(h, testMessage()); ErrorCode(err) != "ERR_VETO" {
		t.Fatalf("expected veto, got %v", err)
	}
	if h.calls != 0 {
		t.Fatalf("vetoed message reached the handler")
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v out of (0, %v]", attempt, d, max)
		}
	}
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type report struct {
	Model string  `json:"model"`
	Value float64 `json:"value"`
}

func TestMemoryCacheRoundTripsTypedValues(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "results:trades:LSTM_CE_6H", report{Model: "LSTM_CE_6H", Value: 10100}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got report
	if err := mc.Get(ctx, "results:trades:LSTM_CE_6H", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Model != "LSTM_CE_6H" || got.Value != 10100 {
		t.Fatalf("unexpected value %+v", got)
	}
	if err := mc.Get(ctx, "missing", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "k", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	var v int
	if err := mc.Get(ctx, "k", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	for _, k := range []string{
		GenerateKeyWithParams("results", "trades", "LSTM_CE_6H"),
		GenerateKeyWithParams("results", "portfolios", "LSTM_CE_6H"),
		GenerateKeyWithParams("results", "trades", "XGBOOST_6H"),
	} {
		_ = mc.Set(ctx, k, "x", time.Minute)
	}
	if err := mc.DeleteByPattern(ctx, BuildPattern("results", "LSTM_CE_6H")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := mc.Len(); n != 1 {
		t.Fatalf("expected 1 surviving key, got %d", n)
	}
	var s string
	if err := mc.Get(ctx, "results:trades:XGBOOST_6H", &s); err != nil || s != "x" {
		t.Fatalf("unrelated key was removed: %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", 1, time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", 2, time.Minute)
	time.Sleep(time.Millisecond)
	var v int
	_ = mc.Get(ctx, "a", &v)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", 3, time.Minute)

	if err := mc.Get(ctx, "b", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &v); err != nil || v != 1 {
		t.Fatalf("expected a kept, got %v %d", err, v)
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, _ := mc.TryLock(ctx, "lock:batch", time.Minute)
	if !ok {
		t.Fatalf("first lock should succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lock:batch", time.Minute); ok {
		t.Fatalf("second lock should fail while held")
	}
	_ = mc.Unlock(ctx, "lock:batch")
	if ok, _ := mc.TryLock(ctx, "lock:batch", time.Minute); !ok {
		t.Fatalf("lock should be free after unlock")
	}
}

func TestGetOrLoadCachesResult(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	loads := 0
	load := func(context.Context) (report, error) {
		loads++
		return report{Model: "m", Value: 1}, nil
	}
	for i := 0; i < 3; i++ {
		v, hit, err := GetOrLoad(ctx, mc, "k", time.Minute, load)
		if err != nil || v.Model != "m" {
			t.Fatalf("unexpected %v %+v", err, v)
		}
		if hit != (i > 0) {
			t.Fatalf("call %d: hit=%v", i, hit)
		}
	}
	if loads != 1 {
		t.Fatalf("expected one load, got %d", loads)
	}

	_, _, err := GetOrLoad(ctx, mc, "other", time.Minute, func(context.Context) (report, error) {
		return report{}, errors.New("not found")
	})
	if err == nil {
		t.Fatalf("load error must propagate")
	}
}

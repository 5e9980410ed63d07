package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimePandasLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-01 14:00:00", "2024-03-01 14:00:00+00:00", "2024-03-01T14:00:00"} {
		got, ok := ParseTime(s)
		if !ok || !got.Equal(want) {
			t.Fatalf("%q: got %v ok=%v", s, got, ok)
		}
	}
	d, ok := ParseTime("2024-03-01")
	if !ok || !d.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date only: %v", d)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok || got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
	got, ok = ParseTime(strconv.FormatInt(ts*1000, 10))
	if !ok || got.Unix() != ts {
		t.Fatalf("unexpected unix ms %v", got.Unix())
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected %v", got)
	}
	if len(SplitList("")) != 0 {
		t.Fatalf("expected empty")
	}
}

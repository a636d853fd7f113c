package utils

import (
	"google.golang.org/protobuf/types/known/structpb"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestMean(t *testing.T) {
	t.Parallel()

	if _, ok := Mean([]float64{}); ok {
		t.Fatalf("mean of empty slice should be undefined")
	}
	got, ok := Mean([]float64{1.2, 0.8, 1.5})
	if !ok || math.Abs(got-3.5/3) > 1e-12 {
		t.Fatalf("Mean = %v, %v", got, ok)
	}
	if got, _ := Mean([]int{1, 2}); got != 1.5 {
		t.Fatalf("Mean(int) = %v", got)
	}
}

func TestAmountToFloat64(t *testing.T) {
	t.Parallel()

	if got := AmountToFloat64("1234500", 6); got != 1.2345 {
		t.Fatalf("AmountToFloat64 = %v", got)
	}
	if got := AmountToFloat64("not-a-number", 6); got != 0 {
		t.Fatalf("invalid amount = %v, want 0", got)
	}
	if v, ok := ParseDecimalFloat("0.000123"); !ok || v != 0.000123 {
		t.Fatalf("ParseDecimalFloat = %v, %v", v, ok)
	}
	if _, ok := ParseDecimalFloat(""); ok {
		t.Fatalf("empty string should not parse")
	}
}

func TestIsPositiveFinite(t *testing.T) {
	t.Parallel()

	for _, v := range []float64{0, -1, math.Inf(1), math.NaN()} {
		if IsPositiveFinite(v) {
			t.Fatalf("IsPositiveFinite(%v) = true", v)
		}
	}
	if !IsPositiveFinite(0.5) {
		t.Fatalf("IsPositiveFinite(0.5) = false")
	}
}

func TestUnixToTime(t *testing.T) {
	t.Parallel()

	sec := int64(1_700_000_000)
	if got := UnixToTime(sec); !got.Equal(time.Unix(sec, 0)) {
		t.Fatalf("seconds: %v", got)
	}
	if got := UnixToTime(sec * 1000); !got.Equal(time.Unix(sec, 0)) {
		t.Fatalf("milliseconds: %v", got)
	}
	if AbsDuration(-time.Second) != time.Second {
		t.Fatalf("AbsDuration")
	}
}

func TestPartitionOf(t *testing.T) {
	t.Parallel()

	h := TokenHash("So11111111111111111111111111111111111111112")
	if h != TokenHash("So11111111111111111111111111111111111111112") {
		t.Fatalf("hash is not stable")
	}
	if p := PartitionOf(h, 8); p < 0 || p >= 8 {
		t.Fatalf("partition out of range: %d", p)
	}
	if p := PartitionOf(h, 1); p != -1 {
		t.Fatalf("single partition = %d, want -1", p)
	}
}

func TestThrottleLog(t *testing.T) {
	t.Parallel()

	var last atomic.Int64
	if !ThrottleLog(&last, time.Hour) {
		t.Fatalf("first call should log")
	}
	if ThrottleLog(&last, time.Hour) {
		t.Fatalf("second call within interval should be throttled")
	}
}

func TestSliceAndMapHelpers(t *testing.T) {
	t.Parallel()

	s := []int{1, 2, 3, 4}
	if got := LastN(s, 2); len(got) != 2 || got[0] != 3 {
		t.Fatalf("LastN = %v", got)
	}
	if got := LastN(s, 10); len(got) != 4 {
		t.Fatalf("LastN over length = %v", got)
	}
	ClearSlice(&s)
	if len(s) != 0 || cap(s) != 4 {
		t.Fatalf("ClearSlice len=%d cap=%d", len(s), cap(s))
	}

	m := map[int]int{1: 1, 2: 2, 3: 3}
	ClearOrResetMap(&m, 10, 4)
	if len(m) != 0 {
		t.Fatalf("map not cleared")
	}
}

func TestSafeCodecs(t *testing.T) {
	t.Parallel()

	type payload struct {
		A int `json:"a"`
	}
	var p payload
	if err := SafeJsonUnmarshal([]byte(`{"a":7}`), &p); err != nil || p.A != 7 {
		t.Fatalf("SafeJsonUnmarshal = %+v, %v", p, err)
	}
	if err := SafeJsonUnmarshal([]byte(`{`), &p); err == nil {
		t.Fatalf("expected error for truncated json")
	}
	if _, err := SafeJsonMarshal(map[string]any{"bad": func() {}}); err == nil {
		t.Fatalf("expected error marshalling a func")
	}

	msg, err := structpb.NewStruct(map[string]any{"token": "abc", "sopr": 1.5})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	prefix := []byte("x")
	data, err := SafeProtoMarshal(prefix, msg)
	if err != nil || data[0] != 'x' {
		t.Fatalf("SafeProtoMarshal should append to buf: %v", err)
	}
	var decoded structpb.Struct
	if err := SafeProtoUnmarshal(data[1:], &decoded); err != nil {
		t.Fatalf("SafeProtoUnmarshal: %v", err)
	}
	if decoded.GetFields()["sopr"].GetNumberValue() != 1.5 {
		t.Fatalf("decoded = %v", decoded.GetFields())
	}
}

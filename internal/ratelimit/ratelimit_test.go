package ratelimit

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func TestNew_NonPositiveRateDisablesLimiting(t *testing.T) {
	t.Parallel()
	if New(0) != nil {
		t.Errorf("expected nil limiter for rate 0")
	}
	if New(-1) != nil {
		t.Errorf("expected nil limiter for negative rate")
	}
}

func TestNilLimiterNeverBlocks(t *testing.T) {
	t.Parallel()
	var l *Limiter
	start := time.Now()
	l.Take(1 << 30)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("nil limiter blocked for %v", elapsed)
	}
}

func TestNewReaderPassthrough(t *testing.T) {
	t.Parallel()
	r := strings.NewReader("data")
	if got := NewReader(r, nil); got != io.Reader(r) {
		t.Errorf("expected original reader back for nil limiter")
	}
}

func TestNewWriterPassthrough(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if got := NewWriter(&buf, nil); got != io.Writer(&buf) {
		t.Errorf("expected original writer back for nil limiter")
	}
}

func TestReader_DeliversAllBytes(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte("x"), 40*1024)
	r := NewReader(bytes.NewReader(payload), New(1<<20))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("read %d bytes, expected %d", len(got), len(payload))
	}
}

func TestWriter_DeliversAllBytes(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte("y"), 200*1024)
	var buf bytes.Buffer

	n, err := NewWriter(&buf, New(10<<20)).Write(payload)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Errorf("wrote %d bytes, expected %d", n, len(payload))
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("written bytes differ from payload")
	}
}

func TestLimiter_PacesBeyondBurst(t *testing.T) {
	t.Parallel()
	// 64 KiB/s with a 64 KiB burst: consuming 128 KiB must take at
	// least most of a second.
	l := New(64 * 1024)

	start := time.Now()
	for i := 0; i < 16; i++ {
		l.Take(8 * 1024)
	}
	elapsed := time.Since(start)

	if elapsed < 500*time.Millisecond {
		t.Errorf("128 KiB at 64 KiB/s finished in %v, expected pacing", elapsed)
	}
}

// Package ratelimit provides a token bucket limiter for throttling
// transfer bandwidth.
package ratelimit

import (
	"io"
	"sync"
	"time"
)

// Limiter is a token bucket refilled at a fixed bytes-per-second rate, with
// burst capacity of one second's worth of data. A nil *Limiter never blocks.
type Limiter struct {
	mu     sync.Mutex
	rate   float64
	tokens float64
	last   time.Time
}

// New creates a limiter for the given rate. Non-positive rates return nil,
// which disables limiting.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	rate := float64(bytesPerSecond)
	return &Limiter{rate: rate, tokens: rate, last: time.Now()}
}

// Take consumes n tokens, sleeping as needed to respect the rate. Waits are
// capped at one second per call so a huge n cannot stall a cancellation
// check for long.
func (l *Limiter) Take(n int) {
	if l == nil || n <= 0 {
		return
	}

	l.mu.Lock()
	l.refill()

	need := float64(n)
	if l.tokens >= need {
		l.tokens -= need
		l.mu.Unlock()
		return
	}

	wait := time.Duration((need - l.tokens) / l.rate * float64(time.Second))
	if wait > time.Second {
		wait = time.Second
	}
	l.mu.Unlock()

	time.Sleep(wait)

	l.mu.Lock()
	l.refill()
	if l.tokens >= need {
		l.tokens -= need
	} else {
		l.tokens = 0
	}
	l.mu.Unlock()
}

func (l *Limiter) refill() {
	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.rate {
		l.tokens = l.rate
	}
	l.last = now
}

type reader struct {
	r io.Reader
	l *Limiter
}

// NewReader wraps r so reads respect the limiter. A nil limiter returns r
// unchanged.
func NewReader(r io.Reader, l *Limiter) io.Reader {
	if l == nil {
		return r
	}
	return &reader{r: r, l: l}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Smaller reads keep the pacing smooth.
	const maxChunk = 8 * 1024
	if len(p) > maxChunk {
		p = p[:maxChunk]
	}

	r.l.Take(len(p))
	return r.r.Read(p)
}

type writer struct {
	w io.Writer
	l *Limiter
}

// NewWriter wraps w so writes respect the limiter. A nil limiter returns w
// unchanged.
func NewWriter(w io.Writer, l *Limiter) io.Writer {
	if l == nil {
		return w
	}
	return &writer{w: w, l: l}
}

func (w *writer) Write(p []byte) (int, error) {
	const maxChunk = 64 * 1024

	written := 0
	for written < len(p) {
		chunk := len(p) - written
		if chunk > maxChunk {
			chunk = maxChunk
		}

		w.l.Take(chunk)

		n, err := w.w.Write(p[written : written+chunk])
		written += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

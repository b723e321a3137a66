package hyperftp

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"testing"
)

// timeoutErr satisfies net.Error with Timeout() == true.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransientNetError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", timeoutErr{}, true},
		{"wrapped timeout", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"wrapped reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"plain error", errors.New("boom"), false},
		{"protocol negative", &ProtocolError{Code: 550}, false},
		{"transient protocol negative", &ProtocolError{Code: 421}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isTransientNetError(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWithRetry_RetriesOnce(t *testing.T) {
	t.Parallel()
	logger := slog.New(discardHandler{})

	calls := 0
	err := withRetry(logger, "test", func() error {
		calls++
		if calls == 1 {
			return timeoutErr{}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestWithRetry_NoRetryOnPermanentError(t *testing.T) {
	t.Parallel()
	logger := slog.New(discardHandler{})

	calls := 0
	boom := errors.New("boom")
	err := withRetry(logger, "test", func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWithRetry_GivesUpAfterSecondFailure(t *testing.T) {
	t.Parallel()
	logger := slog.New(discardHandler{})

	calls := 0
	err := withRetry(logger, "test", func() error {
		calls++
		return timeoutErr{}
	})
	if err == nil {
		t.Fatal("expected error after exhausting the retry")
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 calls, got %d", calls)
	}
}

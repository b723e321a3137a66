package hyperftp

import (
	"errors"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// isTransientNetError reports whether an error is worth one more attempt:
// a timeout or a connection reset. Protocol negatives never qualify; a 4xx
// or 5xx reply is the server's answer, not a network hiccup.
func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return false
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET)
}

// withRetry runs fn and, on a transient network error, retries exactly once
// after a short pause. Any other failure surfaces immediately.
func withRetry(logger *slog.Logger, what string, fn func() error) error {
	err := fn()
	if !isTransientNetError(err) {
		return err
	}

	logger.Warn("transient network error, retrying once", "op", what, "error", err)
	time.Sleep(250 * time.Millisecond)

	return fn()
}

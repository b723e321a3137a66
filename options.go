package hyperftp

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Session at construction time.
type Option func(*Session) error

// WithTimeout sets the per-operation I/O timeout for the control and data
// channels. The default is 30 seconds; zero disables deadlines.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative: %v", d)
		}
		s.timeout = d
		return nil
	}
}

// WithIdleTimeout enables keepalive NOOPs: when the session sits idle for
// the given duration, a NOOP is sent to stop the server from dropping the
// control channel. Zero (the default) disables keepalive.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Session) error {
		if d < 0 {
			return fmt.Errorf("idle timeout must not be negative: %v", d)
		}
		s.idleTimeout = d
		return nil
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithDialer substitutes the TCP dialer used for the control and passive
// data channels.
func WithDialer(d Dialer) Option {
	return func(s *Session) error {
		if d == nil {
			return fmt.Errorf("dialer must not be nil")
		}
		s.dialer = d
		return nil
	}
}

// WithTLSConfig sets the TLS configuration for FTPS sessions. Without it, a
// secure profile gets a default config with the server name filled in.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Session) error {
		s.tlsConfig = cfg
		return nil
	}
}

// WithActiveMode forces active (PORT/EPRT) data channels regardless of the
// profile's PassiveMode field.
func WithActiveMode() Option {
	return func(s *Session) error {
		s.forceActive = true
		return nil
	}
}

// WithDisableEPSV skips EPSV and goes straight to PASV. Useful against
// servers that advertise EPSV but misbehave.
func WithDisableEPSV() Option {
	return func(s *Session) error {
		s.disableEPSV = true
		return nil
	}
}

// WithChunkSize sets the transfer buffer size. Cancellation is checked once
// per chunk, so smaller chunks react faster at the cost of more syscalls.
// The default is 32 KiB.
func WithChunkSize(n int) Option {
	return func(s *Session) error {
		if n <= 0 {
			return fmt.Errorf("chunk size must be positive: %d", n)
		}
		s.chunkSize = n
		return nil
	}
}

// WithProgressInterval sets the minimum spacing between snapshots on a
// task's Progress channel. The default is 100ms.
func WithProgressInterval(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return fmt.Errorf("progress interval must be positive: %v", d)
		}
		s.progressInterval = d
		return nil
	}
}

// WithRateLimit caps transfer bandwidth in bytes per second. Zero (the
// default) means unlimited.
func WithRateLimit(bytesPerSecond int64) Option {
	return func(s *Session) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("rate limit must not be negative: %d", bytesPerSecond)
		}
		s.rateLimit = bytesPerSecond
		return nil
	}
}

// WithListingStyle selects the LIST output format instead of per-line
// auto-detection.
func WithListingStyle(style ListingStyle) Option {
	return func(s *Session) error {
		s.listingStyle = style
		s.listingParser = parserForStyle(style)
		return nil
	}
}

// WithListingParser installs a custom parser for LIST output. It overrides
// WithListingStyle.
func WithListingParser(p ListingParser) Option {
	return func(s *Session) error {
		if p == nil {
			return fmt.Errorf("listing parser must not be nil")
		}
		s.listingParser = p
		return nil
	}
}

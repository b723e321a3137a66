package hyperftp

import (
	"errors"
	"time"
)

// startKeepalive launches the idle NOOP loop when an idle timeout is
// configured. Called once per successful Connect.
func (s *Session) startKeepalive() {
	if s.idleTimeout <= 0 {
		return
	}

	stop := make(chan struct{})
	s.stateMu.Lock()
	s.keepaliveStop = stop
	s.stateMu.Unlock()

	go s.keepaliveLoop(stop)
}

func (s *Session) stopKeepalive() {
	s.stateMu.Lock()
	stop := s.keepaliveStop
	s.keepaliveStop = nil
	s.stateMu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// keepaliveLoop sends NOOP whenever the control channel has been idle for
// the configured duration. The NOOP goes through the usual Busy guard, so
// it never interleaves with a real operation; if the session is Busy the
// tick is simply skipped.
func (s *Session) keepaliveLoop(stop chan struct{}) {
	interval := s.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		idle := time.Since(s.lastCommand)
		s.mu.Unlock()
		if idle < s.idleTimeout {
			continue
		}

		if err := s.Noop(); err != nil {
			var se *StateError
			if !errors.As(err, &se) {
				s.logger.Debug("keepalive failed", "error", err)
			}
		}
	}
}

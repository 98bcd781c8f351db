package agentsvc

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// runWatchdog implements spec.md §4.6's idle watchdog using design (b)
// from the Open Questions decisions: it never calls the cloud provider
// itself, it only flips the destroy_requested bit the Controller polls
// on /status. It wakes every min(60s, idle_timeout/10) and stays paused
// until the asynchronous bootstrap has reached ready.
func (s *Server) runWatchdog(ctx context.Context) {
	idleTimeout := s.cfg.IdleTimeout
	if idleTimeout <= 0 {
		return
	}

	interval := idleTimeout / 10
	if interval > 60*time.Second || interval <= 0 {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.readBootstrapStatus() != "ready" {
				continue
			}
			idle := time.Since(time.Unix(0, s.lastActivityUnixNano.Load()))
			if idle >= idleTimeout && !s.destroyRequested.Load() {
				s.destroyRequested.Store(true)
				log.Warn().Dur("idle", idle).Msg("idle watchdog requesting destroy")
			}
		}
	}
}

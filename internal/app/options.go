package service

import (
	"time"

	"github.com/marquee/tierlist/internal/domain/prediction"
	"github.com/marquee/tierlist/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of reclassification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the reclassification queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many choice request ids are remembered.
// Zero means unbounded.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionTTL sets how long an untouched session is kept.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithSweepInterval sets how often expired sessions are dropped.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithMaxRankingsLimit caps how many entries Rankings returns.
func WithMaxRankingsLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxRankingsLimit = limit
		}
	}
}

// WithReclassifyOnChange toggles queueing a reclassification after every
// insert, move and removal.
func WithReclassifyOnChange(enabled bool) Option {
	return func(s *Service) {
		s.reclassifyOnChange = enabled
	}
}

// WithPredictor replaces the default score predictor.
func WithPredictor(p *prediction.Predictor) Option {
	return func(s *Service) {
		if p != nil {
			s.predictor = p
		}
	}
}

// WithClock overrides the time source used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

package repository

import "time"

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithSnapshotInterval sets how often the stats snapshot is rebuilt.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(s *MemStore) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}

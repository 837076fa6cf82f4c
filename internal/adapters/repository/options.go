package repository

import "github.com/okian/sandscore/pkg/logger"

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *TreapStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTopCacheSize sets how many leading rows each board keeps precomputed.
func WithTopCacheSize(n int) Option {
	return func(s *TreapStore) {
		if n > 0 {
			s.topCacheSize = n
		}
	}
}

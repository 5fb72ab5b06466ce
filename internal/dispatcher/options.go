package dispatcher

import "go.uber.org/zap"

type options struct {
	logger *zap.Logger
}

// Option customizes NewPool.
type Option func(*options)

// WithLogger sets the logger handed to each worker.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

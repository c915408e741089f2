package batch

import (
	"log/slog"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/security"
)

// Option configures an Inserter.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	logger       *slog.Logger
	emitter      core.Emitter
	maxBatchSize int
	failOnDrop   bool
}

func defaultConfig() *config {
	return &config{
		logger:  slog.Default(),
		emitter: core.NopEmitter,
	}
}

// WithLogger sets the logger used for split and drop messages.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithEmitter sets the receiver of BatchSplit and TaskDropped events.
func WithEmitter(e core.Emitter) Option {
	return optionFunc(func(c *config) {
		if e != nil {
			c.emitter = e
		}
	})
}

// MaxBatchSize caps the number of tasks sent in one backend call.
// Larger inputs are chunked before any fault handling. Without this option
// the whole input goes out in the first call.
// Values are clamped to [1, security.MaxBatchSize].
func MaxBatchSize(n int) Option {
	return optionFunc(func(c *config) {
		c.maxBatchSize = security.ClampBatchSize(n)
	})
}

// FailOnDrop makes Insert return a *DropError when any task was dropped.
func FailOnDrop() Option {
	return optionFunc(func(c *config) {
		c.failOnDrop = true
	})
}

package jobcontext

import (
	"context"
	"log/slog"

	"github.com/jdziat/fanin/pkg/batch"
	"github.com/jdziat/fanin/pkg/core"
)

// Inserter submits a batch of tasks to a queue. *batch.Inserter implements it.
type Inserter interface {
	Insert(ctx context.Context, tasks []*core.Task, queue string, transactional bool) (batch.Result, error)
}

// Option configures contexts and the notifier.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	logger        *slog.Logger
	emitter       core.Emitter
	id            string
	transactional bool
}

func defaultConfig() *config {
	return &config{
		logger:  slog.Default(),
		emitter: core.NopEmitter,
	}
}

func newConfig(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithEmitter sets the receiver of context events.
func WithEmitter(e core.Emitter) Option {
	return optionFunc(func(c *config) {
		if e != nil {
			c.emitter = e
		}
	})
}

// WithID sets the callback context id instead of generating one.
func WithID(id string) Option {
	return optionFunc(func(c *config) {
		c.id = id
	})
}

// Transactional asks the queue backend to insert each batch transactionally.
func Transactional() Option {
	return optionFunc(func(c *config) {
		c.transactional = true
	})
}

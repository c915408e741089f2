package job

import (
	"time"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/security"
)

// Options are execution options carried with a job. They are passed through
// to the queue and the worker and not interpreted by contexts.
type Options struct {
	Queue      string            `json:"queue" validate:"required,max=255"`
	Priority   int               `json:"priority,omitempty"`
	MaxRetries int               `json:"max_retries" validate:"min=0,max=100"`
	Delay      time.Duration     `json:"delay,omitempty" validate:"min=0"`
	Headers    map[string]string `json:"headers,omitempty"`
	Extra      map[string]any    `json:"extra,omitempty"`
}

// DefaultRetries is the retry count used when none is given.
var DefaultRetries = 2

// NewOptions creates Options with defaults.
func NewOptions() Options {
	return Options{
		Queue:      core.DefaultQueue,
		MaxRetries: DefaultRetries,
	}
}

// Option modifies a Job at construction.
type Option interface {
	Apply(*Job)
}

type optionFunc func(*Job)

func (f optionFunc) Apply(j *Job) { f(j) }

// QueueOpt sets the queue name.
func QueueOpt(name string) Option {
	return optionFunc(func(j *Job) {
		j.Options.Queue = name
	})
}

// Priority sets the job priority (higher = runs first).
func Priority(p int) Option {
	return optionFunc(func(j *Job) {
		j.Options.Priority = p
	})
}

// Retries sets the maximum retry count.
// Values are clamped to [0, MaxRetries] (100).
func Retries(n int) Option {
	return optionFunc(func(j *Job) {
		j.Options.MaxRetries = security.ClampRetries(n)
	})
}

// Delay schedules the job to run after a duration.
func Delay(d time.Duration) Option {
	return optionFunc(func(j *Job) {
		j.Options.Delay = d
	})
}

// Header sets a task header.
func Header(key, value string) Option {
	return optionFunc(func(j *Job) {
		if j.Options.Headers == nil {
			j.Options.Headers = make(map[string]string)
		}
		j.Options.Headers[key] = value
	})
}

// Extra sets a free-form option.
func Extra(key string, value any) Option {
	return optionFunc(func(j *Job) {
		if j.Options.Extra == nil {
			j.Options.Extra = make(map[string]any)
		}
		j.Options.Extra[key] = value
	})
}

// ID sets the job id instead of generating one.
func ID(id string) Option {
	return optionFunc(func(j *Job) {
		j.ID = id
	})
}

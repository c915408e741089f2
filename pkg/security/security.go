// Package security holds the input limits shared by the fanin packages:
// name rules for targets and queues, task size, and the clamps applied to
// user supplied counts.
package security

import (
	"cmp"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/fanin/pkg/core"
)

const (
	MaxTargetNameLength   = 255
	MaxQueueNameLength    = 255
	MaxPayloadSize        = 1 << 20 // encoded task body
	MaxRetries            = 100
	MaxConcurrency        = 1000
	MaxErrorMessageLength = 4096

	// MaxBatchSize bounds explicit chunking in the batch inserter.
	MaxBatchSize = 100
)

// Names start with a letter; dots namespace hooks such as
// "fanin.notify_completed".
var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

type nameRule struct {
	max     int
	invalid error
	tooLong error
}

var (
	targetRule = nameRule{max: MaxTargetNameLength, invalid: core.ErrInvalidTargetName, tooLong: core.ErrTargetNameTooLong}
	queueRule  = nameRule{max: MaxQueueNameLength, invalid: core.ErrInvalidQueueName, tooLong: core.ErrQueueNameTooLong}
)

func (r nameRule) check(name string) error {
	switch {
	case len(name) > r.max:
		return r.tooLong
	case !namePattern.MatchString(name):
		return r.invalid
	}
	return nil
}

// ValidateTargetName checks a registry target or hook name.
func ValidateTargetName(name string) error { return targetRule.check(name) }

// ValidateQueueName checks a queue name.
func ValidateQueueName(name string) error { return queueRule.check(name) }

// SanitizeErrorMessage drops control characters other than whitespace and
// caps the message at MaxErrorMessageLength runes before it is stored on a task.
func SanitizeErrorMessage(msg string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' || r == 127 {
			return -1
		}
		return r
	}, msg)
	if utf8.RuneCountInString(clean) <= MaxErrorMessageLength {
		return clean
	}
	return string([]rune(clean)[:MaxErrorMessageLength-3]) + "..."
}

func clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// ClampRetries bounds a job's retry count to [0, MaxRetries].
func ClampRetries(n int) int { return clamp(n, 0, MaxRetries) }

// ClampConcurrency bounds a queue's worker count to [1, MaxConcurrency].
func ClampConcurrency(n int) int { return clamp(n, 1, MaxConcurrency) }

// ClampBatchSize bounds an explicit chunk size to [1, MaxBatchSize].
func ClampBatchSize(n int) int { return clamp(n, 1, MaxBatchSize) }

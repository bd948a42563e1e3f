// Package retry provides a small functional-options backoff policy, adapted
// from util/retry/options.go, used around the PFL's sync() disk calls and
// the CLI's database-open loop.
package retry

import "time"

type Options func(s *SetOptions)

// SetOptions configures Do's retry behavior.
//
// By default:
//
//	Message:            "retry: "
//	BackoffDurationType: time.Second
//	BackoffMultiplier:   2
//	RetryCount:          3
//	InfiniteRetry:       false
//	ExponentialBackoff:  false
//	BackoffFactor:       2.0
//	MaxBackoff:          30 * time.Second
type SetOptions struct {
	Message             string
	BackoffDurationType time.Duration
	BackoffMultiplier   int
	RetryCount          int
	InfiniteRetry       bool
	ExponentialBackoff  bool
	BackoffFactor       float64
	MaxBackoff          time.Duration
}

func NewSetOptions(opts ...Options) *SetOptions {
	options := &SetOptions{}
	options.setDefaults()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func (o *SetOptions) setDefaults() {
	o.Message = "retry: "
	o.BackoffDurationType = time.Second
	o.BackoffMultiplier = 2
	o.RetryCount = 3
	o.InfiniteRetry = false
	o.ExponentialBackoff = false
	o.BackoffFactor = 2.0
	o.MaxBackoff = 30 * time.Second
}

func WithMessage(message string) Options {
	return func(s *SetOptions) { s.Message = message }
}

func WithBackoffDurationType(d time.Duration) Options {
	return func(s *SetOptions) { s.BackoffDurationType = d }
}

func WithBackoffMultiplier(m int) Options {
	return func(s *SetOptions) { s.BackoffMultiplier = m }
}

func WithRetryCount(n int) Options {
	return func(s *SetOptions) { s.RetryCount = n }
}

func WithInfiniteRetry() Options {
	return func(s *SetOptions) { s.InfiniteRetry = true }
}

func WithExponentialBackoff() Options {
	return func(s *SetOptions) { s.ExponentialBackoff = true }
}

func WithBackoffFactor(factor float64) Options {
	return func(s *SetOptions) { s.BackoffFactor = factor }
}

func WithMaxBackoff(maxBackoff time.Duration) Options {
	return func(s *SetOptions) { s.MaxBackoff = maxBackoff }
}

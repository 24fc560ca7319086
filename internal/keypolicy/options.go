package keypolicy

import (
	"io"
	"log/slog"
	"runtime"
)

type options struct {
	logger           *slog.Logger
	minPasswordScore int
	cores            func() int
}

// Option configures a Registry or a Negotiator
type Option func(*options)

// WithLogger sets the structured logger; the default discards everything
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMinPasswordScore makes Registry.Commit ask for confirmation when a new
// password's zxcvbn score is below score. Zero disables the check.
func WithMinPasswordScore(score int) Option {
	return func(o *options) {
		o.minPasswordScore = max(0, min(score, 4))
	}
}

// WithCores overrides the host core count used for Argon2 parallelism
func WithCores(cores func() int) Option {
	return func(o *options) {
		if cores != nil {
			o.cores = cores
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cores:  runtime.NumCPU,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

package engine

import (
	"time"

	"github.com/wfengine/wfengine/emit"
)

// Option is a functional option for configuring a Scheduler, following
// the same chainable pattern the teacher engine uses for its own With*
// options.
type Option func(*Scheduler)

// WithEmitter attaches an observability sink for task-progress and
// pool events. The default is emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(s *Scheduler) {
		if e != nil {
			s.emitter = e
		}
	}
}

// WithAbortGracePeriod overrides how long an aborting run waits for an
// in-flight runner to acknowledge an explicit abort message before the
// scheduler forcibly closes and replaces it. The default is
// defaultAbortGrace.
func WithAbortGracePeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.abortGrace = d
		}
	}
}

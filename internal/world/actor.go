package world

import (
	"context"

	"go.uber.org/zap"
)

const mailboxDepth = 1024

// actor serializes all mutation of one zone's state onto a single
// goroutine. Bus handlers and the tick loop both enqueue closures; the
// actor runs them one at a time in arrival order.
type actor struct {
	mailbox chan func()
	done    chan struct{}
	logger  *zap.Logger
}

func newActor(logger *zap.Logger) *actor {
	return &actor{
		mailbox: make(chan func(), mailboxDepth),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// run drains the mailbox until ctx is cancelled.
func (a *actor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.mailbox:
			fn()
		}
	}
}

// enqueue submits work to the actor. A full mailbox drops the work with a
// warning rather than blocking the bus pump; the next tick or input
// supersedes anything lost.
func (a *actor) enqueue(fn func()) {
	select {
	case a.mailbox <- fn:
	default:
		a.logger.Warn("zone mailbox full, dropping work")
	}
}

// wait blocks until the actor goroutine has exited.
func (a *actor) wait() {
	<-a.done
}

package remote

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// eventNotifier is an unbounded FIFO queue of connection events with a
// single consumer. Producers never block; the consumer blocks
// cooperatively while the queue is empty and exits on context
// cancellation.
type eventNotifier struct {
	mu    sync.Mutex
	queue []ConnectionEvent
	wake  chan struct{}
}

func newEventNotifier() *eventNotifier {
	return &eventNotifier{
		wake: make(chan struct{}, 1),
	}
}

// Publish appends an event to the queue and wakes the consumer.
func (n *eventNotifier) Publish(ev ConnectionEvent) {
	n.mu.Lock()
	n.queue = append(n.queue, ev)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Run consumes events until ctx is cancelled, invoking deliver for each
// event in emission order. Run must be called at most once.
func (n *eventNotifier) Run(ctx context.Context, deliver func(ConnectionEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.wake:
		}

		for {
			ev, ok := n.pop()
			if !ok {
				break
			}
			deliver(ev)
		}
	}
}

func (n *eventNotifier) pop() (ConnectionEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return ConnectionEvent{}, false
	}
	ev := n.queue[0]
	n.queue = n.queue[1:]
	return ev, true
}

// safeNotify invokes one listener callback, isolating panics so one bad
// listener cannot stop delivery to the rest.
func safeNotify(logger *zap.Logger, ev ConnectionEvent, l ConnectionEventListener) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Connection event listener panicked",
				zap.String("event", ev.Type.String()),
				zap.Any("panic", r),
			)
		}
	}()

	switch ev.Type {
	case EventConnected:
		l.OnConnected()
	case EventDisconnected:
		l.OnDisconnected()
	}
}

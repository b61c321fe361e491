package jobs

import (
	"context"
	"sync"
)

// eventLog is the append-only progress history of one job.
type eventLog struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
	closed bool
}

func newEventLog(history []Event) *eventLog {
	l := &eventLog{events: history}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// append stores e and wakes feeders. It never blocks on subscribers.
func (l *eventLog) append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Seq = len(l.events) + 1
	l.events = append(l.events, e)
	if e.Type == EventDone {
		l.closed = true
	}
	l.cond.Broadcast()
	return e
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// subscribe starts a feeder that replays history then follows live events
// until the done event has been delivered or ctx ends.
func (l *eventLog) subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer < 1 {
		buffer = 1
	}
	out := make(chan Event, buffer)
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	go func() {
		defer close(out)
		defer stop()
		next := 0
		for {
			l.mu.Lock()
			for next >= len(l.events) && !l.closed && ctx.Err() == nil {
				l.cond.Wait()
			}
			if ctx.Err() != nil {
				l.mu.Unlock()
				return
			}
			batch := l.events[next:len(l.events):len(l.events)]
			done := l.closed && next+len(batch) >= len(l.events)
			l.mu.Unlock()

			for _, e := range batch {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
			next += len(batch)
			if done {
				return
			}
		}
	}()
	return out
}

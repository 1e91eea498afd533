package runner

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/akernet/logbuddy/pkg/types"
)

// Event reports the outcome of one submission. Exactly one of Result and
// Err describes it: Err is set when the submission as a whole failed
// (copy failure, cancellation), otherwise Result holds the expansion and
// Files the shared list right after Result's leaves were appended.
type Event struct {
	Submission string
	Source     string
	Result     *types.Result
	Files      []types.Leaf
	Err        error
}

// OK reports whether the submission completed.
func (e Event) OK() bool {
	return e.Err == nil
}

// Summary is a one-line description suitable for display.
func (e Event) Summary() string {
	name := filepath.Base(e.Source)
	switch {
	case errors.Is(e.Err, errCancelled):
		return fmt.Sprintf("%s: cancelled", name)
	case types.IsCopyError(e.Err):
		var te *types.Error
		errors.As(e.Err, &te)
		return fmt.Sprintf("%s: could not be loaded: %v", name, te.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", name, e.Err)
	case len(e.Result.Failures) > 0:
		return fmt.Sprintf("%s: %d files, %d failed archives", name, len(e.Result.Leaves), len(e.Result.Failures))
	default:
		return fmt.Sprintf("%s: %d files", name, len(e.Result.Leaves))
	}
}

// mailbox queues events without bound so publishers never wait for the
// consumer, and delivers them in order on a channel.
type mailbox struct {
	mu      sync.Mutex
	queue   []Event
	closing bool
	signal  chan struct{}
	out     chan Event
}

func newMailbox() *mailbox {
	m := &mailbox{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
	}
	go m.pump()
	return m
}

func (m *mailbox) push(e Event) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, e)
	m.mu.Unlock()
	m.wake()
}

// close stops accepting events; queued ones are still delivered before the
// channel closes.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			closing := m.closing
			m.mu.Unlock()
			if closing {
				return
			}
			<-m.signal
			continue
		}
		e := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.out <- e
	}
}

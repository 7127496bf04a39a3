package server

import (
	"sync"
	"time"
)

// BuildEvent describes a finished rebuild.
type BuildEvent struct {
	At        time.Time `json:"at"`
	Templates int       `json:"templates"`
	Tables    int       `json:"tables"`
	Unmapped  int       `json:"unmapped"`
	Errors    int       `json:"errors"`
	Failed    string    `json:"failed,omitempty"`
}

// notifier fans build events out to event stream subscribers. Each
// subscriber holds at most the latest undelivered event.
type notifier struct {
	mu   sync.Mutex
	subs map[chan BuildEvent]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan BuildEvent]struct{})}
}

func (n *notifier) subscribe() chan BuildEvent {
	ch := make(chan BuildEvent, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *notifier) unsubscribe(ch chan BuildEvent) {
	n.mu.Lock()
	delete(n.subs, ch)
	n.mu.Unlock()
	close(ch)
}

// publish replaces any pending event of a slow subscriber with ev.
func (n *notifier) publish(ev BuildEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs {
		select {
		case <-ch:
		default:
		}
		ch <- ev
	}
}

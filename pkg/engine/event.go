package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/mender/pkg/ollama"
)

// EventKind names a step of a request.
type EventKind uint8

const (
	// EventRequestStart is published once the model to call is known.
	EventRequestStart EventKind = iota + 1
	// EventModelSwitched is published when the user picked another model.
	EventModelSwitched
	// EventInstallStarted is published when a missing model starts installing.
	EventInstallStarted
	// EventInstallProgress carries one progress line of an API pull.
	EventInstallProgress
)

var eventKindNames = map[EventKind]string{
	EventRequestStart:    "request_start",
	EventModelSwitched:   "model_switched",
	EventInstallStarted:  "install_started",
	EventInstallProgress: "install_progress",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event describes a step of a request. Only the fields of its kind are set.
type Event struct {
	Kind      EventKind
	RequestID string
	Op        string
	Model     string
	Time      time.Time

	Previous string              // EventModelSwitched: the missing model.
	Progress ollama.PullProgress // EventInstallProgress.
}

// Status renders the event as a short line for a status display.
func (ev Event) Status() string {
	switch ev.Kind {
	case EventRequestStart:
		return ev.Model
	case EventModelSwitched:
		return fmt.Sprintf("switched from %s to %s", ev.Previous, ev.Model)
	case EventInstallStarted:
		return "installing " + ev.Model
	case EventInstallProgress:
		if pct := ev.Progress.Percent(); pct >= 0 {
			return fmt.Sprintf("%s %.0f%%", ev.Progress.Status, pct)
		}

		return ev.Progress.Status
	default:
		return ""
	}
}

// EventBus hands engine events to watchers. Publish never blocks; a watcher
// that falls behind misses events.
type EventBus struct {
	mu       sync.Mutex
	next     int
	watchers map[int]chan Event
}

// NewEventBus creates an EventBus with no watchers.
func NewEventBus() *EventBus {
	return &EventBus{watchers: make(map[int]chan Event)}
}

// Watch calls fn for each published event, in order, on a goroutine of its
// own. Up to buf events queue while fn runs. The returned stop detaches fn
// and returns after its last call; calling it again is a no-op.
func (b *EventBus) Watch(buf int, fn func(Event)) (stop func()) {
	ch := make(chan Event, buf)

	b.mu.Lock()
	id := b.next
	b.next++
	b.watchers[id] = ch
	b.mu.Unlock()

	done := make(chan struct{})

	go func() {
		defer close(done)

		for ev := range ch {
			fn(ev)
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers, id)
			close(ch)
			b.mu.Unlock()

			<-done
		})
	}
}

// Publish stamps ev and offers it to every watcher.
func (b *EventBus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

package progression

import (
	"sync"
	"time"
)

// EventCourseProgressUpdated names every change notification the tracker
// publishes.
const EventCourseProgressUpdated = "course-progress-updated"

// Event is the payload delivered to subscribers after each persisted change.
type Event struct {
	Name       string         `json:"name"`
	LearnerID  string         `json:"learnerId,omitempty"`
	CourseID   string         `json:"courseId"`
	Progress   CourseProgress `json:"progress"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Notifier is a synchronous observer registry. Listeners run on the
// publishing goroutine in registration order; a listener added after an event
// was published never sees it.
type Notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listener
}

type listener struct {
	id uint64
	fn func(Event)
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, listener{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, l := range n.listeners {
		if l.id == id {
			n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to a snapshot of the current listeners, so listeners
// may subscribe or unsubscribe from inside their callback.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	snapshot := make([]listener, len(n.listeners))
	copy(snapshot, n.listeners)
	n.mu.Unlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
}

// Len reports the number of registered listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

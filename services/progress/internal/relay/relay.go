// Package relay forwards tracker change notifications to a message broker.
// Forwarding is fire-and-forget: a broker outage never fails a progress write.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/lems/internal/progression"
)

// SubjectCourseUpdated is the NATS subject and AMQP routing key of every
// forwarded change.
const SubjectCourseUpdated = "progress.course.updated"

const (
	defaultQueueSize = 256
	publishTimeout   = 5 * time.Second
)

// Envelope is the message body sent to the broker.
type Envelope struct {
	EventID    string                     `json:"event_id"`
	EventName  string                     `json:"event_name"`
	LearnerID  string                     `json:"learner_id,omitempty"`
	CourseID   string                     `json:"course_id"`
	OccurredAt time.Time                  `json:"occurred_at"`
	Progress   progression.CourseProgress `json:"progress"`
}

// Publisher delivers one message. *amqpconn.Client satisfies it directly.
type Publisher interface {
	Publish(ctx context.Context, subject, messageID string, body []byte) error
}

// Relay queues change events and publishes them from a single goroutine, so
// the broker sees them in the order the tracker emitted them. A nil *Relay is
// a no-op.
type Relay struct {
	pub     Publisher
	subject string
	log     *zap.Logger
	queue   chan progression.Event
}

func New(pub Publisher, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		pub:     pub,
		subject: SubjectCourseUpdated,
		log:     log,
		queue:   make(chan progression.Event, defaultQueueSize),
	}
}

// Attach subscribes the relay to n and returns the unsubscribe function.
func (r *Relay) Attach(n *progression.Notifier) (detach func()) {
	if r == nil || n == nil {
		return func() {}
	}
	return n.Subscribe(r.Forward)
}

// Forward enqueues ev without blocking; when the queue is full the event is
// dropped and logged.
func (r *Relay) Forward(ev progression.Event) {
	if r == nil || r.pub == nil {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.log.Warn("relay queue full, dropping event",
			zap.String("learner_id", ev.LearnerID), zap.String("course_id", ev.CourseID))
	}
}

// Run publishes queued events until ctx is done, then flushes what is left
// with a short deadline.
func (r *Relay) Run(ctx context.Context) {
	if r == nil || r.pub == nil {
		return
	}
	for {
		select {
		case ev := <-r.queue:
			r.publish(ctx, ev)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Relay) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case ev := <-r.queue:
			r.publish(ctx, ev)
		default:
			return
		}
	}
}

func (r *Relay) publish(ctx context.Context, ev progression.Event) {
	env := Envelope{
		EventID:    uuid.NewString(),
		EventName:  ev.Name,
		LearnerID:  ev.LearnerID,
		CourseID:   ev.CourseID,
		OccurredAt: ev.OccurredAt,
		Progress:   ev.Progress,
	}
	data, err := json.Marshal(env)
	if err != nil {
		r.log.Warn("relay: marshal failed", zap.String("course_id", ev.CourseID), zap.Error(err))
		return
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.pub.Publish(pctx, r.subject, env.EventID, data); err != nil {
		r.log.Warn("relay: publish failed",
			zap.String("subject", r.subject),
			zap.String("course_id", ev.CourseID),
			zap.Error(err))
	}
}

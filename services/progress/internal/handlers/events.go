package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/lems/internal/platform/api"
	"github.com/example/lems/internal/platform/auth"
	"github.com/example/lems/internal/progression"
)

const (
	defaultKeepAlive = 25 * time.Second
	eventBuffer      = 32
)

// ProgressEvents handles GET /v1/progress/events. It streams the learner's
// change notifications as server-sent events, optionally narrowed to one
// course with ?course_id=. Only changes made after the stream opened are
// delivered.
func ProgressEvents(t *progression.Tracker, log *zap.Logger, keepAlive time.Duration) http.HandlerFunc {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, ok := auth.LearnerIDFromContext(r.Context())
		learnerID = strings.TrimSpace(learnerID)
		if !ok || learnerID == "" {
			api.Unauthorized(w, r, "UNAUTHORIZED", "authentication required")
			return
		}
		courseID := strings.TrimSpace(r.URL.Query().Get("course_id"))

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			log.Warn("event stream not flushable", zap.Error(err))
			return
		}

		events := make(chan progression.Event, eventBuffer)
		unsubscribe := t.Notifier().Subscribe(func(ev progression.Event) {
			if ev.LearnerID != learnerID || (courseID != "" && ev.CourseID != courseID) {
				return
			}
			select {
			case events <- ev:
			default:
				log.Warn("event stream too slow, dropping event",
					zap.String("learner_id", learnerID), zap.String("course_id", ev.CourseID))
			}
		})
		defer unsubscribe()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		var seq uint64
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
			case ev := <-events:
				data, err := json.Marshal(ev)
				if err != nil {
					log.Warn("marshal progress event", zap.Error(err))
					continue
				}
				seq++
				if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Name, data); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

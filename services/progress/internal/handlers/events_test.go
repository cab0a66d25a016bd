package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/lems/internal/platform/auth"
	"github.com/example/lems/internal/progression"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProgressEvents_StreamsOwnChanges(t *testing.T) {
	tr := newTracker(t)
	stream := ProgressEvents(tr, zap.NewNop(), time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream(w, r.WithContext(auth.WithLearnerID(r.Context(), "learner-a")))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?course_id=c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	waitFor(t, func() bool { return tr.Notifier().Len() == 1 })

	ctx := context.Background()
	// Neither of these belongs to the stream.
	_ = tr.ForLearner("learner-b").CompleteLesson(ctx, "c1", "1", "l1")
	_ = tr.ForLearner("learner-a").CompleteLesson(ctx, "c2", "1", "l1")
	if err := tr.ForLearner("learner-a").CompleteLesson(ctx, "c1", "1", "l9"); err != nil {
		t.Fatalf("complete lesson: %v", err)
	}

	sc := bufio.NewScanner(resp.Body)
	var id, name, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if line == "" && data != "" {
			break
		}
	}
	if id != "1" || name != progression.EventCourseProgressUpdated {
		t.Fatalf("unexpected frame id=%q event=%q", id, name)
	}
	var ev progression.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.LearnerID != "learner-a" || ev.CourseID != "c1" || ev.Progress.CompletedLessons[0] != "l9" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	resp.Body.Close()
	waitFor(t, func() bool { return tr.Notifier().Len() == 0 })
}

func TestProgressEvents_Unauthorized(t *testing.T) {
	rr := httptest.NewRecorder()
	ProgressEvents(newTracker(t), zap.NewNop(), 0).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/progress/events", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestProgressEvents_PaddedSubjectMatchesLearner(t *testing.T) {
	tr := newTracker(t)
	stream := ProgressEvents(tr, zap.NewNop(), time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream(w, r.WithContext(auth.WithLearnerID(r.Context(), " learner-a ")))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	waitFor(t, func() bool { return tr.Notifier().Len() == 1 })

	if err := tr.ForLearner(" learner-a ").CompleteLesson(context.Background(), "c1", "1", "l1"); err != nil {
		t.Fatalf("complete lesson: %v", err)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "data: ") {
			var ev progression.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(sc.Text(), "data: ")), &ev); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if ev.LearnerID != "learner-a" {
				t.Fatalf("unexpected learner %q", ev.LearnerID)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", sc.Err())
}

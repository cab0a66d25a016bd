package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/lems/internal/platform/auth"
	"github.com/example/lems/internal/progression"
	"github.com/example/lems/services/progress/internal/ratelimit"
)

// Deps wires the routes. A nil Limiter leaves write routes unthrottled.
type Deps struct {
	Tracker   *progression.Tracker
	Verifier  auth.JWTVerifier
	Limiter   *ratelimit.Limiter
	Log       *zap.Logger
	KeepAlive time.Duration
}

// Register mounts the progress API on r. Call httpserver.SetupRouter first.
func Register(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	t := d.Tracker
	throttle := func(next http.Handler) http.Handler { return next }
	if d.Limiter != nil {
		throttle = d.Limiter.Middleware
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireLearner(d.Verifier))

		r.Get("/v1/outline", GetOutline(t))
		r.Get("/v1/courses", ListCourses(t, log))
		r.Get("/v1/courses/{course_id}/progress", GetCourseProgress(t, log))
		r.Get("/v1/courses/{course_id}/sections/unlocked", GetUnlockedSections(t, log))
		r.Get("/v1/courses/{course_id}/sections/{section_id}/unlocked", IsLessonUnlocked(t, log))
		r.Get("/v1/courses/{course_id}/quizzes/{quiz_id}", GetQuizResult(t, log))
		r.Get("/v1/progress/events", ProgressEvents(t, log, d.KeepAlive))

		r.With(throttle).Post("/v1/courses/{course_id}/quizzes/{quiz_id}/complete", CompleteQuiz(t, log))
		r.With(throttle).Post("/v1/courses/{course_id}/sections/{section_id}/lessons/{lesson_id}/complete", CompleteLesson(t, log))

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/learners", ListLearners(t, log))
			r.Get("/learners/{learner_id}/courses/{course_id}/progress", GetLearnerProgress(t, log))
		})
	})
}

// Package handlers exposes the progression tracker over HTTP. Every route acts
// on the authenticated learner's own progress unless it is an admin route.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/lems/internal/platform/api"
	"github.com/example/lems/internal/platform/auth"
	"github.com/example/lems/internal/platform/httpserver"
	"github.com/example/lems/internal/progression"
)

type coursesResponse struct {
	Courses []progression.CourseProgress `json:"courses"`
}

type unlockedSectionsResponse struct {
	CourseID string   `json:"course_id"`
	Sections []string `json:"sections"`
}

type sectionUnlockedResponse struct {
	CourseID  string `json:"course_id"`
	SectionID string `json:"section_id"`
	Unlocked  bool   `json:"unlocked"`
}

type completeQuizRequest struct {
	Score        *int `json:"score" validate:"required,min=0,max=100"`
	MinimumScore *int `json:"minimum_score" validate:"required,min=0,max=100"`
}

type completeQuizResponse struct {
	Passed   bool                       `json:"passed"`
	Progress progression.CourseProgress `json:"progress"`
}

// learnerTracker scopes t to the learner on the request context, answering
// 401 when there is none.
func learnerTracker(w http.ResponseWriter, r *http.Request, t *progression.Tracker) (*progression.Tracker, bool) {
	id, ok := auth.LearnerIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		api.Unauthorized(w, r, "UNAUTHORIZED", "authentication required")
		return nil, false
	}
	return t.ForLearner(id), true
}

// pathParams reads the named chi params, answering 400 for the first blank one.
func pathParams(w http.ResponseWriter, r *http.Request, names ...string) ([]string, bool) {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.TrimSpace(chi.URLParam(r, n))
		if out[i] == "" {
			api.BadRequest(w, r, "MISSING_ID", n+" is required", nil)
			return nil, false
		}
	}
	return out, true
}

// trackerError maps storage failures: an open circuit is 503, anything else
// is logged and reported as 500.
func trackerError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		api.Unavailable(w, r, "progress store unavailable")
		return
	}
	log.Error("progress store failure",
		zap.String("path", r.URL.Path),
		zap.String("request_id", httpserver.RequestIDFromContext(r.Context())),
		zap.Error(err))
	api.Internal(w, r)
}

// ListCourses handles GET /v1/courses
func ListCourses(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lt, ok := learnerTracker(w, r, t)
		if !ok {
			return
		}
		courses, err := lt.ListCourses(r.Context())
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, coursesResponse{Courses: courses})
	}
}

// GetCourseProgress handles GET /v1/courses/{course_id}/progress
func GetCourseProgress(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lt, ok := learnerTracker(w, r, t)
		if !ok {
			return
		}
		ids, ok := pathParams(w, r, "course_id")
		if !ok {
			return
		}
		p, err := lt.GetCourseProgress(r.Context(), ids[0])
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

// GetUnlockedSections handles GET /v1/courses/{course_id}/sections/unlocked
func GetUnlockedSections(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lt, ok := learnerTracker(w, r, t)
		if !ok {
			return
		}
		ids, ok := pathParams(w, r, "course_id")
		if !ok {
			return
		}
		sections, err := lt.GetUnlockedSections(r.Context(), ids[0])
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, unlockedSectionsResponse{CourseID: ids[0], Sections: sections})
	}
}

// IsLessonUnlocked handles GET /v1/courses/{course_id}/sections/{section_id}/unlocked
func IsLessonUnlocked(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lt, ok := learnerTracker(w, r, t)
		if !ok {
			return
		}
		ids, ok := pathParams(w, r, "course_id", "section_id")
		if !ok {
			return
		}
		unlocked, err := lt.IsLessonUnlocked(r.Context(), ids[0], ids[1])
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, sectionUnlockedResponse{CourseID: ids[0], SectionID: ids[1], Unlocked: unlocked})
	}
}

// CompleteQuiz handles POST /v1/courses/{course_id}/quizzes/{quiz_id}/complete
func CompleteQuiz(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lt, ok := learnerTracker(w, r, t)
		if !ok {
			return
		}
		ids, ok := pathParams(w, r, "course_id", "quiz_id")
		if !ok {
			return
		}

		var req completeQuizRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, r, "INVALID_JSON", "invalid JSON", nil)
			return
		}
		if err := validate.Struct(req); err != nil {
			api.BadRequest(w, r, "VALIDATION_FAILED", "invalid quiz result", validationDetails(err))
			return
		}

		passed, p, err := lt.CompleteQuizWithProgress(r.Context(), ids[0], ids[1], *req.Score, *req.MinimumScore)
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, completeQuizResponse{Passed: passed, Progress: p})
	}
}

// CompleteLesson handles POST /v1/courses/{course_id}/sections/{section_id}/lessons/{lesson_id}/complete
func CompleteLesson(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lt, ok := learnerTracker(w, r, t)
		if !ok {
			return
		}
		ids, ok := pathParams(w, r, "course_id", "section_id", "lesson_id")
		if !ok {
			return
		}
		p, err := lt.CompleteLessonWithProgress(r.Context(), ids[0], ids[1], ids[2])
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

// GetQuizResult handles GET /v1/courses/{course_id}/quizzes/{quiz_id}
func GetQuizResult(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lt, ok := learnerTracker(w, r, t)
		if !ok {
			return
		}
		ids, ok := pathParams(w, r, "course_id", "quiz_id")
		if !ok {
			return
		}
		res, found, err := lt.GetQuizResult(r.Context(), ids[0], ids[1])
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		if !found {
			api.NotFound(w, r, "QUIZ_NOT_ATTEMPTED", "quiz has not been attempted")
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}

// GetOutline handles GET /v1/outline
func GetOutline(t *progression.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, t.Outline())
	}
}

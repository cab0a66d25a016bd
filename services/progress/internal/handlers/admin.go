package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/lems/internal/platform/api"
	"github.com/example/lems/internal/progression"
)

type learnersResponse struct {
	Learners []string `json:"learners"`
}

// GetLearnerProgress handles GET /v1/admin/learners/{learner_id}/courses/{course_id}/progress
func GetLearnerProgress(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, ok := pathParams(w, r, "learner_id", "course_id")
		if !ok {
			return
		}
		p, err := t.ForLearner(ids[0]).GetCourseProgress(r.Context(), ids[1])
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

// ListLearners handles GET /v1/admin/learners
func ListLearners(t *progression.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learners, err := t.Learners(r.Context())
		if err != nil {
			trackerError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, learnersResponse{Learners: learners})
	}
}

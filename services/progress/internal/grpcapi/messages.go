package grpcapi

import "github.com/example/lems/internal/progression"

type CourseRequest struct {
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id" validate:"required"`
}

type CourseProgressResponse struct {
	Progress progression.CourseProgress `json:"progress"`
}

type CompleteQuizRequest struct {
	LearnerID    string `json:"learner_id"`
	CourseID     string `json:"course_id" validate:"required"`
	QuizID       string `json:"quiz_id" validate:"required"`
	Score        int    `json:"score" validate:"min=0,max=100"`
	MinimumScore int    `json:"minimum_score" validate:"min=0,max=100"`
}

type CompleteQuizResponse struct {
	Passed   bool                       `json:"passed"`
	Progress progression.CourseProgress `json:"progress"`
}

type CompleteLessonRequest struct {
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	LessonID  string `json:"lesson_id" validate:"required"`
}

type UnlockedSectionsResponse struct {
	SectionIDs []string `json:"section_ids"`
}

type SectionRequest struct {
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

type LessonUnlockedResponse struct {
	Unlocked bool `json:"unlocked"`
}

type QuizRequest struct {
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id" validate:"required"`
	QuizID    string `json:"quiz_id" validate:"required"`
}

type QuizResultResponse struct {
	Result progression.QuizResult `json:"result"`
}

func (r *CourseRequest) learner() string         { return r.LearnerID }
func (r *CompleteQuizRequest) learner() string   { return r.LearnerID }
func (r *CompleteLessonRequest) learner() string { return r.LearnerID }
func (r *SectionRequest) learner() string        { return r.LearnerID }
func (r *QuizRequest) learner() string           { return r.LearnerID }

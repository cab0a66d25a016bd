// Package progression tracks a learner's unlock and completion state across
// the sections of a course.
package progression

import (
	"math"
	"slices"
	"time"
)

// CourseProgress is the persisted record for one course.
type CourseProgress struct {
	CourseID         string                `json:"courseId"`
	Sections         []SectionProgress     `json:"sections"`
	OverallProgress  int                   `json:"overallProgress"`
	CompletedLessons []string              `json:"completedLessons"`
	QuizResults      map[string]QuizResult `json:"quizResults"`
}

// SectionProgress is the state of one section within a course.
type SectionProgress struct {
	SectionID        string   `json:"sectionId"`
	Unlocked         bool     `json:"unlocked"`
	Completed        bool     `json:"completed"`
	Progress         int      `json:"progress"`
	LessonsCompleted []string `json:"lessonsCompleted"`
}

// QuizResult aggregates every attempt made at one quiz.
type QuizResult struct {
	QuizID      string    `json:"quizId"`
	Attempts    int       `json:"attempts"`
	BestScore   int       `json:"bestScore"`
	Passed      bool      `json:"passed"`
	CompletedAt time.Time `json:"completedAt"`
	UnlockNext  bool      `json:"unlockNext"`
}

// State is the derived lifecycle state of a section.
type State string

const (
	StateLocked    State = "locked"
	StateUnlocked  State = "unlocked"
	StateCompleted State = "completed"
)

func (s SectionProgress) State() State {
	switch {
	case s.Completed:
		return StateCompleted
	case s.Unlocked:
		return StateUnlocked
	default:
		return StateLocked
	}
}

// Section returns a pointer into p.Sections, or nil when the course has no
// section with that id.
func (p *CourseProgress) Section(id string) *SectionProgress {
	for i := range p.Sections {
		if p.Sections[i].SectionID == id {
			return &p.Sections[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share slices or maps with the
// tracker's working copy.
func (p CourseProgress) Clone() CourseProgress {
	out := p
	out.Sections = make([]SectionProgress, len(p.Sections))
	for i, s := range p.Sections {
		s.LessonsCompleted = slices.Clone(s.LessonsCompleted)
		if s.LessonsCompleted == nil {
			s.LessonsCompleted = []string{}
		}
		out.Sections[i] = s
	}
	out.CompletedLessons = slices.Clone(p.CompletedLessons)
	if out.CompletedLessons == nil {
		out.CompletedLessons = []string{}
	}
	out.QuizResults = make(map[string]QuizResult, len(p.QuizResults))
	for k, v := range p.QuizResults {
		out.QuizResults[k] = v
	}
	return out
}

func (p *CourseProgress) recomputeOverall() {
	if len(p.Sections) == 0 {
		p.OverallProgress = 0
		return
	}
	done := 0
	for _, s := range p.Sections {
		if s.Completed {
			done++
		}
	}
	p.OverallProgress = percent(done, len(p.Sections))
}

// percent rounds half up, matching how the dashboards display ratios.
func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	v := int(math.Floor(100*float64(part)/float64(whole) + 0.5))
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

// appendUnique appends id unless it is already present.
func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

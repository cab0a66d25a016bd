package progression

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultLessonCount is the number of lessons assumed for a section that
// neither lists its lessons nor sets LessonCount.
const DefaultLessonCount = 3

var ErrInvalidOutline = errors.New("invalid course outline")

// Outline describes the section graph shared by every course the tracker
// serves.
type Outline struct {
	Sections []SectionSpec `json:"sections" mapstructure:"sections" validate:"required,min=1,dive"`
}

// SectionSpec is one node of the outline. Requires holds the quiz ids whose
// passing unlocks the section; a section without prerequisites starts
// unlocked.
type SectionSpec struct {
	ID          string   `json:"id" mapstructure:"id" validate:"required"`
	Title       string   `json:"title,omitempty" mapstructure:"title"`
	Quiz        string   `json:"quiz,omitempty" mapstructure:"quiz"`
	Requires    []string `json:"requires,omitempty" mapstructure:"requires" validate:"dive,required"`
	LessonCount int      `json:"lesson_count,omitempty" mapstructure:"lesson_count" validate:"gte=0"`
	Lessons     []string `json:"lessons,omitempty" mapstructure:"lessons" validate:"dive,required"`
}

// lessonTotal is the number of lessons section progress is measured against.
func (s SectionSpec) lessonTotal() int {
	if len(s.Lessons) > 0 {
		return len(s.Lessons)
	}
	if s.LessonCount > 0 {
		return s.LessonCount
	}
	return DefaultLessonCount
}

// DefaultOutline is the three-section course used when no outline file is
// configured: quiz "1" opens section "2", quiz "2" opens section "3".
func DefaultOutline() Outline {
	return Outline{Sections: []SectionSpec{
		{ID: "1", Quiz: "1", LessonCount: DefaultLessonCount},
		{ID: "2", Quiz: "2", Requires: []string{"1"}, LessonCount: DefaultLessonCount},
		{ID: "3", Quiz: "3", Requires: []string{"2"}, LessonCount: DefaultLessonCount},
	}}
}

var validate = validator.New()

// Validate checks field constraints, id uniqueness and that the prerequisite
// edges form a DAG.
func (o Outline) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutline, err)
	}

	seen := make(map[string]struct{}, len(o.Sections))
	gates := make(map[string]string, len(o.Sections))
	for _, s := range o.Sections {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: blank section id", ErrInvalidOutline)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate section %q", ErrInvalidOutline, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Quiz != "" {
			if other, dup := gates[s.Quiz]; dup {
				return fmt.Errorf("%w: quiz %q gates both %q and %q", ErrInvalidOutline, s.Quiz, other, s.ID)
			}
			gates[s.Quiz] = s.ID
		}
	}

	for _, s := range o.Sections {
		for _, q := range s.Requires {
			if o.owner(q) == "" {
				return fmt.Errorf("%w: section %q requires unknown quiz %q", ErrInvalidOutline, s.ID, q)
			}
		}
	}

	// Edge: owner of the required quiz -> section requiring it.
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(o.Sections))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("%w: prerequisite cycle through section %q", ErrInvalidOutline, id)
		case black:
			return nil
		}
		color[id] = grey
		for _, s := range o.Sections {
			if s.ID != id {
				continue
			}
			for _, q := range s.Requires {
				if owner := o.owner(q); owner != "" {
					if err := visit(owner); err != nil {
						return err
					}
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, s := range o.Sections {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}

// owner returns the id of the section gated by quizID, falling back to the
// section sharing the quiz's id.
func (o Outline) owner(quizID string) string {
	for _, s := range o.Sections {
		if s.Quiz == quizID {
			return s.ID
		}
	}
	for _, s := range o.Sections {
		if s.ID == quizID {
			return s.ID
		}
	}
	return ""
}

// UnlockedBy returns, in outline order, the sections that list quizID as a
// prerequisite.
func (o Outline) UnlockedBy(quizID string) []string {
	var out []string
	for _, s := range o.Sections {
		for _, q := range s.Requires {
			if q == quizID {
				out = append(out, s.ID)
				break
			}
		}
	}
	return out
}

// CompletedBy returns the section that passing quizID completes. A quiz that
// gates no section completes the section with the same id, if any.
func (o Outline) CompletedBy(quizID string) (string, bool) {
	id := o.owner(quizID)
	return id, id != ""
}

// Spec returns the outline entry for sectionID.
func (o Outline) Spec(sectionID string) (SectionSpec, bool) {
	for _, s := range o.Sections {
		if s.ID == sectionID {
			return s, true
		}
	}
	return SectionSpec{}, false
}

// Initial synthesizes the record of a course nobody has touched yet.
func (o Outline) Initial(courseID string) CourseProgress {
	p := CourseProgress{
		CourseID:         courseID,
		Sections:         make([]SectionProgress, 0, len(o.Sections)),
		CompletedLessons: []string{},
		QuizResults:      map[string]QuizResult{},
	}
	for _, s := range o.Sections {
		p.Sections = append(p.Sections, SectionProgress{
			SectionID:        s.ID,
			Unlocked:         len(s.Requires) == 0,
			LessonsCompleted: []string{},
		})
	}
	return p
}

// matches reports whether p has exactly the outline's sections, in order.
func (o Outline) matches(p CourseProgress) bool {
	if len(p.Sections) != len(o.Sections) {
		return false
	}
	for i, s := range o.Sections {
		if p.Sections[i].SectionID != s.ID {
			return false
		}
	}
	return true
}

package progression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StorageKey is the key of the shared, learner-less progress blob.
// Learner-scoped blobs live under StorageKey + ":" + learnerID.
const StorageKey = "course_progress"

// Tracker is the single source of truth for unlock and completion state.
// All mutations load the whole blob, change one course and write the whole
// blob back. Mutations on the same key are serialized inside one Tracker
// family; writers in other processes are last-writer-wins.
type Tracker struct {
	store     Store
	outline   Outline
	notifier  *Notifier
	log       *zap.Logger
	now       func() time.Time
	locks     *keyLocks
	key       string
	learnerID string
}

type Option func(*Tracker)

func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithClock replaces time.Now for CompletedAt and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithNotifier shares an existing registry instead of creating one.
func WithNotifier(n *Notifier) Option {
	return func(t *Tracker) {
		if n != nil {
			t.notifier = n
		}
	}
}

func New(store Store, outline Outline, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("progression: nil store")
	}
	if err := outline.Validate(); err != nil {
		return nil, err
	}
	t := &Tracker{
		store:    store,
		outline:  outline,
		notifier: NewNotifier(),
		log:      zap.NewNop(),
		now:      time.Now,
		locks:    newKeyLocks(),
		key:      StorageKey,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ForLearner returns a tracker over learnerID's own blob. It shares the
// store, outline, notifier and write serialization with t.
func (t *Tracker) ForLearner(learnerID string) *Tracker {
	learnerID = strings.TrimSpace(learnerID)
	c := *t
	c.learnerID = learnerID
	c.key = LearnerKey(learnerID)
	c.log = t.log.With(zap.String("learner_id", learnerID))
	return &c
}

// LearnerKey is the storage key holding learnerID's courses.
func LearnerKey(learnerID string) string {
	if learnerID == "" {
		return StorageKey
	}
	return StorageKey + ":" + learnerID
}

func (t *Tracker) Notifier() *Notifier { return t.notifier }
func (t *Tracker) Outline() Outline    { return t.outline }
func (t *Tracker) LearnerID() string   { return t.learnerID }

// GetCourseProgress returns the stored record, or a freshly synthesized one
// that is not persisted when the course has never been touched.
func (t *Tracker) GetCourseProgress(ctx context.Context, courseID string) (CourseProgress, error) {
	courses, err := t.load(ctx)
	if err != nil {
		return CourseProgress{}, err
	}
	return t.course(courses, courseID).Clone(), nil
}

// ListCourses returns every persisted course of the tracker's blob ordered by
// course id.
func (t *Tracker) ListCourses(ctx context.Context) ([]CourseProgress, error) {
	courses, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CourseProgress, 0, len(courses))
	for id := range courses {
		out = append(out, t.course(courses, id).Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

// Learners lists the ids of learners that have a stored blob.
func (t *Tracker) Learners(ctx context.Context) ([]string, error) {
	prefix := StorageKey + ":"
	keys, err := t.store.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out, nil
}

// CompleteQuiz records one attempt and reports whether it passed. The quiz
// result is persisted whether or not the attempt passed; a pass also runs the
// unlock step.
func (t *Tracker) CompleteQuiz(ctx context.Context, courseID, quizID string, score, minimumScore int) (bool, error) {
	passed, _, err := t.CompleteQuizWithProgress(ctx, courseID, quizID, score, minimumScore)
	return passed, err
}

// CompleteQuizWithProgress is CompleteQuiz that also returns the course record
// exactly as it was written.
func (t *Tracker) CompleteQuizWithProgress(ctx context.Context, courseID, quizID string, score, minimumScore int) (bool, CourseProgress, error) {
	var passed bool
	p, err := t.update(ctx, courseID, func(p *CourseProgress) {
		r := p.QuizResults[quizID]
		r.QuizID = quizID
		r.Attempts++
		r.BestScore = max(r.BestScore, score)
		passed = score >= minimumScore
		r.Passed = passed
		r.UnlockNext = passed
		r.CompletedAt = t.now().UTC()
		p.QuizResults[quizID] = r

		if passed {
			t.unlock(p, quizID)
		}
	})
	if err != nil {
		return false, CourseProgress{}, err
	}
	t.log.Debug("quiz completed",
		zap.String("course_id", courseID),
		zap.String("quiz_id", quizID),
		zap.Int("score", score),
		zap.Bool("passed", passed),
	)
	return passed, p, nil
}

func (t *Tracker) unlock(p *CourseProgress, quizID string) {
	for _, id := range t.outline.UnlockedBy(quizID) {
		if s := p.Section(id); s != nil {
			s.Unlocked = true
		}
	}
	if id, ok := t.outline.CompletedBy(quizID); ok {
		if s := p.Section(id); s != nil {
			s.Completed = true
			s.Progress = 100
		}
	}
	p.recomputeOverall()
}

// CompleteLesson marks lessonID done for the course and, when sectionID is a
// known section, for that section too. Repeating a call changes nothing but
// still persists and notifies.
func (t *Tracker) CompleteLesson(ctx context.Context, courseID, sectionID, lessonID string) error {
	_, err := t.CompleteLessonWithProgress(ctx, courseID, sectionID, lessonID)
	return err
}

// CompleteLessonWithProgress is CompleteLesson that also returns the written
// course record.
func (t *Tracker) CompleteLessonWithProgress(ctx context.Context, courseID, sectionID, lessonID string) (CourseProgress, error) {
	return t.update(ctx, courseID, func(p *CourseProgress) {
		p.CompletedLessons = appendUnique(p.CompletedLessons, lessonID)
		s := p.Section(sectionID)
		if s == nil {
			return
		}
		s.LessonsCompleted = appendUnique(s.LessonsCompleted, lessonID)
		spec, _ := t.outline.Spec(sectionID)
		s.Progress = percent(len(s.LessonsCompleted), spec.lessonTotal())
	})
}

// GetUnlockedSections returns the unlocked section ids in outline order.
func (t *Tracker) GetUnlockedSections(ctx context.Context, courseID string) ([]string, error) {
	p, err := t.GetCourseProgress(ctx, courseID)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, s := range p.Sections {
		if s.Unlocked {
			out = append(out, s.SectionID)
		}
	}
	return out, nil
}

// IsLessonUnlocked reports whether the lessons of sectionID are accessible,
// which is the section's own unlocked flag.
func (t *Tracker) IsLessonUnlocked(ctx context.Context, courseID, sectionID string) (bool, error) {
	p, err := t.GetCourseProgress(ctx, courseID)
	if err != nil {
		return false, err
	}
	s := p.Section(sectionID)
	return s != nil && s.Unlocked, nil
}

// GetQuizResult returns the aggregated result for quizID; ok is false when the
// quiz has never been attempted.
func (t *Tracker) GetQuizResult(ctx context.Context, courseID, quizID string) (QuizResult, bool, error) {
	p, err := t.GetCourseProgress(ctx, courseID)
	if err != nil {
		return QuizResult{}, false, err
	}
	r, ok := p.QuizResults[quizID]
	return r, ok, nil
}

func (t *Tracker) update(ctx context.Context, courseID string, mutate func(*CourseProgress)) (CourseProgress, error) {
	unlock := t.locks.lock(t.key)
	courses, err := t.load(ctx)
	if err != nil {
		unlock()
		return CourseProgress{}, err
	}

	p := t.course(courses, courseID)
	mutate(&p)
	courses[courseID] = p

	blob, err := Encode(courses)
	if err != nil {
		unlock()
		return CourseProgress{}, fmt.Errorf("encode progress: %w", err)
	}
	if err := t.store.Save(ctx, t.key, blob); err != nil {
		unlock()
		return CourseProgress{}, fmt.Errorf("save progress: %w", err)
	}
	unlock()

	t.notifier.Publish(Event{
		Name:       EventCourseProgressUpdated,
		LearnerID:  t.learnerID,
		CourseID:   courseID,
		Progress:   p.Clone(),
		OccurredAt: t.now().UTC(),
	})
	return p.Clone(), nil
}

func (t *Tracker) load(ctx context.Context) (map[string]CourseProgress, error) {
	blob, err := t.store.Load(ctx, t.key)
	if errors.Is(err, ErrNotFound) {
		return map[string]CourseProgress{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	courses, err := Decode(blob)
	if err != nil {
		t.log.Warn("discarding unreadable progress blob", zap.String("key", t.key), zap.Error(err))
		return map[string]CourseProgress{}, nil
	}
	return courses, nil
}

// course returns the record for courseID, substituting the initial state when
// it is absent or no longer matches the outline.
func (t *Tracker) course(courses map[string]CourseProgress, courseID string) CourseProgress {
	p, ok := courses[courseID]
	if !ok {
		return t.outline.Initial(courseID)
	}
	if !t.outline.matches(p) {
		t.log.Warn("stored course does not match outline, resetting to defaults",
			zap.String("course_id", courseID))
		return t.outline.Initial(courseID)
	}
	if p.QuizResults == nil {
		p.QuizResults = map[string]QuizResult{}
	}
	if p.CompletedLessons == nil {
		p.CompletedLessons = []string{}
	}
	return p
}

// keyLocks hands out one mutex per storage key, dropping it once unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

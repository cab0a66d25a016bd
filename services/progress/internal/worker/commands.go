// Package worker applies progress commands that arrive over JetStream, for
// clients such as the content player that report completions asynchronously.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/lems/internal/progression"
)

const (
	SubjectCommands = "progress.commands.>"
	DurableName     = "progress_commands"

	KindLesson = "lesson"
	KindQuiz   = "quiz"
)

// ErrInvalidCommand marks a message that can never succeed; it is terminated
// instead of redelivered.
var ErrInvalidCommand = errors.New("invalid progress command")

// Command is the payload published on progress.commands.*.
type Command struct {
	EventID      string `json:"event_id"`
	Kind         string `json:"kind" validate:"required,oneof=lesson quiz"`
	LearnerID    string `json:"learner_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	SectionID    string `json:"section_id" validate:"required_if=Kind lesson"`
	LessonID     string `json:"lesson_id" validate:"required_if=Kind lesson"`
	QuizID       string `json:"quiz_id" validate:"required_if=Kind quiz"`
	Score        int    `json:"score" validate:"min=0,max=100"`
	MinimumScore int    `json:"minimum_score" validate:"min=0,max=100"`
}

var validate = validator.New()

// Apply decodes one message body and runs it against the learner's tracker.
func Apply(ctx context.Context, tracker *progression.Tracker, data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := validate.Struct(cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	lt := tracker.ForLearner(cmd.LearnerID)
	switch cmd.Kind {
	case KindLesson:
		return cmd, lt.CompleteLesson(ctx, cmd.CourseID, cmd.SectionID, cmd.LessonID)
	default:
		_, err := lt.CompleteQuiz(ctx, cmd.CourseID, cmd.QuizID, cmd.Score, cmd.MinimumScore)
		return cmd, err
	}
}

// Consumer pulls commands in batches and acks each one after it is applied.
type Consumer struct {
	Tracker   *progression.Tracker
	Log       *zap.Logger
	BatchSize int
	MaxWait   time.Duration
}

// Start subscribes and runs the fetch loop in a goroutine until ctx is done.
func (c *Consumer) Start(ctx context.Context, js nats.JetStreamContext) error {
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 2 * time.Second
	}
	sub, err := js.PullSubscribe(SubjectCommands, DurableName)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectCommands, err)
	}
	go c.loop(ctx, sub)
	return nil
}

func (c *Consumer) loop(ctx context.Context, sub *nats.Subscription) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := sub.Fetch(c.BatchSize, nats.MaxWait(c.MaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			c.Log.Warn("command fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m *nats.Msg) {
	cmd, err := Apply(ctx, c.Tracker, m.Data)
	switch {
	case err == nil:
		if err := m.Ack(); err != nil {
			c.Log.Warn("command ack failed", zap.Error(err))
		}
	case errors.Is(err, ErrInvalidCommand):
		c.Log.Warn("dropping invalid command", zap.String("subject", m.Subject), zap.Error(err))
		if err := m.Term(); err != nil {
			c.Log.Warn("command term failed", zap.Error(err))
		}
	default:
		c.Log.Warn("command apply failed, redelivering",
			zap.String("event_id", cmd.EventID),
			zap.String("learner_id", cmd.LearnerID),
			zap.Error(err))
		if err := m.Nak(); err != nil {
			c.Log.Warn("command nak failed", zap.Error(err))
		}
	}
}

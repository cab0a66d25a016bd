package grpcapi

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/lems/internal/progression"
	"github.com/example/lems/services/progress/internal/ratelimit"
)

func newService(t *testing.T) *Service {
	t.Helper()
	tr, err := progression.New(progression.NewMemoryStore(), progression.DefaultOutline())
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	return &Service{Tracker: tr}
}

func TestCompleteQuiz_UnlocksNextSection(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	resp, err := svc.CompleteQuiz(ctx, &CompleteQuizRequest{LearnerID: "u1", CourseID: "c1", QuizID: "1", Score: 75, MinimumScore: 70})
	if err != nil {
		t.Fatalf("complete quiz: %v", err)
	}
	if !resp.Passed || !resp.Progress.Sections[1].Unlocked {
		t.Fatalf("unexpected response: %+v", resp)
	}

	sections, err := svc.GetUnlockedSections(ctx, &CourseRequest{LearnerID: "u1", CourseID: "c1"})
	if err != nil {
		t.Fatalf("unlocked sections: %v", err)
	}
	if len(sections.SectionIDs) != 2 {
		t.Fatalf("expected 2 unlocked sections, got %v", sections.SectionIDs)
	}
}

func TestLearnerFromMetadata(t *testing.T) {
	svc := newService(t)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("learner_id", "u2"))

	if _, err := svc.CompleteLesson(ctx, &CompleteLessonRequest{CourseID: "c1", SectionID: "1", LessonID: "l1"}); err != nil {
		t.Fatalf("complete lesson: %v", err)
	}
	p, err := svc.Tracker.ForLearner("u2").GetCourseProgress(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(p.CompletedLessons) != 1 {
		t.Fatalf("expected lesson recorded for u2, got %+v", p)
	}
}

func TestMissingLearner(t *testing.T) {
	svc := newService(t)
	_, err := svc.GetCourseProgress(context.Background(), &CourseRequest{CourseID: "c1"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestValidationDetails(t *testing.T) {
	svc := newService(t)
	_, err := svc.CompleteQuiz(context.Background(), &CompleteQuizRequest{LearnerID: "u1", CourseID: "c1", QuizID: "1", Score: 120})
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	var sawInfo, sawField bool
	for _, d := range st.Details() {
		switch v := d.(type) {
		case *errdetails.ErrorInfo:
			sawInfo = v.Domain == "progress" && v.Reason == "VALIDATION_FAILED"
		case *errdetails.BadRequest:
			for _, fv := range v.FieldViolations {
				if fv.Field == "Score" {
					sawField = true
				}
			}
		}
	}
	if !sawInfo || !sawField {
		t.Fatalf("missing details: info=%v field=%v (%v)", sawInfo, sawField, st.Details())
	}
}

func TestGetQuizResult_NotFound(t *testing.T) {
	svc := newService(t)
	_, err := svc.GetQuizResult(context.Background(), &QuizRequest{LearnerID: "u1", CourseID: "c1", QuizID: "3"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func dialBufconn(t *testing.T, svc ProgressServer, opts ...grpc.ServerOption) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(opts...)
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestOverTheWire(t *testing.T) {
	conn := dialBufconn(t, newService(t))
	client := NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.CompleteLesson(ctx, &CompleteLessonRequest{LearnerID: "u1", CourseID: "c1", SectionID: "1", LessonID: "l1"}); err != nil {
		t.Fatalf("complete lesson: %v", err)
	}
	resp, err := client.GetCourseProgress(ctx, &CourseRequest{LearnerID: "u1", CourseID: "c1"})
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if resp.Progress.Sections[0].Progress != 33 {
		t.Fatalf("expected section progress 33, got %d", resp.Progress.Sections[0].Progress)
	}
	unlocked, err := client.IsLessonUnlocked(ctx, &SectionRequest{LearnerID: "u1", CourseID: "c1", SectionID: "2"})
	if err != nil || unlocked.Unlocked {
		t.Fatalf("section 2 should be locked: %+v, %v", unlocked, err)
	}
	if _, err := client.GetQuizResult(ctx, &QuizRequest{LearnerID: "u1", CourseID: "c1", QuizID: "1"}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound over the wire, got %v", err)
	}

	hc := healthpb.NewHealthClient(conn)
	hr, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || hr.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health: %v, %v", hr, err)
	}
}

func TestRateLimitInterceptor(t *testing.T) {
	conn := dialBufconn(t, newService(t), grpc.ChainUnaryInterceptor(RateLimit(ratelimit.New(0.001, 1))))
	client := NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := &CompleteLessonRequest{LearnerID: "u1", CourseID: "c1", SectionID: "1", LessonID: "l1"}
	if _, err := client.CompleteLesson(ctx, req); err != nil {
		t.Fatalf("first write: %v", err)
	}
	_, err := client.CompleteLesson(ctx, req)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
	// Reads pass through.
	if _, err := client.GetCourseProgress(ctx, &CourseRequest{LearnerID: "u1", CourseID: "c1"}); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestRateLimitInterceptor_MetadataLearnersHaveOwnBuckets(t *testing.T) {
	conn := dialBufconn(t, newService(t), grpc.ChainUnaryInterceptor(RateLimit(ratelimit.New(0.001, 1))))
	client := NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := &CompleteLessonRequest{CourseID: "c1", SectionID: "1", LessonID: "l1"}
	alice := metadata.AppendToOutgoingContext(ctx, "learner_id", "alice")
	bob := metadata.AppendToOutgoingContext(ctx, "learner_id", " bob ")

	if _, err := client.CompleteLesson(alice, req); err != nil {
		t.Fatalf("alice write: %v", err)
	}
	if _, err := client.CompleteLesson(bob, req); err != nil {
		t.Fatalf("bob must not share alice's bucket: %v", err)
	}
	if _, err := client.CompleteLesson(alice, req); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected alice throttled, got %v", err)
	}
}

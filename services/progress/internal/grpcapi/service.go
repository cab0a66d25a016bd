// Package grpcapi serves the progression tracker as
// lems.progress.v1.ProgressService. Messages travel as JSON (content-subtype
// "json"); the standard health and reflection services are registered too.
package grpcapi

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"

	"github.com/example/lems/internal/progression"
)

const ServiceName = "lems.progress.v1.ProgressService"

// learnerMetadataKey is consulted when a request carries no learner_id.
const learnerMetadataKey = "learner_id"

var validate = validator.New()

type ProgressServer interface {
	GetCourseProgress(context.Context, *CourseRequest) (*CourseProgressResponse, error)
	CompleteQuiz(context.Context, *CompleteQuizRequest) (*CompleteQuizResponse, error)
	CompleteLesson(context.Context, *CompleteLessonRequest) (*CourseProgressResponse, error)
	GetUnlockedSections(context.Context, *CourseRequest) (*UnlockedSectionsResponse, error)
	IsLessonUnlocked(context.Context, *SectionRequest) (*LessonUnlockedResponse, error)
	GetQuizResult(context.Context, *QuizRequest) (*QuizResultResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProgressServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetCourseProgress", ProgressServer.GetCourseProgress),
		unary("CompleteQuiz", ProgressServer.CompleteQuiz),
		unary("CompleteLesson", ProgressServer.CompleteLesson),
		unary("GetUnlockedSections", ProgressServer.GetUnlockedSections),
		unary("IsLessonUnlocked", ProgressServer.IsLessonUnlocked),
		unary("GetQuizResult", ProgressServer.GetQuizResult),
	},
	Streams: []grpc.StreamDesc{},
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(ProgressServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ProgressServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ProgressServer), ctx, req.(*Req))
			})
		},
	}
}

// Register adds the progress, health and reflection services to s and returns
// the health server so shutdown can flip it to NOT_SERVING.
func Register(s *grpc.Server, svc ProgressServer) *health.Server {
	s.RegisterService(&ServiceDesc, svc)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return hs
}

// Service implements ProgressServer on top of a tracker.
type Service struct {
	Tracker *progression.Tracker
	Log     *zap.Logger
}

var _ ProgressServer = (*Service)(nil)

type learnerScoped interface {
	learner() string
}

// learnerID is the trimmed learner_id of req, falling back to the
// learner_id metadata.
func learnerID(ctx context.Context, req learnerScoped) string {
	if id := strings.TrimSpace(req.learner()); id != "" {
		return id
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(learnerMetadataKey); len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
	}
	return ""
}

// scope validates req and returns the tracker of the learner it names, taken
// from the request or else from the learner_id metadata.
func (s *Service) scope(ctx context.Context, req learnerScoped) (*progression.Tracker, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errInvalidArgument(err)
	}
	id := learnerID(ctx, req)
	if id == "" {
		return nil, errUnauthenticated("learner_id is required")
	}
	return s.Tracker.ForLearner(id), nil
}

func (s *Service) storeErr(method string, err error) error {
	if s.Log != nil {
		s.Log.Error("progress store failure", zap.String("method", method), zap.Error(err))
	}
	return errStore(err)
}

func (s *Service) GetCourseProgress(ctx context.Context, req *CourseRequest) (*CourseProgressResponse, error) {
	t, err := s.scope(ctx, req)
	if err != nil {
		return nil, err
	}
	p, err := t.GetCourseProgress(ctx, req.CourseID)
	if err != nil {
		return nil, s.storeErr("GetCourseProgress", err)
	}
	return &CourseProgressResponse{Progress: p}, nil
}

func (s *Service) CompleteQuiz(ctx context.Context, req *CompleteQuizRequest) (*CompleteQuizResponse, error) {
	t, err := s.scope(ctx, req)
	if err != nil {
		return nil, err
	}
	passed, p, err := t.CompleteQuizWithProgress(ctx, req.CourseID, req.QuizID, req.Score, req.MinimumScore)
	if err != nil {
		return nil, s.storeErr("CompleteQuiz", err)
	}
	return &CompleteQuizResponse{Passed: passed, Progress: p}, nil
}

func (s *Service) CompleteLesson(ctx context.Context, req *CompleteLessonRequest) (*CourseProgressResponse, error) {
	t, err := s.scope(ctx, req)
	if err != nil {
		return nil, err
	}
	p, err := t.CompleteLessonWithProgress(ctx, req.CourseID, req.SectionID, req.LessonID)
	if err != nil {
		return nil, s.storeErr("CompleteLesson", err)
	}
	return &CourseProgressResponse{Progress: p}, nil
}

func (s *Service) GetUnlockedSections(ctx context.Context, req *CourseRequest) (*UnlockedSectionsResponse, error) {
	t, err := s.scope(ctx, req)
	if err != nil {
		return nil, err
	}
	ids, err := t.GetUnlockedSections(ctx, req.CourseID)
	if err != nil {
		return nil, s.storeErr("GetUnlockedSections", err)
	}
	return &UnlockedSectionsResponse{SectionIDs: ids}, nil
}

func (s *Service) IsLessonUnlocked(ctx context.Context, req *SectionRequest) (*LessonUnlockedResponse, error) {
	t, err := s.scope(ctx, req)
	if err != nil {
		return nil, err
	}
	ok, err := t.IsLessonUnlocked(ctx, req.CourseID, req.SectionID)
	if err != nil {
		return nil, s.storeErr("IsLessonUnlocked", err)
	}
	return &LessonUnlockedResponse{Unlocked: ok}, nil
}

func (s *Service) GetQuizResult(ctx context.Context, req *QuizRequest) (*QuizResultResponse, error) {
	t, err := s.scope(ctx, req)
	if err != nil {
		return nil, err
	}
	res, found, err := t.GetQuizResult(ctx, req.CourseID, req.QuizID)
	if err != nil {
		return nil, s.storeErr("GetQuizResult", err)
	}
	if !found {
		return nil, errNotFound("QUIZ_NOT_ATTEMPTED", "quiz has not been attempted")
	}
	return &QuizResultResponse{Result: res}, nil
}

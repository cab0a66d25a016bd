package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls ProgressService over an existing connection using the JSON
// codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCourseProgress(ctx context.Context, in *CourseRequest, opts ...grpc.CallOption) (*CourseProgressResponse, error) {
	return invoke[CourseProgressResponse](ctx, c, "GetCourseProgress", in, opts)
}

func (c *Client) CompleteQuiz(ctx context.Context, in *CompleteQuizRequest, opts ...grpc.CallOption) (*CompleteQuizResponse, error) {
	return invoke[CompleteQuizResponse](ctx, c, "CompleteQuiz", in, opts)
}

func (c *Client) CompleteLesson(ctx context.Context, in *CompleteLessonRequest, opts ...grpc.CallOption) (*CourseProgressResponse, error) {
	return invoke[CourseProgressResponse](ctx, c, "CompleteLesson", in, opts)
}

func (c *Client) GetUnlockedSections(ctx context.Context, in *CourseRequest, opts ...grpc.CallOption) (*UnlockedSectionsResponse, error) {
	return invoke[UnlockedSectionsResponse](ctx, c, "GetUnlockedSections", in, opts)
}

func (c *Client) IsLessonUnlocked(ctx context.Context, in *SectionRequest, opts ...grpc.CallOption) (*LessonUnlockedResponse, error) {
	return invoke[LessonUnlockedResponse](ctx, c, "IsLessonUnlocked", in, opts)
}

func (c *Client) GetQuizResult(ctx context.Context, in *QuizRequest, opts ...grpc.CallOption) (*QuizResultResponse, error) {
	return invoke[QuizResultResponse](ctx, c, "GetQuizResult", in, opts)
}

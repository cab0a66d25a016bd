package grpcapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/durationpb"
)

const errorDomain = "progress"

type protoDetail = protoadapt.MessageV1

func withInfo(c codes.Code, reason, msg string, extra ...protoDetail) error {
	st := status.New(c, msg)
	details := []protoDetail{&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}}
	details = append(details, extra...)
	st2, err := st.WithDetails(details...)
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errInvalidArgument(err error) error {
	bad := &errdetails.BadRequest{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			bad.FieldViolations = append(bad.FieldViolations, &errdetails.BadRequest_FieldViolation{
				Field:       fe.Field(),
				Description: "failed on " + fe.Tag(),
			})
		}
	}
	return withInfo(codes.InvalidArgument, "VALIDATION_FAILED", "invalid request", bad)
}

func errUnauthenticated(msg string) error {
	return withInfo(codes.Unauthenticated, "MISSING_LEARNER", msg)
}

func errNotFound(reason, msg string) error {
	return withInfo(codes.NotFound, reason, msg)
}

func errRateLimited(wait time.Duration) error {
	return withInfo(codes.ResourceExhausted, "RATE_LIMITED", "too many requests",
		&errdetails.RetryInfo{RetryDelay: durationpb.New(wait)})
}

// errStore maps a tracker failure; an open circuit is Unavailable.
func errStore(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return withInfo(codes.Unavailable, "STORE_UNAVAILABLE", "progress store unavailable")
	}
	return withInfo(codes.Internal, "STORE_FAILURE", "internal error")
}

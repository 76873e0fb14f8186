package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/wafscope/internal/core/db"
	"github.com/solatis/wafscope/internal/types"
)

// Auth errors are mapped in the auth package interceptor.
var errMissingWorkspace = status.Error(codes.Internal, "missing workspace_id in context")

// toStatus maps service errors onto gRPC codes.
// Errors that already carry a status pass through unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var shapeErr *types.InputShapeError
	switch {
	case errors.As(err, &shapeErr), errors.Is(err, types.ErrTooManyRules):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrAtEnd), errors.Is(err, types.ErrAtStart):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, types.ErrSessionNotStarted), errors.Is(err, types.ErrNoRules):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, types.ErrRuleSetNotFound), errors.Is(err, types.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, db.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// invalidArgument reports a malformed request field.
func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

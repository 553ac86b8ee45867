package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusCode maps service errors onto gRPC codes.
func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, common.ErrorNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrorValidation):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, common.ErrNotParticipant):
		return codes.PermissionDenied
	case errors.Is(err, common.ErrNotFriends),
		errors.Is(err, common.ErrInvalidTransition),
		errors.Is(err, common.ErrSelfAccept),
		errors.Is(err, common.ErrAlreadyFriends):
		return codes.FailedPrecondition
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return codes.Unauthenticated
	case errors.Is(err, common.ErrorInternal):
		return codes.Internal
	case dbx.IsTransient(err):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// toStatus converts err into a gRPC status error. Internal failures are
// logged and reported without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := statusCode(err)
	switch code {
	case codes.Internal:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, common.ErrorInternal.Error())
	case codes.Unavailable:
		s.logger.Warn(ctx, "dependency unavailable", "error", err)
		return status.Error(codes.Unavailable, "service unavailable, retry later")
	}
	return status.Error(code, err.Error())
}

package grpc

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{fmt.Errorf("lookup: %w", common.ErrorNotFound), codes.NotFound},
		{common.ErrorValidation, codes.InvalidArgument},
		{common.ErrAlreadyExists, codes.AlreadyExists},
		{common.ErrNotParticipant, codes.PermissionDenied},
		{common.ErrNotFriends, codes.FailedPrecondition},
		{common.ErrInvalidTransition, codes.FailedPrecondition},
		{common.ErrSelfAccept, codes.FailedPrecondition},
		{common.ErrAlreadyFriends, codes.FailedPrecondition},
		{common.ErrInvalidToken, codes.Unauthenticated},
		{driver.ErrBadConn, codes.Unavailable},
		{fmt.Errorf("%w: %w", common.ErrorInternal, driver.ErrBadConn), codes.Internal},
		{errBoom, codes.Internal},
	}
	for _, tt := range tests {
		if got := statusCode(tt.err); got != tt.want {
			t.Errorf("statusCode(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestToStatus_PassesThroughStatusErrors(t *testing.T) {
	f := newFixture()
	in := status.Error(codes.Aborted, "try again")
	if got := f.srv.toStatus(context.Background(), in); got != in {
		t.Fatalf("status error was rewritten: %v", got)
	}
	if f.srv.toStatus(context.Background(), nil) != nil {
		t.Fatal("nil error should stay nil")
	}
}

func TestToStatus_HidesInternalDetail(t *testing.T) {
	f := newFixture()
	err := f.srv.toStatus(context.Background(), fmt.Errorf("%w: disk on fire", common.ErrorInternal))
	st, _ := status.FromError(err)
	if st.Code() != codes.Internal || st.Message() != "internal error" {
		t.Fatalf("got %v %q, want Internal \"internal error\"", st.Code(), st.Message())
	}
}

package merge

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrConfigMismatch reports a handshake naming a different curve, group
	// order, target, or DP mask than the server's search. Fatal for that
	// connection: merging records from a mismatched search would poison the
	// table.
	ErrConfigMismatch = errors.New("merge: search configuration mismatch")

	// ErrMalformed reports an unparseable or out-of-bounds frame. The
	// offending session is closed; other sessions are unaffected.
	ErrMalformed = errors.New("merge: malformed frame")

	// ErrIdleTimeout reports a session reaped for inactivity. Not an error
	// for the rest of the system; committed records stay committed.
	ErrIdleTimeout = errors.New("merge: session idle timeout")

	// ErrStopped reports an operation on a client that already received the
	// stop broadcast.
	ErrStopped = errors.New("merge: search stopped")
)

// mapErr translates protocol sentinels into gRPC status errors on the server
// side.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConfigMismatch):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrIdleTimeout):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC is the client-side inverse: recover protocol sentinels from status
// codes so callers can branch without importing grpc.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return ErrConfigMismatch
	case codes.InvalidArgument:
		return ErrMalformed
	default:
		return err
	}
}

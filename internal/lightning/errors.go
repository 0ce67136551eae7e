package lightning

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/lntypes"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrInvalidInput means the request itself is unusable; retrying it
	// unchanged will fail again.
	ErrInvalidInput = errors.New("invalid keysend request")
	// ErrResolution wraps lightning address lookup failures.
	ErrResolution = errors.New("could not resolve destination")
	// ErrNodeUnavailable means the payment never reached the node; the same
	// request may be retried.
	ErrNodeUnavailable = errors.New("node connection unavailable")
)

// InFlightError is a payment the node accepted but whose result was not
// received. It may still settle, so the request must not be resent; look
// the payment up by hash instead.
type InFlightError struct {
	PaymentHash lntypes.Hash
	Err         error
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("payment %s in flight, outcome unknown: %v", e.PaymentHash, e.Err)
}

func (e *InFlightError) Unwrap() error { return e.Err }

// PaymentError is a payment the node attempted and rejected.
type PaymentError struct {
	Reason string
}

func (e *PaymentError) Error() string {
	return "payment rejected: " + e.Reason
}

// classifyRPCError splits SendPayment failures into payments that never
// reached the node, payments whose outcome is unknown, and payments the
// node rejected.
func classifyRPCError(err error, hash lntypes.Hash) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &InFlightError{PaymentHash: hash, Err: err}
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrNodeUnavailable, err)
	}
	switch st.Code() {
	case codes.Canceled, codes.DeadlineExceeded:
		return &InFlightError{PaymentHash: hash, Err: err}
	case codes.Unavailable, codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %v", ErrNodeUnavailable, err)
	}
	return &PaymentError{Reason: st.Message()}
}

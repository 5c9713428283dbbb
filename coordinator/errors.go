package coordinator

import "errors"

var (
	// ErrBusy is returned when a request is submitted while a previous one
	// has not been fetched yet.
	ErrBusy = errors.New("coordinator busy")

	// ErrTooLong is returned when a request exceeds MaxMessageSize.
	ErrTooLong = errors.New("message too long")

	// ErrStillInFlight is returned when a response is fetched before the
	// peripheral replied or the request timed out.
	ErrStillInFlight = errors.New("request still in flight")

	// ErrNothingPending is returned when a response is fetched but no request
	// was submitted.
	ErrNothingPending = errors.New("no outstanding request")

	// ErrTimedOut accompanies the response of a request that the peripheral
	// did not answer in time. The response itself is valid and carries the
	// address and the timeout.
	ErrTimedOut = errors.New("request timed out")

	// ErrInvalidTimeout is returned when configuring an unusable timeout.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// Numeric result codes used by callers that branch on integers.
const (
	CodeBusy           = -1
	CodeTooLong        = -2
	CodeTimedOut       = -3
	CodeNothingPending = -4
)

// Code maps an error returned by the coordinator onto its numeric result
// code. A nil error maps to 0. Unknown errors map to CodeBusy.
func Code(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrTooLong):
		return CodeTooLong
	case errors.Is(err, ErrTimedOut):
		return CodeTimedOut
	case errors.Is(err, ErrNothingPending):
		return CodeNothingPending
	default:
		return CodeBusy
	}
}

package claim

import (
	"errors"
	"fmt"
)

// Precondition rejections returned by RequestClaim. None of them changes state.
var (
	ErrNoIdentity    = errors.New("no connected account")
	ErrClaimInFlight = errors.New("a claim is already in progress")
	ErrNotReady      = errors.New("drop data is not loaded")
	ErrSoldOut       = errors.New("drop is sold out")
)

var (
	ErrStopped        = errors.New("controller is not running")
	ErrAlreadyRunning = errors.New("controller is already running")
	ErrGatewayPanic   = errors.New("gateway call panicked")
)

// guard runs one gateway call and turns a panic inside it into an error,
// which the ledger classification reports as a network failure.
func guard(op string, call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: %v", op, ErrGatewayPanic, r)
		}
	}()
	return call()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNoIdentity):
		return "no_identity"
	case errors.Is(err, ErrClaimInFlight):
		return "in_flight"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrSoldOut):
		return "sold_out"
	default:
		return "other"
	}
}

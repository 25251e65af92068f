package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/padraorezende/developer-collection-nft-drop/internal/drop"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrReadOnly          = errors.New("gateway has no signer")
	ErrNoActiveCondition = errors.New("no active claim condition")
	ErrInvalidAccount    = errors.New("invalid account address")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrTransactionRevert = errors.New("transaction reverted")
	ErrSupplyOverflow    = errors.New("supply does not fit in uint64")
	ErrSoldOut           = errors.New("drop sold out")
	ErrMalformedResponse = errors.New("malformed contract response")
)

// Error carries the ErrorKind a gateway failure maps to.
type Error struct {
	Kind drop.ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf maps any error to an ErrorKind. Unclassified errors count as network failures.
func KindOf(err error) drop.ErrorKind {
	if err == nil {
		return drop.ErrorNone
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	var inv *drop.InvariantError
	if errors.As(err, &inv) {
		return drop.ErrorInvariantViolation
	}
	return drop.ErrorNetworkFailure
}

func networkErr(op string, err error) error {
	return &Error{Kind: drop.ErrorNetworkFailure, Op: op, Err: err}
}

func rejectedErr(op string, err error) error {
	return &Error{Kind: drop.ErrorTransactionRejected, Op: op, Err: err}
}

// classify wraps a transport error, telling contract/user rejections apart from transport failures.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isRejection(err) {
		return rejectedErr(op, err)
	}
	return networkErr(op, err)
}

var rejectionMarkers = []string{
	"execution reverted",
	"insufficient funds",
	"user rejected",
	"user denied",
	"nonce too low",
	"replacement transaction underpriced",
	"intrinsic gas too low",
	"gas required exceeds allowance",
}

func isRejection(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, sentinel := range []error{ErrTransactionRevert, ErrReadOnly, ErrNoActiveCondition, ErrSoldOut, ErrInvalidAccount, ErrInvalidQuantity} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	// JSON-RPC code 3 is "execution reverted" on geth-compatible nodes.
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

package drop

import (
	"time"
)

// Phase is the claim state machine position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRefreshing
	PhaseReady
	PhaseClaiming
	PhaseClaimSucceeded
	PhaseClaimFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseReady:
		return "ready"
	case PhaseClaiming:
		return "claiming"
	case PhaseClaimSucceeded:
		return "claim_succeeded"
	case PhaseClaimFailed:
		return "claim_failed"
	default:
		return "unknown"
	}
}

// Busy reports whether the presentation layer should show a loading indicator.
func (p Phase) Busy() bool {
	return p == PhaseRefreshing || p == PhaseClaiming
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ErrorKind classifies failures stored in State.LastError.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorNetworkFailure
	ErrorTransactionRejected
	ErrorInvariantViolation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return ""
	case ErrorNetworkFailure:
		return "network_failure"
	case ErrorTransactionRejected:
		return "transaction_rejected"
	case ErrorInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Price is the unit price of the first claim condition.
type Price struct {
	Display        string `json:"display"`
	CurrencySymbol string `json:"currencySymbol"`
}

// Snapshot is an immutable view of the drop supply and price.
// Price is nil when the claim-condition read failed.
type Snapshot struct {
	Claimed   uint64    `json:"claimed"`
	Total     uint64    `json:"total"`
	Price     *Price    `json:"price,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// NewSnapshot validates the supply counts and builds a snapshot.
func NewSnapshot(claimed, total uint64, price *Price, at time.Time) (*Snapshot, error) {
	if claimed > total {
		return nil, &InvariantError{Claimed: claimed, Total: total}
	}
	var p *Price
	if price != nil {
		cp := *price
		p = &cp
	}
	return &Snapshot{Claimed: claimed, Total: total, Price: p, FetchedAt: at}, nil
}

// SoldOut reports whether no supply remains.
func (s *Snapshot) SoldOut() bool {
	return s.Claimed >= s.Total
}

// Remaining is the unclaimed supply.
func (s *Snapshot) Remaining() uint64 {
	if s.SoldOut() {
		return 0
	}
	return s.Total - s.Claimed
}

// InvariantError is returned when the ledger reports more claimed tokens than exist.
type InvariantError struct {
	Claimed uint64
	Total   uint64
}

func (e *InvariantError) Error() string {
	return "claimed count exceeds total supply"
}

// State is the reconciled view model read by the presentation layer.
type State struct {
	Account   string    `json:"account,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	Phase     Phase     `json:"phase"`
	LastError ErrorKind `json:"lastError,omitempty"`
}

// Initial is the state at session start.
func Initial() State {
	return State{Phase: PhaseIdle}
}

// NoticeKind tags transient user notifications.
type NoticeKind string

const (
	NoticeClaimSucceeded NoticeKind = "claim_succeeded"
	NoticeClaimFailed    NoticeKind = "claim_failed"
	NoticeRefreshFailed  NoticeKind = "refresh_failed"
)

// Notice is a transient notification; it is not part of State.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Error   ErrorKind  `json:"error,omitempty"`
}

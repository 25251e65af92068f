package ledger

import (
	"context"
	"math/big"
	"time"
)

// Gateway abstracts the drop contract: three reads and one write.
// ClaimedCount stands for the claimed-token listing; callers only ever need its length.
type Gateway interface {
	ClaimedCount(ctx context.Context) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
	ClaimConditions(ctx context.Context) ([]ClaimCondition, error)
	ClaimTo(ctx context.Context, account string, quantity uint64) (ClaimReceipt, error)
}

// HealthChecker is implemented by gateways backed by a live RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ClaimCondition is a claim phase as configured on the contract.
type ClaimCondition struct {
	StartTime              time.Time
	MaxClaimableSupply     *big.Int
	SupplyClaimed          *big.Int
	QuantityLimitPerWallet *big.Int
	PricePerToken          *big.Int
	CurrencyAddress        string
	CurrencySymbol         string
	CurrencyDecimals       uint8
	// UnitPriceDisplay is PricePerToken in whole currency units, e.g. "0.01".
	UnitPriceDisplay string
}

type ClaimReceipt struct {
	TxHash      string
	BlockNumber uint64
}

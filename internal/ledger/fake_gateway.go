package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FakeGateway is an in-memory drop used for local runs without an RPC endpoint and in tests.
// ClaimTo increments the claimed count.
type FakeGateway struct {
	mu       sync.Mutex
	claimed  uint64
	total    uint64
	price    *big.Int
	symbol   string
	decimals uint8
	block    uint64
}

func NewFakeGateway(claimed, total uint64, priceWei *big.Int, symbol string) *FakeGateway {
	if priceWei == nil {
		priceWei = new(big.Int)
	}
	if symbol == "" {
		symbol = "ETH"
	}
	return &FakeGateway{
		claimed:  claimed,
		total:    total,
		price:    new(big.Int).Set(priceWei),
		symbol:   symbol,
		decimals: nativeDecimals,
	}
}

func (f *FakeGateway) ClaimedCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed, nil
}

func (f *FakeGateway) TotalSupply(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total, nil
}

func (f *FakeGateway) ClaimConditions(context.Context) ([]ClaimCondition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []ClaimCondition{{
		StartTime:              time.Unix(0, 0).UTC(),
		MaxClaimableSupply:     new(big.Int).SetUint64(f.total),
		SupplyClaimed:          new(big.Int).SetUint64(f.claimed),
		QuantityLimitPerWallet: new(big.Int),
		PricePerToken:          new(big.Int).Set(f.price),
		CurrencyAddress:        NativeCurrency.Hex(),
		CurrencySymbol:         f.symbol,
		CurrencyDecimals:       f.decimals,
		UnitPriceDisplay:       FormatUnits(f.price, f.decimals),
	}}, nil
}

func (f *FakeGateway) ClaimTo(_ context.Context, account string, quantity uint64) (ClaimReceipt, error) {
	if !common.IsHexAddress(account) {
		return ClaimReceipt{}, rejectedErr("claim", ErrInvalidAccount)
	}
	if quantity == 0 {
		return ClaimReceipt{}, rejectedErr("claim", ErrInvalidQuantity)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed+quantity > f.total {
		return ClaimReceipt{}, rejectedErr("claim", ErrSoldOut)
	}
	f.claimed += quantity
	f.block++
	return ClaimReceipt{
		TxHash:      fakeHash(account + ":" + strconv.FormatUint(f.claimed, 10)),
		BlockNumber: f.block,
	}, nil
}

// Claimed returns the current claimed count.
func (f *FakeGateway) Claimed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed
}

func fakeHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "0x" + hex.EncodeToString(sum[:])
}

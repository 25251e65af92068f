package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// NativeCurrency is the sentinel address thirdweb uses for the chain's native token.
var NativeCurrency = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

const (
	nativeDecimals = 18
	// maxClaimConditions bounds the condition list read from claimCondition().
	maxClaimConditions = 64
)

// EthGateway reads and claims from a DropERC721 contract over JSON-RPC.
type EthGateway struct {
	client       *ethclient.Client
	contract     *bind.BoundContract
	erc20ABI     abi.ABI
	address      common.Address
	chainID      *big.Int
	transacts    *bind.TransactOpts
	nativeSymbol string
	pollEvery    time.Duration
	logger       *zap.Logger
}

type EthGatewayConfig struct {
	RPCURL          string
	PrivateKeyHex   string
	ContractAddress string
	NativeSymbol    string
	ReceiptPoll     time.Duration
}

// NewEthGateway dials the RPC endpoint. Without a private key the gateway is read-only.
func NewEthGateway(ctx context.Context, cfg EthGatewayConfig, logger *zap.Logger) (*EthGateway, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("drop contract address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	dropABI, err := abi.JSON(strings.NewReader(dropERC721ABI))
	if err != nil {
		return nil, fmt.Errorf("parse drop abi: %w", err)
	}
	tokenABI, err := abi.JSON(strings.NewReader(erc20MetadataABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	g := &EthGateway{
		client:       cli,
		contract:     bind.NewBoundContract(address, dropABI, cli, cli, cli),
		erc20ABI:     tokenABI,
		address:      address,
		nativeSymbol: cfg.NativeSymbol,
		pollEvery:    cfg.ReceiptPoll,
		logger:       logger,
	}
	if g.nativeSymbol == "" {
		g.nativeSymbol = "ETH"
	}

	if cfg.PrivateKeyHex == "" {
		return g, nil
	}

	pk, err := ParsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate
	g.chainID = chainID
	g.transacts = txOpts
	return g, nil
}

// ParsePrivateKey accepts a hex key with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (g *EthGateway) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

func (g *EthGateway) Ping(ctx context.Context) error {
	_, err := g.client.BlockNumber(ctx)
	return err
}

func (g *EthGateway) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", method, ErrMalformedResponse)
	}
	value, ok := out[0].(*big.Int)
	if !ok || value == nil {
		return nil, fmt.Errorf("%s: %w", method, ErrMalformedResponse)
	}
	return value, nil
}

// ClaimedCount reads nextTokenIdToClaim; token ids [0, n) are claimed.
func (g *EthGateway) ClaimedCount(ctx context.Context) (uint64, error) {
	next, err := g.callUint(ctx, "nextTokenIdToClaim")
	if err != nil {
		return 0, classify("claimed count", err)
	}
	if !next.IsUint64() {
		return 0, networkErr("claimed count", ErrSupplyOverflow)
	}
	return next.Uint64(), nil
}

func (g *EthGateway) TotalSupply(ctx context.Context) (uint64, error) {
	total, err := g.callUint(ctx, "nextTokenIdToMint")
	if err != nil {
		return 0, classify("total supply", err)
	}
	if !total.IsUint64() {
		return 0, networkErr("total supply", ErrSupplyOverflow)
	}
	return total.Uint64(), nil
}

type claimConditionTuple struct {
	StartTimestamp         *big.Int
	MaxClaimableSupply     *big.Int
	SupplyClaimed          *big.Int
	QuantityLimitPerWallet *big.Int
	MerkleRoot             [32]byte
	PricePerToken          *big.Int
	Currency               common.Address
	Metadata               string
}

type allowlistProof struct {
	Proof                  [][32]byte
	QuantityLimitPerWallet *big.Int
	PricePerToken          *big.Int
	Currency               common.Address
}

func firstOf[T any](out []interface{}) (T, bool) {
	var zero T
	if len(out) == 0 {
		return zero, false
	}
	v, ok := out[0].(T)
	return v, ok
}

func (g *EthGateway) ClaimConditions(ctx context.Context) ([]ClaimCondition, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, "claimCondition"); err != nil {
		return nil, classify("claim conditions", err)
	}
	if len(out) < 2 {
		return nil, networkErr("claim conditions", ErrMalformedResponse)
	}
	start, okStart := out[0].(*big.Int)
	count, okCount := out[1].(*big.Int)
	if !okStart || !okCount || start == nil || count == nil {
		return nil, networkErr("claim conditions", ErrMalformedResponse)
	}
	if !count.IsUint64() || count.Uint64() > maxClaimConditions {
		return nil, networkErr("claim conditions", fmt.Errorf("%w: %s conditions", ErrMalformedResponse, count))
	}

	conditions := make([]ClaimCondition, 0, count.Uint64())
	for i := uint64(0); i < count.Uint64(); i++ {
		id := new(big.Int).Add(start, new(big.Int).SetUint64(i))
		var raw []interface{}
		if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &raw, "getClaimConditionById", id); err != nil {
			return nil, classify("claim condition "+id.String(), err)
		}
		if len(raw) == 0 {
			return nil, networkErr("claim condition "+id.String(), ErrMalformedResponse)
		}
		tuple := *abi.ConvertType(raw[0], new(claimConditionTuple)).(*claimConditionTuple)
		cond, err := g.describe(ctx, tuple)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

func (g *EthGateway) describe(ctx context.Context, t claimConditionTuple) (ClaimCondition, error) {
	symbol, decimals := g.nativeSymbol, uint8(nativeDecimals)
	if t.Currency != NativeCurrency {
		token := bind.NewBoundContract(t.Currency, g.erc20ABI, g.client, g.client, g.client)
		var out []interface{}
		if err := token.Call(&bind.CallOpts{Context: ctx}, &out, "symbol"); err != nil {
			return ClaimCondition{}, classify("currency symbol", err)
		}
		sym, ok := firstOf[string](out)
		if !ok {
			return ClaimCondition{}, networkErr("currency symbol", ErrMalformedResponse)
		}
		out = nil
		if err := token.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
			return ClaimCondition{}, classify("currency decimals", err)
		}
		dec, ok := firstOf[uint8](out)
		if !ok {
			return ClaimCondition{}, networkErr("currency decimals", ErrMalformedResponse)
		}
		symbol, decimals = sym, dec
	}

	var start time.Time
	if t.StartTimestamp != nil && t.StartTimestamp.IsInt64() {
		start = time.Unix(t.StartTimestamp.Int64(), 0).UTC()
	}
	return ClaimCondition{
		StartTime:              start,
		MaxClaimableSupply:     t.MaxClaimableSupply,
		SupplyClaimed:          t.SupplyClaimed,
		QuantityLimitPerWallet: t.QuantityLimitPerWallet,
		PricePerToken:          t.PricePerToken,
		CurrencyAddress:        t.Currency.Hex(),
		CurrencySymbol:         symbol,
		CurrencyDecimals:       decimals,
		UnitPriceDisplay:       FormatUnits(t.PricePerToken, decimals),
	}, nil
}

// ClaimTo claims quantity tokens for account under the active condition and waits for the receipt.
func (g *EthGateway) ClaimTo(ctx context.Context, account string, quantity uint64) (ClaimReceipt, error) {
	if g.transacts == nil {
		return ClaimReceipt{}, rejectedErr("claim", ErrReadOnly)
	}
	if !common.IsHexAddress(account) {
		return ClaimReceipt{}, rejectedErr("claim", ErrInvalidAccount)
	}
	if quantity == 0 {
		return ClaimReceipt{}, rejectedErr("claim", ErrInvalidQuantity)
	}

	cond, err := g.activeCondition(ctx)
	if err != nil {
		return ClaimReceipt{}, err
	}

	qty := new(big.Int).SetUint64(quantity)
	currency := common.HexToAddress(cond.CurrencyAddress)
	proof := allowlistProof{
		Proof:                  [][32]byte{},
		QuantityLimitPerWallet: big.NewInt(0),
		PricePerToken:          abi.MaxUint256,
		Currency:               common.Address{},
	}

	opts := *g.transacts
	opts.Context = ctx
	if currency == NativeCurrency {
		opts.Value = new(big.Int).Mul(cond.PricePerToken, qty)
	}

	tx, err := g.contract.Transact(&opts, "claim",
		common.HexToAddress(account), qty, currency, cond.PricePerToken, proof, []byte{})
	if err != nil {
		return ClaimReceipt{}, classify("claim tx", err)
	}
	g.logger.Info("claim submitted",
		zap.String("account", account),
		zap.String("tx_hash", tx.Hash().Hex()))

	receipt, err := WaitForReceipt(ctx, g.client, tx.Hash(), g.pollEvery)
	if err != nil {
		return ClaimReceipt{}, classify("claim receipt", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ClaimReceipt{}, rejectedErr("claim receipt", fmt.Errorf("%w: %s", ErrTransactionRevert, tx.Hash().Hex()))
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return ClaimReceipt{TxHash: tx.Hash().Hex(), BlockNumber: block}, nil
}

// activeCondition reads the latest started condition, which is the one the contract enforces.
func (g *EthGateway) activeCondition(ctx context.Context) (ClaimCondition, error) {
	conditions, err := g.ClaimConditions(ctx)
	if err != nil {
		return ClaimCondition{}, err
	}
	return pickActive(conditions, time.Now())
}

func pickActive(conditions []ClaimCondition, now time.Time) (ClaimCondition, error) {
	for i := len(conditions) - 1; i >= 0; i-- {
		if !conditions[i].StartTime.After(now) {
			return conditions[i], nil
		}
	}
	return ClaimCondition{}, rejectedErr("claim", ErrNoActiveCondition)
}

package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/padraorezende/developer-collection-nft-drop/internal/drop"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	dropAddress  = common.HexToAddress("0x0000000000000000000000000000000000000d00")
	tokenAddress = common.HexToAddress("0x0000000000000000000000000000000000000c20")
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// chainNode answers the JSON-RPC calls the gateway makes, ABI-encoding
// contract results from outputs keyed by method name.
type chainNode struct {
	t        *testing.T
	dropABI  abi.ABI
	tokenABI abi.ABI

	mu            sync.Mutex
	outputs       map[string][]interface{}
	receiptStatus uint64
	sent          []*types.Transaction
}

func newChainNode(t *testing.T) (*chainNode, string) {
	t.Helper()
	dropABI, err := abi.JSON(strings.NewReader(dropERC721ABI))
	require.NoError(t, err)
	tokenABI, err := abi.JSON(strings.NewReader(erc20MetadataABI))
	require.NoError(t, err)

	node := &chainNode{
		t:             t,
		dropABI:       dropABI,
		tokenABI:      tokenABI,
		outputs:       map[string][]interface{}{},
		receiptStatus: types.ReceiptStatusSuccessful,
	}
	srv := httptest.NewServer(http.HandlerFunc(node.serve))
	t.Cleanup(srv.Close)
	return node, srv.URL
}

func (n *chainNode) set(method string, values ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outputs[method] = values
}

func (n *chainNode) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, rpcErr := n.answer(req)

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != "" {
		resp["error"] = map[string]interface{}{"code": -32000, "message": rpcErr}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *chainNode) answer(req rpcRequest) (interface{}, string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		return "0x1", ""
	case "eth_blockNumber":
		return "0x10", ""
	case "eth_getBlockByNumber":
		return &types.Header{
			Number:     big.NewInt(16),
			Difficulty: big.NewInt(0),
			GasLimit:   30_000_000,
			BaseFee:    big.NewInt(1_000_000_000),
			Extra:      []byte{},
		}, ""
	case "eth_maxPriorityFeePerGas":
		return "0x3b9aca00", ""
	case "eth_getCode":
		return "0x6080", ""
	case "eth_estimateGas":
		return "0x30d40", ""
	case "eth_getTransactionCount":
		return "0x0", ""
	case "eth_sendRawTransaction":
		var raw string
		require.NoError(n.t, json.Unmarshal(req.Params[0], &raw))
		tx := new(types.Transaction)
		require.NoError(n.t, tx.UnmarshalBinary(hexutil.MustDecode(raw)))
		n.sent = append(n.sent, tx)
		return tx.Hash().Hex(), ""
	case "eth_getTransactionReceipt":
		var hash common.Hash
		require.NoError(n.t, json.Unmarshal(req.Params[0], &hash))
		return &types.Receipt{
			Status:            n.receiptStatus,
			CumulativeGasUsed: 21_000,
			GasUsed:           21_000,
			Logs:              []*types.Log{},
			TxHash:            hash,
			BlockNumber:       big.NewInt(17),
		}, ""
	case "eth_call":
		return n.call(req.Params[0])
	}
	return nil, "method not found: " + req.Method
}

func (n *chainNode) call(param json.RawMessage) (interface{}, string) {
	var msg struct {
		To    common.Address `json:"to"`
		Input hexutil.Bytes  `json:"input"`
	}
	require.NoError(n.t, json.Unmarshal(param, &msg))

	contract := n.dropABI
	if msg.To == tokenAddress {
		contract = n.tokenABI
	}
	method, err := contract.MethodById(msg.Input)
	if err != nil {
		return nil, err.Error()
	}
	values, ok := n.outputs[method.Name]
	if !ok {
		return nil, "execution reverted"
	}
	packed, err := method.Outputs.Pack(values...)
	require.NoError(n.t, err)
	return hexutil.Encode(packed), ""
}

func nativeCondition(price *big.Int) claimConditionTuple {
	return claimConditionTuple{
		StartTimestamp:         big.NewInt(0),
		MaxClaimableSupply:     big.NewInt(100),
		SupplyClaimed:          big.NewInt(3),
		QuantityLimitPerWallet: big.NewInt(5),
		PricePerToken:          price,
		Currency:               NativeCurrency,
		Metadata:               "ipfs://condition",
	}
}

func dialTestGateway(t *testing.T, url string, signer bool) *EthGateway {
	t.Helper()
	cfg := EthGatewayConfig{
		RPCURL:          url,
		ContractAddress: dropAddress.Hex(),
		NativeSymbol:    "MATIC",
		ReceiptPoll:     5 * time.Millisecond,
	}
	if signer {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		cfg.PrivateKeyHex = hex.EncodeToString(crypto.FromECDSA(key))
	}
	gw, err := NewEthGateway(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	return gw
}

func TestEthGatewaySupplyReads(t *testing.T) {
	node, url := newChainNode(t)
	node.set("nextTokenIdToClaim", big.NewInt(42))
	node.set("nextTokenIdToMint", big.NewInt(100))
	gw := dialTestGateway(t, url, false)
	ctx := context.Background()

	claimed, err := gw.ClaimedCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), claimed)

	total, err := gw.TotalSupply(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(100), total)
	require.NoError(t, gw.Ping(ctx))
}

func TestEthGatewayHugeCountersDoNotPanic(t *testing.T) {
	node, url := newChainNode(t)
	maxUint64 := new(big.Int).SetUint64(^uint64(0))
	node.set("nextTokenIdToClaim", maxUint64)
	node.set("nextTokenIdToMint", new(big.Int).Lsh(big.NewInt(1), 70))
	gw := dialTestGateway(t, url, false)
	ctx := context.Background()

	claimed, err := gw.ClaimedCount(ctx)
	require.NoError(t, err)
	require.Equal(t, ^uint64(0), claimed)

	_, err = gw.TotalSupply(ctx)
	require.ErrorIs(t, err, ErrSupplyOverflow)
	require.Equal(t, drop.ErrorNetworkFailure, KindOf(err))

	node.set("nextTokenIdToClaim", new(big.Int).Lsh(big.NewInt(1), 80))
	_, err = gw.ClaimedCount(ctx)
	require.ErrorIs(t, err, ErrSupplyOverflow)

	node.set("claimCondition", big.NewInt(0), maxUint64)
	_, err = gw.ClaimConditions(ctx)
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.Equal(t, drop.ErrorNetworkFailure, KindOf(err))
}

func TestEthGatewayNativeClaimConditions(t *testing.T) {
	node, url := newChainNode(t)
	node.set("claimCondition", big.NewInt(0), big.NewInt(1))
	node.set("getClaimConditionById", nativeCondition(big.NewInt(10_000_000_000_000_000)))
	gw := dialTestGateway(t, url, false)

	conds, err := gw.ClaimConditions(context.Background())
	require.NoError(t, err)
	require.Len(t, conds, 1)
	require.Equal(t, "MATIC", conds[0].CurrencySymbol)
	require.Equal(t, uint8(18), conds[0].CurrencyDecimals)
	require.Equal(t, "0.01", conds[0].UnitPriceDisplay)
	require.Equal(t, int64(3), conds[0].SupplyClaimed.Int64())
	require.Equal(t, int64(5), conds[0].QuantityLimitPerWallet.Int64())
	require.Equal(t, time.Unix(0, 0).UTC(), conds[0].StartTime)
}

func TestEthGatewayERC20ClaimConditions(t *testing.T) {
	node, url := newChainNode(t)
	cond := nativeCondition(big.NewInt(1_500_000))
	cond.Currency = tokenAddress
	node.set("claimCondition", big.NewInt(0), big.NewInt(1))
	node.set("getClaimConditionById", cond)
	node.set("symbol", "USDC")
	node.set("decimals", uint8(6))
	gw := dialTestGateway(t, url, false)

	conds, err := gw.ClaimConditions(context.Background())
	require.NoError(t, err)
	require.Len(t, conds, 1)
	require.Equal(t, "USDC", conds[0].CurrencySymbol)
	require.Equal(t, uint8(6), conds[0].CurrencyDecimals)
	require.Equal(t, "1.5", conds[0].UnitPriceDisplay)
	require.Equal(t, tokenAddress.Hex(), conds[0].CurrencyAddress)
}

func TestEthGatewayReadOnlyRejectsClaim(t *testing.T) {
	_, url := newChainNode(t)
	gw := dialTestGateway(t, url, false)

	_, err := gw.ClaimTo(context.Background(), testAccount, 1)
	require.ErrorIs(t, err, ErrReadOnly)
	require.Equal(t, drop.ErrorTransactionRejected, KindOf(err))
}

func TestEthGatewayClaimPaysNativePrice(t *testing.T) {
	node, url := newChainNode(t)
	price := big.NewInt(10_000_000_000_000_000)
	node.set("claimCondition", big.NewInt(0), big.NewInt(1))
	node.set("getClaimConditionById", nativeCondition(price))
	gw := dialTestGateway(t, url, true)

	receipt, err := gw.ClaimTo(context.Background(), testAccount, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(17), receipt.BlockNumber)

	node.mu.Lock()
	defer node.mu.Unlock()
	require.Len(t, node.sent, 1)
	tx := node.sent[0]
	require.Equal(t, receipt.TxHash, tx.Hash().Hex())
	require.Equal(t, dropAddress, *tx.To())
	require.Equal(t, new(big.Int).Mul(price, big.NewInt(2)), tx.Value())
	require.Equal(t, node.dropABI.Methods["claim"].ID, tx.Data()[:4])
}

func TestEthGatewayRevertedReceiptIsRejection(t *testing.T) {
	node, url := newChainNode(t)
	node.set("claimCondition", big.NewInt(0), big.NewInt(1))
	node.set("getClaimConditionById", nativeCondition(big.NewInt(1)))
	node.mu.Lock()
	node.receiptStatus = types.ReceiptStatusFailed
	node.mu.Unlock()
	gw := dialTestGateway(t, url, true)

	_, err := gw.ClaimTo(context.Background(), testAccount, 1)
	require.ErrorIs(t, err, ErrTransactionRevert)
	require.Equal(t, drop.ErrorTransactionRejected, KindOf(err))
}

func TestEthGatewayNoActiveCondition(t *testing.T) {
	node, url := newChainNode(t)
	future := nativeCondition(big.NewInt(1))
	future.StartTimestamp = big.NewInt(time.Now().Add(time.Hour).Unix())
	node.set("claimCondition", big.NewInt(0), big.NewInt(1))
	node.set("getClaimConditionById", future)
	gw := dialTestGateway(t, url, true)

	_, err := gw.ClaimTo(context.Background(), testAccount, 1)
	require.ErrorIs(t, err, ErrNoActiveCondition)
	require.Equal(t, drop.ErrorTransactionRejected, KindOf(err))

	node.mu.Lock()
	defer node.mu.Unlock()
	require.Empty(t, node.sent)
}

package adapter

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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdt-market/internal/types"
)

const (
	testToken     = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	testSpender   = "0x1111111111111111111111111111111111111111"
	testOwner     = "0x2222222222222222222222222222222222222222"
	testRecipient = "0x3333333333333333333333333333333333333333"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeEVMNode answers the handful of JSON-RPC methods the adapter uses
type fakeEVMNode struct {
	mu        sync.Mutex
	decimals  string // hex word or "" for an empty result
	allowance *big.Int
	revertGas bool
	rawTxs    []string
	callSeen  []string
}

func newFakeEVMNode() *fakeEVMNode {
	return &fakeEVMNode{
		decimals:  hex.EncodeToString(common.LeftPadBytes(big.NewInt(6).Bytes(), 32)),
		allowance: big.NewInt(0),
	}
}

func (f *fakeEVMNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var result interface{}
	var rpcErr map[string]interface{}

	switch req.Method {
	case "eth_call":
		var msg map[string]interface{}
		_ = json.Unmarshal(req.Params[0], &msg)
		data, _ := msg["input"].(string)
		if data == "" {
			data, _ = msg["data"].(string)
		}
		f.callSeen = append(f.callSeen, data)
		switch {
		case strings.HasPrefix(data, "0x313ce567"):
			result = "0x" + f.decimals
		case strings.HasPrefix(data, "0xdd62ed3e"):
			result = hexutil.Encode(common.LeftPadBytes(f.allowance.Bytes(), 32))
		default:
			result = "0x"
		}
	case "eth_getTransactionCount":
		result = "0x7"
	case "eth_gasPrice":
		result = "0x3b9aca00"
	case "eth_estimateGas":
		if f.revertGas {
			rpcErr = map[string]interface{}{"code": 3, "message": "execution reverted: insufficient allowance"}
		} else {
			result = "0x186a0"
		}
	case "eth_sendRawTransaction":
		var raw string
		_ = json.Unmarshal(req.Params[0], &raw)
		f.rawTxs = append(f.rawTxs, raw)
		result = "0x" + strings.Repeat("ab", 32)
	default:
		rpcErr = map[string]interface{}{"code": -32601, "message": "method not found"}
	}

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestEVMAdapter(t *testing.T, url string, withKey bool) (*EVMAdapter, string) {
	t.Helper()
	var keyHex string
	if withKey {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keyHex = hex.EncodeToString(crypto.FromECDSA(key))
	}
	a, err := NewEVMAdapter(&EVMAdapterConfig{
		Network:       types.NetworkERC20,
		RPCURLs:       url,
		ChainID:       1,
		PrivateKeyHex: keyHex,
		CallTimeout:   2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, keyHex
}

func TestNewEVMAdapter_RejectsTronNetwork(t *testing.T) {
	_, err := NewEVMAdapter(&EVMAdapterConfig{Network: types.NetworkTRC20, RPCURLs: "http://localhost", ChainID: 1})
	assert.Error(t, err)
}

func TestEVMAdapter_ValidateAddress(t *testing.T) {
	a := &EVMAdapter{network: types.NetworkERC20}
	assert.True(t, a.ValidateAddress(testToken))
	assert.False(t, a.ValidateAddress("0x123"))
	assert.False(t, a.ValidateAddress("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"))
	assert.False(t, a.ValidateAddress(strings.TrimPrefix(testToken, "0x")))
}

func TestEVMAdapter_Decimals(t *testing.T) {
	node := newFakeEVMNode()
	srv := httptest.NewServer(node)
	defer srv.Close()

	a, _ := newTestEVMAdapter(t, srv.URL, false)

	d, err := a.Decimals(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)

	node.mu.Lock()
	node.decimals = ""
	node.mu.Unlock()

	d, err = a.Decimals(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenDecimals, d)
}

func TestEVMAdapter_Allowance(t *testing.T) {
	node := newFakeEVMNode()
	node.allowance = big.NewInt(5_000_000)
	srv := httptest.NewServer(node)
	defer srv.Close()

	a, _ := newTestEVMAdapter(t, srv.URL, false)

	got, err := a.Allowance(context.Background(), testOwner, testSpender, testToken)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(big.NewInt(5_000_000)))

	node.mu.Lock()
	defer node.mu.Unlock()
	require.NotEmpty(t, node.callSeen)
	call := node.callSeen[len(node.callSeen)-1]
	assert.Contains(t, strings.ToLower(call), strings.ToLower(strings.TrimPrefix(testOwner, "0x")))
	assert.Contains(t, strings.ToLower(call), strings.ToLower(strings.TrimPrefix(testSpender, "0x")))
}

func TestEVMAdapter_AllowanceInvalidAddress(t *testing.T) {
	a := &EVMAdapter{network: types.NetworkERC20}
	_, err := a.Allowance(context.Background(), "nope", testSpender, testToken)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestEVMAdapter_AllowanceNodeDown(t *testing.T) {
	srv := httptest.NewServer(newFakeEVMNode())
	a, _ := newTestEVMAdapter(t, srv.URL, false)
	srv.Close()

	_, err := a.Allowance(context.Background(), testOwner, testSpender, testToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChainUnavailable)
}

func TestEVMAdapter_ExecuteRelayedTransfer(t *testing.T) {
	node := newFakeEVMNode()
	srv := httptest.NewServer(node)
	defer srv.Close()

	a, _ := newTestEVMAdapter(t, srv.URL, true)

	txHash, err := a.ExecuteRelayedTransfer(context.Background(), testSpender, testOwner, testRecipient, big.NewInt(5_000_000))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(txHash, "0x"))

	node.mu.Lock()
	require.Len(t, node.rawTxs, 1)
	raw := node.rawTxs[0]
	node.mu.Unlock()

	rawBytes, err := hexutil.Decode(raw)
	require.NoError(t, err)
	var tx ethtypes.Transaction
	require.NoError(t, tx.UnmarshalBinary(rawBytes))

	assert.Equal(t, txHash, tx.Hash().Hex())
	assert.Equal(t, common.HexToAddress(testSpender), *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(100_000+20_000), tx.Gas())

	sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(1)), &tx)
	require.NoError(t, err)
	from, ok := a.RelayerAddress()
	require.True(t, ok)
	assert.Equal(t, from, sender)

	method := SpenderABI().Methods["executeTransfer"]
	assert.Equal(t, method.ID, tx.Data()[:4])
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Equal(t, common.HexToAddress(testOwner), args[0])
	assert.Equal(t, common.HexToAddress(testRecipient), args[1])
	assert.Equal(t, 0, args[2].(*big.Int).Cmp(big.NewInt(5_000_000)))
}

func TestEVMAdapter_ConcurrentTransfersGetDistinctNonces(t *testing.T) {
	// the fake node keeps reporting pending nonce 7, like a lagging mempool
	node := newFakeEVMNode()
	srv := httptest.NewServer(node)
	defer srv.Close()

	a, _ := newTestEVMAdapter(t, srv.URL, true)

	owners := []string{testOwner, "0x4444444444444444444444444444444444444444"}
	var wg sync.WaitGroup
	errs := make([]error, len(owners))
	for i, owner := range owners {
		wg.Add(1)
		go func(i int, owner string) {
			defer wg.Done()
			_, errs[i] = a.ExecuteRelayedTransfer(context.Background(), testSpender, owner, testRecipient, big.NewInt(1_000_000))
		}(i, owner)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	node.mu.Lock()
	raws := append([]string(nil), node.rawTxs...)
	node.mu.Unlock()
	require.Len(t, raws, 2)

	var nonces []uint64
	for _, raw := range raws {
		b, err := hexutil.Decode(raw)
		require.NoError(t, err)
		var tx ethtypes.Transaction
		require.NoError(t, tx.UnmarshalBinary(b))
		nonces = append(nonces, tx.Nonce())
	}
	assert.ElementsMatch(t, []uint64{7, 8}, nonces)

	_, err := a.ExecuteRelayedTransfer(context.Background(), testSpender, testOwner, testRecipient, big.NewInt(1))
	require.NoError(t, err)
	node.mu.Lock()
	last := node.rawTxs[len(node.rawTxs)-1]
	node.mu.Unlock()
	b, err := hexutil.Decode(last)
	require.NoError(t, err)
	var tx ethtypes.Transaction
	require.NoError(t, tx.UnmarshalBinary(b))
	assert.Equal(t, uint64(9), tx.Nonce())
}

func TestEVMAdapter_ExecuteRelayedTransferRevert(t *testing.T) {
	node := newFakeEVMNode()
	node.revertGas = true
	srv := httptest.NewServer(node)
	defer srv.Close()

	a, _ := newTestEVMAdapter(t, srv.URL, true)

	_, err := a.ExecuteRelayedTransfer(context.Background(), testSpender, testOwner, testRecipient, big.NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionRejected)
	assert.NotErrorIs(t, err, ErrChainUnavailable)

	node.mu.Lock()
	defer node.mu.Unlock()
	assert.Empty(t, node.rawTxs)
}

func TestEVMAdapter_ExecuteRelayedTransferWithoutSigner(t *testing.T) {
	a := &EVMAdapter{network: types.NetworkBEP20}
	_, err := a.ExecuteRelayedTransfer(context.Background(), testSpender, testOwner, testRecipient, big.NewInt(1))
	assert.ErrorIs(t, err, ErrSignerNotConfigured)
}

func TestIsTransportError(t *testing.T) {
	assert.False(t, isTransportError(assert.AnError))
	assert.True(t, isTransportError(errString("dial tcp 127.0.0.1:1: connect: connection refused")))
	assert.True(t, isTransportError(errString("429 Too Many Requests")))
	assert.True(t, isTransportError(errString("timeout after 8s: context deadline exceeded")))
	assert.False(t, isTransportError(errString("execution reverted")))
	assert.False(t, isTransportError(nil))
}

type errString string

func (e errString) Error() string { return string(e) }

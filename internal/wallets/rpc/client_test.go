package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/chains"
	"github.com/mrz1836/walletlink/internal/metrics"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// handler answers one JSON-RPC request.
type handler func(method string, params []json.RawMessage) (any, *Error)

func newServer(t *testing.T, h handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}

		result, rpcErr := h(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)
	return server
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func fastRetry() Option {
	return WithRetry(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func TestChainID(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(method string, _ []json.RawMessage) (any, *Error) {
		assert.Equal(t, "eth_chainId", method)
		return "0x89", nil
	})

	m := &metrics.Metrics{}
	client := NewClient(server.URL, WithMetrics(m))
	id, err := client.ChainID(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, int64(137), id)
	assert.Equal(t, int64(1), m.Snapshot().RPCCallsTotal)
}

func TestAccounts(t *testing.T) {
	t.Parallel()

	addr := "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	server := newServer(t, func(method string, _ []json.RawMessage) (any, *Error) {
		switch method {
		case "eth_accounts":
			return []string{}, nil
		case "eth_requestAccounts":
			return []string{addr}, nil
		}
		return nil, &Error{Code: -32601, Message: "method not found"}
	})

	client := NewClient(server.URL)
	ctx := testContext(t)

	accounts, err := client.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	accounts, err = client.RequestAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, common.HexToAddress(addr), accounts[0])
}

func TestAccounts_InvalidAddress(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(string, []json.RawMessage) (any, *Error) {
		return []string{"not-an-address"}, nil
	})

	_, err := NewClient(server.URL).Accounts(testContext(t))
	require.ErrorIs(t, err, walleterr.ErrInvalidAddress)
}

func TestCall_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		code   int
		want   error
	}{
		{"user rejected", "eth_requestAccounts", CodeUserRejected, walleterr.ErrUserRejected},
		{"unauthorized", "personal_sign", CodeUnauthorized, walleterr.ErrNotAuthorized},
		{"switch unsupported", "wallet_switchEthereumChain", CodeUnsupportedMethod, walleterr.ErrSwitchChainUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := newServer(t, func(string, []json.RawMessage) (any, *Error) {
				return nil, &Error{Code: tt.code, Message: "nope"}
			})

			_, err := NewClient(server.URL).Call(testContext(t), tt.method)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsCode(err, tt.code))
		})
	}
}

func TestCall_UnknownChainKeepsCode(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(string, []json.RawMessage) (any, *Error) {
		return nil, &Error{Code: CodeUnrecognizedChain, Message: "unrecognized chain"}
	})

	err := NewClient(server.URL).SwitchChain(testContext(t), chains.Minimal(10))
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUnrecognizedChain))
}

func TestCall_RetriesReadOnlyOnly(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls = map[string]int{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		mu.Lock()
		calls[req.Method]++
		n := calls[req.Method]
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"})
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, fastRetry())
	ctx := testContext(t)

	id, err := client.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = client.Call(ctx, "personal_sign", "0x00", "0x0")
	require.ErrorIs(t, err, ErrRPCRequest)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls["eth_chainId"])
	assert.Equal(t, 1, calls["personal_sign"], "prompting methods are never retried")
}

func TestCall_NetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, fastRetry()).Call(testContext(t), "eth_chainId")
	require.ErrorIs(t, err, walleterr.ErrNetworkError)
}

func TestCall_RateLimited(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(server.URL).Call(testContext(t), "eth_sendTransaction")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "3s")
}

func TestAddChain(t *testing.T) {
	t.Parallel()

	var got map[string]any
	server := newServer(t, func(method string, params []json.RawMessage) (any, *Error) {
		assert.Equal(t, "wallet_addEthereumChain", method)
		if assert.Len(t, params, 1) {
			assert.NoError(t, json.Unmarshal(params[0], &got))
		}
		return nil, nil
	})

	chain, err := chains.Lookup(137)
	require.NoError(t, err)
	require.NoError(t, NewClient(server.URL).AddChain(testContext(t), chain, ""))

	assert.Equal(t, "0x89", got["chainId"])
	assert.Equal(t, chain.Name, got["chainName"])
	assert.NotEmpty(t, got["rpcUrls"])
}

func TestPersonalSign(t *testing.T) {
	t.Parallel()

	account := common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
	server := newServer(t, func(method string, params []json.RawMessage) (any, *Error) {
		assert.Equal(t, "personal_sign", method)
		if !assert.Len(t, params, 2) {
			return nil, &Error{Code: -32602, Message: "invalid params"}
		}
		assert.JSONEq(t, `"0x68656c6c6f"`, string(params[0]))
		assert.JSONEq(t, `"`+account.Hex()+`"`, string(params[1]))
		return "0x0102", nil
	})

	sig, err := NewClient(server.URL).PersonalSign(testContext(t), []byte("hello"), account)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, sig)
}

func TestSignTransaction(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
	chainID := big.NewInt(1)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(5),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)

	for _, shape := range []string{"string", "object"} {
		t.Run(shape, func(t *testing.T) {
			t.Parallel()
			server := newServer(t, func(method string, params []json.RawMessage) (any, *Error) {
				assert.Equal(t, "eth_signTransaction", method)
				var args map[string]any
				assert.NoError(t, json.Unmarshal(params[0], &args))
				assert.Equal(t, from.Hex(), args["from"])
				assert.Equal(t, "0x3", args["nonce"])
				assert.Contains(t, args, "maxFeePerGas")

				if shape == "object" {
					return map[string]any{"raw": "0x" + common.Bytes2Hex(raw)}, nil
				}
				return "0x" + common.Bytes2Hex(raw), nil
			})

			got, err := NewClient(server.URL).SignTransaction(testContext(t), tx, from, chainID)
			require.NoError(t, err)
			assert.Equal(t, signed.Hash(), got.Hash())
		})
	}
}

func TestSignTransaction_BadResponse(t *testing.T) {
	t.Parallel()

	server := newServer(t, func(string, []json.RawMessage) (any, *Error) {
		return map[string]any{"tx": map[string]any{}}, nil
	})

	tx := types.NewTx(&types.LegacyTx{Gas: 21000, GasPrice: big.NewInt(1)})
	_, err := NewClient(server.URL).SignTransaction(testContext(t), tx, common.Address{}, big.NewInt(1))
	require.ErrorIs(t, err, ErrRPCResponse)
}

// Package rpc provides the JSON-RPC 2.0 client used to talk to wallet
// providers such as Frame or a local signing node.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"

	"github.com/mrz1836/walletlink/internal/chains"
	"github.com/mrz1836/walletlink/internal/metrics"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// Provider error codes from EIP-1193 and EIP-3085.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

var (
	// ErrRPCRequest indicates an RPC request failed.
	ErrRPCRequest = &walleterr.WalletError{
		Code:     "RPC_REQUEST_FAILED",
		Message:  "RPC request failed",
		ExitCode: walleterr.ExitGeneral,
	}

	// ErrRPCResponse indicates an invalid RPC response.
	ErrRPCResponse = &walleterr.WalletError{
		Code:     "RPC_INVALID_RESPONSE",
		Message:  "invalid RPC response",
		ExitCode: walleterr.ExitGeneral,
	}
)

// readOnly methods never prompt the user and are safe to retry.
//
//nolint:gochecknoglobals // fixed method set
var readOnly = map[string]bool{
	"eth_accounts": true,
	"eth_chainId":  true,
}

// Error is a JSON-RPC error returned by the provider.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Client is a wallet provider JSON-RPC client.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *RateLimiter
	retry      RetryConfig
	metrics    *metrics.Metrics
	idCounter  atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter sets the limiter shared by clients of the same endpoint.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// WithRetry sets the retry policy for read-only methods.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithMetrics records call latency and errors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new RPC client for url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint.
func (c *Client) URL() string {
	return c.url
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error,omitempty"`
}

// Call performs a JSON-RPC call. Read-only methods are retried on
// transient failures; methods that may prompt the user never are.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	start := time.Now()
	var (
		result json.RawMessage
		err    error
	)
	if readOnly[method] {
		result, err = RetryWithConfig(ctx, c.retry, func() (json.RawMessage, error) {
			return c.call(ctx, method, params)
		})
	} else {
		result, err = c.call(ctx, method, params)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(time.Since(start), err)
	}
	if err != nil {
		return nil, MapError(method, err)
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.url); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.idCounter.Inc(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapRetryable(walleterr.WithCause(walleterr.ErrNetworkError, err))
	}
	defer func() { _ = httpResp.Body.Close() }()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, walleterr.WithDetails(ErrRateLimited, map[string]string{
			"retry_after": ParseRetryAfter(httpResp.Header.Get("Retry-After")).String(),
		})
	case httpResp.StatusCode >= http.StatusInternalServerError:
		return nil, WrapRetryable(fmt.Errorf("%w: HTTP %d", ErrRPCRequest, httpResp.StatusCode))
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, walleterr.WithCause(ErrRPCResponse, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// MapError translates provider error codes into walletlink errors.
func MapError(method string, err error) error {
	var rpcErr *Error
	if !walleterr.As(err, &rpcErr) {
		return err
	}
	switch rpcErr.Code {
	case CodeUserRejected:
		return walleterr.WithCause(walleterr.ErrUserRejected, err)
	case CodeUnauthorized:
		return walleterr.WithCause(walleterr.ErrNotAuthorized, err)
	case CodeUnsupportedMethod:
		if method == "wallet_switchEthereumChain" {
			return walleterr.WithCause(walleterr.ErrSwitchChainUnsupported, err)
		}
	}
	return err
}

// IsCode reports whether err carries the provider error code.
func IsCode(err error, code int) bool {
	var rpcErr *Error
	return walleterr.As(err, &rpcErr) && rpcErr.Code == code
}

// RequestAccounts asks the provider to expose its accounts, prompting the
// user when the application is not yet authorized.
func (c *Client) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return c.addresses(ctx, "eth_requestAccounts")
}

// Accounts returns the already-authorized accounts without prompting.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	return c.addresses(ctx, "eth_accounts")
}

func (c *Client) addresses(ctx context.Context, method string) ([]common.Address, error) {
	result, err := c.Call(ctx, method)
	if err != nil {
		return nil, err
	}

	var raw []string
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("parsing accounts: %w", err)
	}

	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if !common.IsHexAddress(s) {
			return nil, walleterr.WithDetails(walleterr.ErrInvalidAddress, map[string]string{"address": s})
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}

// ChainID returns the provider's current chain.
func (c *Client) ChainID(ctx context.Context) (int64, error) {
	result, err := c.Call(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}

	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return 0, fmt.Errorf("parsing chain ID: %w", err)
	}
	id, err := hexutil.DecodeUint64(hexVal)
	if err != nil {
		return 0, walleterr.WithCause(ErrRPCResponse, err)
	}
	return int64(id), nil //nolint:gosec // chain ids fit in int64
}

// SwitchChain asks the provider to move to chain.
func (c *Client) SwitchChain(ctx context.Context, chain chains.Chain) error {
	_, err := c.Call(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": chain.HexID()})
	return err
}

// AddChain asks the provider to add chain with its metadata.
func (c *Client) AddChain(ctx context.Context, chain chains.Chain, clientID string) error {
	params := map[string]any{
		"chainId":        chain.HexID(),
		"chainName":      chain.Name,
		"nativeCurrency": chain.NativeCurrency,
		"rpcUrls":        chain.RPCURLs(clientID),
	}
	if urls := chain.ExplorerURLs(); len(urls) > 0 {
		params["blockExplorerUrls"] = urls
	}
	_, err := c.Call(ctx, "wallet_addEthereumChain", params)
	return err
}

// PersonalSign signs msg with the EIP-191 prefix using account.
func (c *Client) PersonalSign(ctx context.Context, msg []byte, account common.Address) ([]byte, error) {
	result, err := c.Call(ctx, "personal_sign", hexutil.Encode(msg), account.Hex())
	if err != nil {
		return nil, err
	}

	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return nil, fmt.Errorf("parsing signature: %w", err)
	}
	return hexutil.Decode(sig)
}

// SignTransaction asks the provider to sign tx from account and returns
// the signed transaction. Providers answer with either the raw encoding
// or an object carrying it under "raw".
func (c *Client) SignTransaction(ctx context.Context, tx *types.Transaction, account common.Address, chainID *big.Int) (*types.Transaction, error) {
	result, err := c.Call(ctx, "eth_signTransaction", TransactionArgs(tx, account, chainID))
	if err != nil {
		return nil, err
	}
	return ParseSignedTransaction(result)
}

// ParseSignedTransaction decodes an eth_signTransaction result.
func ParseSignedTransaction(result json.RawMessage) (*types.Transaction, error) {
	parsed := gjson.ParseBytes(result)
	rawHex := parsed.String()
	if parsed.IsObject() {
		rawHex = parsed.Get("raw").String()
	}
	if !strings.HasPrefix(rawHex, "0x") {
		return nil, walleterr.WithDetails(ErrRPCResponse, map[string]string{"method": "eth_signTransaction"})
	}

	raw, err := hexutil.Decode(rawHex)
	if err != nil {
		return nil, walleterr.WithCause(ErrRPCResponse, err)
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, walleterr.WithCause(ErrRPCResponse, err)
	}
	return signed, nil
}

// TransactionArgs renders tx in the eth_signTransaction argument format.
func TransactionArgs(tx *types.Transaction, from common.Address, chainID *big.Int) map[string]any {
	args := map[string]any{
		"from":  from.Hex(),
		"gas":   hexutil.Uint64(tx.Gas()),
		"value": (*hexutil.Big)(tx.Value()),
		"nonce": hexutil.Uint64(tx.Nonce()),
		"data":  hexutil.Bytes(tx.Data()),
	}
	if to := tx.To(); to != nil {
		args["to"] = to.Hex()
	}
	if chainID != nil {
		args["chainId"] = (*hexutil.Big)(chainID)
	}
	if tx.Type() == types.DynamicFeeTxType {
		args["maxFeePerGas"] = (*hexutil.Big)(tx.GasFeeCap())
		args["maxPriorityFeePerGas"] = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args["gasPrice"] = (*hexutil.Big)(tx.GasPrice())
	}
	return args
}

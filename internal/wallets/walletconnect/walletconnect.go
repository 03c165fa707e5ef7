// Package walletconnect connects to mobile wallets over a WalletConnect v1
// bridge. Pairing shows a wc: URI (usually as a QR code) that the wallet
// scans; the approved session is stored so later runs resume it without a
// new approval.
package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/mrz1836/walletlink/internal/wallet"
	"github.com/mrz1836/walletlink/internal/wallets/rpc"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// ID is the WalletConnect wallet id.
const ID = "walletconnect"

// DefaultTimeout bounds session approval and every remote request.
const DefaultTimeout = 2 * time.Minute

// keySession holds the stored Session in the wallet's store.
const keySession = "session"

// DisplayFunc shows the pairing URI to the user.
type DisplayFunc func(uri string) error

// Config configures the WalletConnect wallet kind.
type Config struct {
	Bridge  string
	Timeout time.Duration
	Display DisplayFunc
	Dialer  *websocket.Dialer
}

// Descriptor describes the WalletConnect wallet.
func Descriptor(cfg Config) *wallet.Descriptor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	return &wallet.Descriptor{
		ID: ID,
		Meta: wallet.Meta{
			Name:        "WalletConnect",
			Description: "Scan a QR code with a mobile wallet",
			IconURL:     "https://walletconnect.org/walletconnect-logo.svg",
			URL:         "https://walletconnect.org",
		},
		Recommended: true,
		Create: func(opts wallet.Options) wallet.Instance {
			return wallet.NewBase(ID, opts, NewConnector(cfg, opts))
		},
	}
}

// Connector pairs with a wallet through the bridge and relays requests to
// it.
type Connector struct {
	cfg  Config
	opts wallet.Options
	feed event.Feed

	mu      sync.Mutex
	session *Session
	bridge  *bridge
	pending map[int64]chan Response
}

// NewConnector creates a connector storing its session in opts.Store.
func NewConnector(cfg Config, opts wallet.Options) *Connector {
	return &Connector{cfg: cfg, opts: opts, pending: make(map[int64]chan Response)}
}

// Connect resumes the stored session, or pairs a new one and waits for the
// wallet to approve it.
func (c *Connector) Connect(ctx context.Context, params wallet.Params) (wallet.ConnectResult, error) {
	if stored, ok := c.loadSession(ctx); ok {
		if err := c.open(ctx, stored); err != nil {
			return wallet.ConnectResult{}, err
		}
		return wallet.ConnectResult{Account: stored.Account(), ChainID: stored.ChainID}, nil
	}
	return c.pair(ctx, params)
}

func (c *Connector) pair(ctx context.Context, params wallet.Params) (wallet.ConnectResult, error) {
	if c.cfg.Display == nil {
		return wallet.ConnectResult{}, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"reason": "walletconnect has no way to display the pairing uri",
		})
	}

	key, err := NewKey()
	if err != nil {
		return wallet.ConnectResult{}, err
	}
	sess := &Session{
		Bridge:         c.cfg.Bridge,
		Key:            hex.EncodeToString(key),
		ClientID:       uuid.NewString(),
		HandshakeTopic: uuid.NewString(),
	}
	if err := c.open(ctx, sess); err != nil {
		return wallet.ConnectResult{}, err
	}

	var chainID *int64
	if params.ChainID != 0 {
		chainID = &params.ChainID
	}
	req := newRequest(MethodSessionRequest, SessionRequest{
		PeerID:   sess.ClientID,
		PeerMeta: peerMetaFrom(c.opts.App),
		ChainID:  chainID,
	})

	resp, err := c.roundTrip(ctx, sess.HandshakeTopic, req, func() error {
		return c.cfg.Display(URI{Topic: sess.HandshakeTopic, Bridge: sess.Bridge, Key: key}.String())
	})
	if err != nil {
		c.close(true)
		return wallet.ConnectResult{}, err
	}

	var status SessionStatus
	if err := json.Unmarshal(resp.Result, &status); err != nil {
		c.close(true)
		return wallet.ConnectResult{}, walleterr.WithCause(rpc.ErrRPCResponse, err)
	}
	if !status.Approved {
		c.close(true)
		return wallet.ConnectResult{}, walleterr.WithDetails(walleterr.ErrUserRejected, map[string]string{"wallet": ID})
	}
	if len(status.Accounts) == 0 || !common.IsHexAddress(status.Accounts[0]) {
		c.close(true)
		return wallet.ConnectResult{}, walleterr.WithDetails(walleterr.ErrNotAuthorized, map[string]string{"reason": "wallet approved no accounts"})
	}
	if status.ChainID == 0 {
		status.ChainID = params.ChainID
	}

	c.mu.Lock()
	sess.PeerID = status.PeerID
	sess.PeerMeta = status.PeerMeta
	sess.Accounts = status.Accounts
	sess.ChainID = status.ChainID
	snapshot := *sess
	c.mu.Unlock()

	c.saveSession(ctx, &snapshot)
	return wallet.ConnectResult{Account: snapshot.Account(), ChainID: snapshot.ChainID}, nil
}

// open dials the bridge for sess and makes it the live session.
func (c *Connector) open(ctx context.Context, sess *Session) error {
	key, err := sess.key()
	if err != nil || len(key) != KeySize {
		return walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"reason": "invalid walletconnect session key"})
	}

	c.close(true)

	br, err := dialBridge(ctx, c.cfg.Dialer, sess.Bridge, sess.ClientID, key, c.opts.Log(), c.handlePayload, c.bridgeLost)
	if err != nil {
		return walleterr.WithCause(walleterr.ErrNetworkError, err)
	}

	c.mu.Lock()
	c.session = sess
	c.bridge = br
	c.mu.Unlock()
	return nil
}

// IsAuthorized reports whether a stored session can be resumed.
func (c *Connector) IsAuthorized(ctx context.Context, _ wallet.Params) (bool, error) {
	sess, ok := c.loadSession(ctx)
	return ok && len(sess.Accounts) > 0, nil
}

// Disconnect kills the live session: the wallet is told, the stored session
// is removed and the bridge is closed. Without a live session it does
// nothing, so discarding an unused instance never kills a stored pairing.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	sess, br := c.session, c.bridge
	c.mu.Unlock()
	if sess == nil || br == nil {
		return nil
	}

	var err error
	if sess.PeerID != "" {
		err = br.publish(sess.PeerID, newRequest(MethodSessionUpdate, SessionStatus{PeerMeta: peerMetaFrom(c.opts.App)}), false)
	}
	c.removeSession(ctx)
	c.close(true)
	return err
}

// Discard closes the bridge of the live session. The stored pairing and
// the wallet-side session stay, for the instance that replaced this one.
func (c *Connector) Discard() {
	c.close(true)
}

// Signer returns a signer that forwards requests to the wallet.
func (c *Connector) Signer(_ context.Context) (wallet.Signer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.PeerID == "" {
		return nil, walleterr.ErrWalletNotConnected
	}
	return &Signer{conn: c, account: c.session.Account()}, nil
}

// ChainID returns the session's chain.
func (c *Connector) ChainID(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0, walleterr.ErrWalletNotConnected
	}
	return c.session.ChainID, nil
}

// SwitchChain asks the wallet to move the session to chainID.
func (c *Connector) SwitchChain(ctx context.Context, chainID int64) error {
	chain := c.opts.LookupChain(chainID)
	if _, err := c.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": chain.HexID()}); err != nil {
		return err
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return walleterr.ErrWalletNotConnected
	}
	c.session.ChainID = chainID
	snapshot := *c.session
	c.mu.Unlock()

	c.saveSession(ctx, &snapshot)
	return nil
}

// Subscribe delivers session events to ch.
func (c *Connector) Subscribe(ch chan<- wallet.Event) event.Subscription {
	return c.feed.Subscribe(ch)
}

// Request sends a JSON-RPC request to the wallet and waits for its answer.
func (c *Connector) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil || sess.PeerID == "" {
		return nil, walleterr.ErrWalletNotConnected
	}

	resp, err := c.roundTrip(ctx, sess.PeerID, newRequest(method, params...), nil)
	if err != nil {
		return nil, rpc.MapError(method, err)
	}
	return resp.Result, nil
}

// roundTrip publishes req to topic, runs after once the request is out, and
// waits for the matching response.
func (c *Connector) roundTrip(ctx context.Context, topic string, req Request, after func() error) (Response, error) {
	ch := make(chan Response, 1)

	c.mu.Lock()
	br := c.bridge
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if br == nil {
		return Response{}, walleterr.ErrWalletNotConnected
	}
	if err := br.publish(topic, req, strings.HasPrefix(req.Method, "wc_")); err != nil {
		return Response{}, walleterr.WithCause(walleterr.ErrNetworkError, err)
	}
	if after != nil {
		if err := after(); err != nil {
			return Response{}, err
		}
	}

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			if req.Method == MethodSessionRequest {
				return Response{}, walleterr.WithCause(walleterr.ErrUserRejected, resp.Error)
			}
			return Response{}, resp.Error
		}
		return resp, nil
	case <-br.lost():
		return Response{}, walleterr.WithDetails(walleterr.ErrNetworkError, map[string]string{"reason": "walletconnect bridge closed"})
	case <-timer.C:
		return Response{}, walleterr.WithDetails(walleterr.ErrTimeout, map[string]string{"method": req.Method})
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// handlePayload runs on the bridge read loop.
func (c *Connector) handlePayload(data []byte) {
	if !gjson.ValidBytes(data) {
		c.opts.Log().Debug("walletconnect: dropping invalid json payload")
		return
	}

	method := gjson.GetBytes(data, "method")
	if !method.Exists() {
		c.deliver(data)
		return
	}

	switch method.String() {
	case MethodSessionUpdate:
		c.sessionUpdate(gjson.GetBytes(data, "params.0"))
	default:
		c.opts.Log().Debug("walletconnect: ignoring wallet request %s", method.String())
	}
}

func (c *Connector) deliver(data []byte) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.opts.Log().Debug("walletconnect: dropping malformed response: %v", err)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	c.mu.Unlock()
	if !ok {
		c.opts.Log().Debug("walletconnect: response %d has no pending request", resp.ID)
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (c *Connector) sessionUpdate(params gjson.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	if !params.Get("approved").Bool() {
		c.removeSession(ctx)
		c.close(false)
		c.feed.Send(wallet.Event{Kind: wallet.EventDisconnect})
		return
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	ev := wallet.Event{Kind: wallet.EventChange}
	if accounts := params.Get("accounts").Array(); len(accounts) > 0 && common.IsHexAddress(accounts[0].String()) {
		list := make([]string, 0, len(accounts))
		for _, a := range accounts {
			list = append(list, a.String())
		}
		c.session.Accounts = list
		ev.Account = c.session.Account()
	}
	if chainID := params.Get("chainId").Int(); chainID > 0 {
		c.session.ChainID = chainID
		ev.ChainID = chainID
	}
	snapshot := *c.session
	c.mu.Unlock()

	c.saveSession(ctx, &snapshot)
	c.feed.Send(ev)
}

func (c *Connector) bridgeLost(br *bridge, err error) {
	c.mu.Lock()
	live := c.bridge == br
	c.mu.Unlock()
	if !live {
		return
	}
	c.opts.Log().Error("walletconnect: bridge connection lost: %v", err)
	c.feed.Send(wallet.Event{Kind: wallet.EventError, Err: walleterr.WithCause(walleterr.ErrNetworkError, err)})
}

// close drops the live session and closes its bridge.
func (c *Connector) close(wait bool) {
	c.mu.Lock()
	br := c.bridge
	c.bridge = nil
	c.session = nil
	c.mu.Unlock()

	if br != nil {
		br.close(wait)
	}
}

func (c *Connector) loadSession(ctx context.Context) (*Session, bool) {
	if c.opts.Store == nil {
		return nil, false
	}
	raw, ok, err := c.opts.Store.Get(ctx, keySession)
	if err != nil {
		c.opts.Log().Error("walletconnect: reading session: %v", err)
		return nil, false
	}
	if !ok || raw == "" {
		return nil, false
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.ClientID == "" || sess.PeerID == "" {
		c.opts.Log().Error("walletconnect: discarding corrupt session")
		c.removeSession(ctx)
		return nil, false
	}
	return &sess, true
}

func (c *Connector) saveSession(ctx context.Context, sess *Session) {
	if c.opts.Store == nil {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		c.opts.Log().Error("walletconnect: encoding session: %v", err)
		return
	}
	if err := c.opts.Store.Set(ctx, keySession, string(data)); err != nil {
		c.opts.Meter().RecordStorageError()
		c.opts.Log().Error("walletconnect: writing session: %v", err)
	}
}

func (c *Connector) removeSession(ctx context.Context) {
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.Remove(ctx, keySession); err != nil {
		c.opts.Meter().RecordStorageError()
		c.opts.Log().Error("walletconnect: removing session: %v", err)
	}
}

// Signer signs through the paired wallet.
type Signer struct {
	conn    *Connector
	account common.Address
}

// Address returns the session account.
func (s *Signer) Address() common.Address {
	return s.account
}

// SignMessage asks the wallet for a personal_sign signature.
func (s *Signer) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	result, err := s.conn.Request(ctx, "personal_sign", hexutil.Encode(msg), s.account.Hex())
	if err != nil {
		return nil, err
	}
	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return nil, walleterr.WithCause(rpc.ErrRPCResponse, err)
	}
	return hexutil.Decode(sig)
}

// SignTransaction asks the wallet to sign tx.
func (s *Signer) SignTransaction(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if tx == nil {
		return nil, wallet.ErrNilTransaction
	}
	result, err := s.conn.Request(ctx, "eth_signTransaction", rpc.TransactionArgs(tx, s.account, chainID))
	if err != nil {
		return nil, err
	}
	return rpc.ParseSignedTransaction(result)
}

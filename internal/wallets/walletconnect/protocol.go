package walletconnect

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"

	"github.com/mrz1836/walletlink/internal/wallet"
	"github.com/mrz1836/walletlink/internal/wallets/rpc"
)

// Bridge message types.
const (
	TypePub = "pub"
	TypeSub = "sub"
	TypeAck = "ack"
)

// Session methods.
const (
	MethodSessionRequest = "wc_sessionRequest"
	MethodSessionUpdate  = "wc_sessionUpdate"
)

// Message is the envelope exchanged with the bridge. Payload holds a JSON
// encoded Payload for pub messages and is empty otherwise.
type Message struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

// PeerMeta describes one side of a session.
type PeerMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

func peerMetaFrom(app wallet.AppMeta) PeerMeta {
	icons := app.Icons
	if icons == nil {
		icons = []string{}
	}
	return PeerMeta{Description: app.Description, URL: app.URL, Icons: icons, Name: app.Name}
}

// SessionRequest is the wc_sessionRequest parameter.
type SessionRequest struct {
	PeerID   string   `json:"peerId"`
	PeerMeta PeerMeta `json:"peerMeta"`
	ChainID  *int64   `json:"chainId"`
}

// SessionStatus is both the wc_sessionRequest result and the
// wc_sessionUpdate parameter.
type SessionStatus struct {
	Approved bool     `json:"approved"`
	ChainID  int64    `json:"chainId"`
	Accounts []string `json:"accounts"`
	PeerID   string   `json:"peerId,omitempty"`
	PeerMeta PeerMeta `json:"peerMeta"`
}

// Request is a JSON-RPC request sent through the bridge.
type Request struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Response is a JSON-RPC response received through the bridge.
type Response struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpc.Error      `json:"error,omitempty"`
}

// payloadIDs issues request ids. WalletConnect peers expect ids derived
// from the clock.
//
//nolint:gochecknoglobals // process-wide id sequence
var payloadIDs = atomic.NewInt64(time.Now().UnixNano() / 1000)

func newRequest(method string, params ...any) Request {
	if params == nil {
		params = []any{}
	}
	return Request{ID: payloadIDs.Inc(), JSONRPC: "2.0", Method: method, Params: params}
}

// URI is a WalletConnect v1 pairing URI.
type URI struct {
	Topic  string
	Bridge string
	Key    []byte
}

// String renders wc:{topic}@1?bridge={bridge}&key={key}.
func (u URI) String() string {
	return fmt.Sprintf("wc:%s@1?bridge=%s&key=%s", u.Topic, url.QueryEscape(u.Bridge), hex.EncodeToString(u.Key))
}

// ParseURI parses a pairing URI.
func ParseURI(s string) (URI, error) {
	rest, ok := strings.CutPrefix(s, "wc:")
	if !ok {
		return URI{}, fmt.Errorf("walletconnect uri %q: missing wc: prefix", s)
	}
	head, query, ok := strings.Cut(rest, "?")
	if !ok {
		return URI{}, fmt.Errorf("walletconnect uri %q: missing query", s)
	}
	topic, version, _ := strings.Cut(head, "@")
	if topic == "" || version != "1" {
		return URI{}, fmt.Errorf("walletconnect uri %q: unsupported topic or version", s)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return URI{}, fmt.Errorf("walletconnect uri %q: %w", s, err)
	}
	key, err := hex.DecodeString(values.Get("key"))
	if err != nil || len(key) != KeySize {
		return URI{}, fmt.Errorf("walletconnect uri %q: invalid key", s)
	}
	if values.Get("bridge") == "" {
		return URI{}, fmt.Errorf("walletconnect uri %q: missing bridge", s)
	}
	return URI{Topic: topic, Bridge: values.Get("bridge"), Key: key}, nil
}

// Session is an established pairing, persisted so the wallet can resume
// it without a new approval.
type Session struct {
	Bridge         string   `json:"bridge"`
	Key            string   `json:"key"`
	ClientID       string   `json:"clientId"`
	PeerID         string   `json:"peerId"`
	PeerMeta       PeerMeta `json:"peerMeta"`
	HandshakeTopic string   `json:"handshakeTopic"`
	Accounts       []string `json:"accounts"`
	ChainID        int64    `json:"chainId"`
}

func (s *Session) key() ([]byte, error) {
	return hex.DecodeString(s.Key)
}

// Account returns the session's first account.
func (s *Session) Account() common.Address {
	if len(s.Accounts) == 0 {
		return common.Address{}
	}
	return common.HexToAddress(s.Accounts[0])
}

// SocketURL converts a bridge URL to its websocket endpoint.
func SocketURL(bridge string) string {
	switch {
	case strings.HasPrefix(bridge, "https://"):
		bridge = "wss://" + strings.TrimPrefix(bridge, "https://")
	case strings.HasPrefix(bridge, "http://"):
		bridge = "ws://" + strings.TrimPrefix(bridge, "http://")
	}
	sep := "?"
	if strings.Contains(bridge, "?") {
		sep = "&"
	}
	return bridge + sep + "protocol=wc&version=1"
}

package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved JSON keys of a params object.
const (
	paramChainID        = "chainId"
	paramPersonalWallet = "personalWallet"
)

// ParamOAuthProvider marks params of a redirect-based sign-in that may be
// resumed after the process restarts.
const ParamOAuthProvider = "oauthProvider"

// ErrEmptyWalletID indicates a session record without a wallet id.
var ErrEmptyWalletID = errors.New("session record has no wallet id")

// Params is the connection payload handed to Instance.Connect.
//
// Fields holds kind-specific values. PersonalWallet is the persisted
// reference to a composite's nested wallet; Personal is the live nested
// instance and is never serialized.
type Params struct {
	ChainID        int64
	Fields         map[string]any
	PersonalWallet *Record
	Personal       Instance
}

// MarshalJSON flattens Fields next to chainId and personalWallet.
func (p Params) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Fields)+2)
	for k, v := range p.Fields {
		if k == paramChainID || k == paramPersonalWallet {
			continue
		}
		m[k] = v
	}
	if p.ChainID != 0 {
		m[paramChainID] = p.ChainID
	}
	if p.PersonalWallet != nil {
		m[paramPersonalWallet] = p.PersonalWallet
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits the reserved keys out of the flat object.
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Params{}
	if v, ok := raw[paramChainID]; ok {
		if err := json.Unmarshal(v, &p.ChainID); err != nil {
			return fmt.Errorf("decoding chainId: %w", err)
		}
		delete(raw, paramChainID)
	}
	if v, ok := raw[paramPersonalWallet]; ok {
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decoding personalWallet: %w", err)
		}
		p.PersonalWallet = &rec
		delete(raw, paramPersonalWallet)
	}
	if len(raw) == 0 {
		return nil
	}

	p.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("decoding %s: %w", k, err)
		}
		p.Fields[k] = val
	}
	return nil
}

// Clone returns a copy with its own Fields map.
func (p Params) Clone() Params {
	out := p
	if p.Fields != nil {
		out.Fields = make(map[string]any, len(p.Fields))
		for k, v := range p.Fields {
			out.Fields[k] = v
		}
	}
	if p.PersonalWallet != nil {
		rec := *p.PersonalWallet
		out.PersonalWallet = &rec
	}
	return out
}

// Set stores a kind-specific field.
func (p *Params) Set(key string, value any) {
	if p.Fields == nil {
		p.Fields = make(map[string]any)
	}
	p.Fields[key] = value
}

// Has reports whether a kind-specific field is present.
func (p Params) Has(key string) bool {
	_, ok := p.Fields[key]
	return ok
}

// String returns a string field, or "" when absent or not a string.
func (p Params) String(key string) string {
	s, _ := p.Fields[key].(string)
	return s
}

// Without returns a copy minus the given fields.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out.Fields, k)
	}
	return out
}

// Merge layers explicit over defaults; explicit values win on conflict.
func Merge(defaults, explicit Params) Params {
	out := defaults.Clone()
	if explicit.ChainID != 0 {
		out.ChainID = explicit.ChainID
	}
	for k, v := range explicit.Fields {
		out.Set(k, v)
	}
	if explicit.PersonalWallet != nil {
		rec := *explicit.PersonalWallet
		out.PersonalWallet = &rec
	}
	if explicit.Personal != nil {
		out.Personal = explicit.Personal
	}
	return out
}

// Record is the persisted description of a connected wallet.
type Record struct {
	WalletID      string  `json:"walletId"`
	ConnectParams *Params `json:"connectParams,omitempty"`
}

// Encode serializes the record.
func (r Record) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseRecord decodes a stored record.
func ParseRecord(s string) (*Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, err
	}
	if r.WalletID == "" {
		return nil, ErrEmptyWalletID
	}
	return &r, nil
}

// Params returns a copy of the record's params, empty when absent.
func (r Record) Params() Params {
	if r.ConnectParams == nil {
		return Params{}
	}
	return r.ConnectParams.Clone()
}

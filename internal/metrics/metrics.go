// Package metrics provides session-level counters.
// Counters are atomic so the controller, its event bridge and wallet
// transports can record concurrently.
package metrics

import (
	"time"

	"go.uber.org/atomic"
)

// Metrics holds connection session counters.
type Metrics struct {
	connectsTotal  atomic.Int64
	connectsFailed atomic.Int64

	autoConnectsTotal    atomic.Int64
	autoConnectsFailed   atomic.Int64
	autoConnectsTimedOut atomic.Int64

	disconnectsTotal  atomic.Int64
	walletDisconnects atomic.Int64

	chainSwitchesTotal  atomic.Int64
	chainSwitchesFailed atomic.Int64

	storageErrors atomic.Int64

	rpcCallsTotal   atomic.Int64
	rpcErrorsTotal  atomic.Int64
	rpcLatencyNanos atomic.Int64
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordConnect records an explicit connect attempt.
func (m *Metrics) RecordConnect(err error) {
	m.connectsTotal.Inc()
	if err != nil {
		m.connectsFailed.Inc()
	}
}

// RecordAutoConnect records an auto-connect attempt that found a stored session.
func (m *Metrics) RecordAutoConnect(err error, timedOut bool) {
	m.autoConnectsTotal.Inc()
	if err != nil {
		m.autoConnectsFailed.Inc()
	}
	if timedOut {
		m.autoConnectsTimedOut.Inc()
	}
}

// RecordDisconnect records a session reset. walletInitiated is true when the
// wallet ended the session rather than the caller.
func (m *Metrics) RecordDisconnect(walletInitiated bool) {
	m.disconnectsTotal.Inc()
	if walletInitiated {
		m.walletDisconnects.Inc()
	}
}

// RecordChainSwitch records a chain switch request.
func (m *Metrics) RecordChainSwitch(err error) {
	m.chainSwitchesTotal.Inc()
	if err != nil {
		m.chainSwitchesFailed.Inc()
	}
}

// RecordStorageError records a swallowed persistence failure.
func (m *Metrics) RecordStorageError() {
	m.storageErrors.Inc()
}

// RecordRPCCall records a wallet transport call with its duration.
func (m *Metrics) RecordRPCCall(duration time.Duration, err error) {
	m.rpcCallsTotal.Inc()
	m.rpcLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.rpcErrorsTotal.Inc()
	}
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	ConnectsTotal        int64 `json:"connects_total"`
	ConnectsFailed       int64 `json:"connects_failed"`
	AutoConnectsTotal    int64 `json:"auto_connects_total"`
	AutoConnectsFailed   int64 `json:"auto_connects_failed"`
	AutoConnectsTimedOut int64 `json:"auto_connects_timed_out"`
	DisconnectsTotal     int64 `json:"disconnects_total"`
	WalletDisconnects    int64 `json:"wallet_disconnects"`
	ChainSwitchesTotal   int64 `json:"chain_switches_total"`
	ChainSwitchesFailed  int64 `json:"chain_switches_failed"`
	StorageErrors        int64 `json:"storage_errors"`
	RPCCallsTotal        int64 `json:"rpc_calls_total"`
	RPCErrorsTotal       int64 `json:"rpc_errors_total"`
	RPCLatencyNanos      int64 `json:"rpc_latency_nanos"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ConnectsTotal:        m.connectsTotal.Load(),
		ConnectsFailed:       m.connectsFailed.Load(),
		AutoConnectsTotal:    m.autoConnectsTotal.Load(),
		AutoConnectsFailed:   m.autoConnectsFailed.Load(),
		AutoConnectsTimedOut: m.autoConnectsTimedOut.Load(),
		DisconnectsTotal:     m.disconnectsTotal.Load(),
		WalletDisconnects:    m.walletDisconnects.Load(),
		ChainSwitchesTotal:   m.chainSwitchesTotal.Load(),
		ChainSwitchesFailed:  m.chainSwitchesFailed.Load(),
		StorageErrors:        m.storageErrors.Load(),
		RPCCallsTotal:        m.rpcCallsTotal.Load(),
		RPCErrorsTotal:       m.rpcErrorsTotal.Load(),
		RPCLatencyNanos:      m.rpcLatencyNanos.Load(),
	}
}

// RPCLatencyAvgMs returns the average transport call latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) RPCLatencyAvgMs() float64 {
	calls := m.rpcCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.rpcLatencyNanos.Load()) / float64(calls) / 1e6
}

// Reset resets all metrics to zero.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.connectsTotal, &m.connectsFailed,
		&m.autoConnectsTotal, &m.autoConnectsFailed, &m.autoConnectsTimedOut,
		&m.disconnectsTotal, &m.walletDisconnects,
		&m.chainSwitchesTotal, &m.chainSwitchesFailed,
		&m.storageErrors,
		&m.rpcCallsTotal, &m.rpcErrorsTotal, &m.rpcLatencyNanos,
	} {
		c.Store(0)
	}
}

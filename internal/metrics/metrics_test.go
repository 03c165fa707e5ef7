package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

func TestMetrics_RecordConnect(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordConnect(nil)
	m.RecordConnect(walleterr.ErrUserRejected)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.ConnectsTotal)
	assert.Equal(t, int64(1), snap.ConnectsFailed)
}

func TestMetrics_RecordAutoConnect(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordAutoConnect(nil, false)
	m.RecordAutoConnect(walleterr.ErrNotAuthorized, false)
	m.RecordAutoConnect(walleterr.ErrAutoConnectTimeout, true)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.AutoConnectsTotal)
	assert.Equal(t, int64(2), snap.AutoConnectsFailed)
	assert.Equal(t, int64(1), snap.AutoConnectsTimedOut)
}

func TestMetrics_DisconnectAndChainSwitch(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordDisconnect(false)
	m.RecordDisconnect(true)
	m.RecordChainSwitch(nil)
	m.RecordChainSwitch(walleterr.ErrSwitchChainUnsupported)
	m.RecordStorageError()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.DisconnectsTotal)
	assert.Equal(t, int64(1), snap.WalletDisconnects)
	assert.Equal(t, int64(2), snap.ChainSwitchesTotal)
	assert.Equal(t, int64(1), snap.ChainSwitchesFailed)
	assert.Equal(t, int64(1), snap.StorageErrors)
}

func TestMetrics_RPCLatencyAvgMs(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	assert.InDelta(t, 0.0, m.RPCLatencyAvgMs(), 0.001)

	m.RecordRPCCall(100*time.Millisecond, nil)
	m.RecordRPCCall(200*time.Millisecond, walleterr.ErrNetworkError)

	assert.InDelta(t, 150.0, m.RPCLatencyAvgMs(), 0.001)
	assert.Equal(t, int64(1), m.Snapshot().RPCErrorsTotal)
}

func TestMetrics_Reset(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	m.RecordConnect(nil)
	m.RecordAutoConnect(walleterr.ErrAutoConnectTimeout, true)
	m.RecordRPCCall(time.Second, nil)

	m.Reset()

	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetrics_Concurrent(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordConnect(nil)
			m.RecordDisconnect(false)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(50), snap.ConnectsTotal)
	assert.Equal(t, int64(50), snap.DisconnectsTotal)
}

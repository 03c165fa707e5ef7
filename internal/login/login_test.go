package login_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/login"
	"github.com/mrz1836/walletlink/internal/storage"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

const dashboard = "https://dashboard.example.com/cli"

func start(t *testing.T, timeout time.Duration) *login.Flow {
	t.Helper()
	f, err := login.Start(login.Config{DashboardURL: dashboard, Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func get(t *testing.T, rawURL string) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestFlow_URL(t *testing.T) {
	t.Parallel()
	f := start(t, time.Second)

	assert.Equal(t, dashboard+"/login?from=cli#"+f.State(), f.URL())
	assert.Len(t, f.State(), 32)
	assert.True(t, strings.HasPrefix(f.CallbackURL(), "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(f.CallbackURL(), login.CallbackPath))
}

func TestFlow_Callback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      func(state string) string
		wantStatus int
		wantKey    string
		wantErr    *walleterr.WalletError
	}{
		{
			name:       "success",
			query:      func(state string) string { return "?id=secret-123&state=" + state },
			wantStatus: http.StatusOK,
			wantKey:    "secret-123",
		},
		{
			name:       "state mismatch",
			query:      func(string) string { return "?id=secret-123&state=forged" },
			wantStatus: http.StatusBadRequest,
			wantErr:    walleterr.ErrLoginStateMismatch,
		},
		{
			name:       "missing id",
			query:      func(state string) string { return "?state=" + state },
			wantStatus: http.StatusBadRequest,
			wantErr:    walleterr.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := start(t, 5*time.Second)

			status, _ := get(t, f.CallbackURL()+tt.query(f.State()))
			assert.Equal(t, tt.wantStatus, status)

			key, err := f.Wait(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestFlow_CORS(t *testing.T) {
	t.Parallel()
	f := start(t, time.Second)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, f.CallbackURL()+"?id=x&state="+f.State(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "https://dashboard.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET", resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestFlow_Timeout(t *testing.T) {
	t.Parallel()
	f := start(t, 50*time.Millisecond)

	begin := time.Now()
	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, walleterr.ErrLoginTimeout)
	assert.Less(t, time.Since(begin), 2*time.Second)
}

func TestFlow_ContextCanceled(t *testing.T) {
	t.Parallel()
	f := start(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory().Scope(login.Scope)
	port := freePort(t)

	cfg := login.Config{
		DashboardURL: dashboard,
		Port:         port,
		Timeout:      5 * time.Second,
		Open: func(u string) error {
			state := u[strings.Index(u, "#")+1:]
			go func() {
				callback := fmt.Sprintf("http://127.0.0.1:%d%s?id=from-dashboard&state=%s", port, login.CallbackPath, state)
				req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, callback, nil)
				if resp, err := http.DefaultClient.Do(req); err == nil {
					_ = resp.Body.Close()
				}
			}()
			return nil
		},
	}

	key, err := login.Login(context.Background(), store, cfg, false)
	require.NoError(t, err)
	assert.Equal(t, "from-dashboard", key)

	cached, err := login.Session(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "from-dashboard", cached)

	cfg.Open = func(string) error { return assert.AnError }
	key, err = login.Login(context.Background(), store, cfg, false)
	require.NoError(t, err, "a cached key skips the flow")
	assert.Equal(t, "from-dashboard", key)

	_, err = login.Login(context.Background(), store, cfg, true)
	require.ErrorIs(t, err, assert.AnError)
}

func TestLogout(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory().Scope(login.Scope)

	_, err := login.Session(context.Background(), store)
	require.ErrorIs(t, err, walleterr.ErrNotLoggedIn)

	require.NoError(t, store.Set(context.Background(), login.SecretKey, "k"))
	require.NoError(t, login.Logout(context.Background(), store))
	require.NoError(t, login.Logout(context.Background(), store))

	_, err = login.Session(context.Background(), store)
	require.ErrorIs(t, err, walleterr.ErrNotLoggedIn)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert // tcp listener
	require.NoError(t, ln.Close())
	return port
}

// Package login runs the browser login flow. The user signs in on the
// dashboard, which redirects to a callback server on localhost carrying the
// API secret key; the key is cached in a store for later commands.
package login

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mrz1836/walletlink/internal/storage"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

const (
	// SecretKey is the store key of the cached API secret key.
	SecretKey = "api-secret-key"
	// CallbackPath receives the dashboard redirect.
	CallbackPath = "/auth/callback"
	// Scope is the store scope login uses.
	Scope = "login"

	// DefaultTimeout bounds the wait for the callback.
	DefaultTimeout = 120 * time.Second
)

// Config configures a login flow.
type Config struct {
	DashboardURL string
	// Port is the localhost callback port; 0 picks a free one.
	Port    int
	Timeout time.Duration
	// Open presents the dashboard URL to the user.
	Open func(url string) error
}

//nolint:gochecknoglobals // gin mode is process-wide
var ginMode sync.Once

// Flow is one pending login.
type Flow struct {
	cfg   Config
	state string
	ln    net.Listener
	srv   *http.Server

	once   sync.Once
	result chan result
}

type result struct {
	key string
	err error
}

// Start listens for the callback. Close the flow when done.
func Start(cfg Config) (*Flow, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrNetworkError, err)
	}

	f := &Flow{
		cfg:    cfg,
		state:  strings.ReplaceAll(uuid.NewString(), "-", ""),
		ln:     ln,
		result: make(chan result, 1),
	}
	f.srv = &http.Server{Handler: f.router(), ReadHeaderTimeout: 10 * time.Second}

	go func() { _ = f.srv.Serve(ln) }()
	return f, nil
}

func (f *Flow) router() *gin.Engine {
	ginMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		if origin := dashboardOrigin(f.cfg.DashboardURL); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET")
		c.Next()
	})
	router.GET(CallbackPath, f.callback)
	return router
}

func (f *Flow) callback(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.String(http.StatusBadRequest, "No secretKey received")
		f.finish(result{err: walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"reason": "no secret key received"})})
		return
	}
	if c.Query("state") != f.state {
		c.String(http.StatusBadRequest, "Unauthorized request, state mismatch")
		f.finish(result{err: walleterr.ErrLoginStateMismatch})
		return
	}
	c.String(http.StatusOK, "Logged in. You can close this window.")
	f.finish(result{key: id})
}

// finish records the first outcome; later callbacks are answered but ignored.
func (f *Flow) finish(r result) {
	f.once.Do(func() { f.result <- r })
}

// State returns the anti-forgery state the callback must echo.
func (f *Flow) State() string {
	return f.state
}

// CallbackURL returns the local callback address.
func (f *Flow) CallbackURL() string {
	return "http://" + f.ln.Addr().String() + CallbackPath
}

// URL returns the dashboard page that starts the login.
func (f *Flow) URL() string {
	return f.cfg.DashboardURL + "/login?from=cli#" + f.state
}

// Wait blocks until the callback arrives, the timeout passes or ctx ends.
func (f *Flow) Wait(ctx context.Context) (string, error) {
	timer := time.NewTimer(f.cfg.Timeout)
	defer timer.Stop()

	select {
	case r := <-f.result:
		return r.key, r.err
	case <-timer.C:
		return "", walleterr.ErrLoginTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the callback server.
func (f *Flow) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Login returns the cached key, or runs the flow and caches its key. force
// always runs the flow.
func Login(ctx context.Context, store storage.Store, cfg Config, force bool) (string, error) {
	if !force {
		if key, ok, err := store.Get(ctx, SecretKey); err == nil && ok {
			return key, nil
		}
	}

	f, err := Start(cfg)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if cfg.Open != nil {
		if err := cfg.Open(f.URL()); err != nil {
			return "", err
		}
	}

	key, err := f.Wait(ctx)
	if err != nil {
		return "", err
	}
	if err := store.Set(ctx, SecretKey, key); err != nil {
		return "", err
	}
	return key, nil
}

// Session returns the cached key.
func Session(ctx context.Context, store storage.Store) (string, error) {
	key, ok, err := store.Get(ctx, SecretKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", walleterr.ErrNotLoggedIn
	}
	return key, nil
}

// Logout forgets the cached key.
func Logout(ctx context.Context, store storage.Store) error {
	return store.Remove(ctx, SecretKey)
}

func dashboardOrigin(dashboard string) string {
	u, err := url.Parse(dashboard)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

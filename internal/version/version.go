// Package version checks the running build against the latest published
// walletlink release.
package version

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Release repository and API defaults.
const (
	Owner          = "mrz1836"
	Repo           = "walletlink"
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 30 * time.Second

	// Dev is the version of builds without release metadata.
	Dev = "dev"

	maxBodySize = 64 * 1024
)

// Errors returned by this package.
var (
	ErrReleaseAPI     = errors.New("release API request failed")
	ErrInvalidRelease = errors.New("release response has no tag")
	ErrInvalidRepo    = errors.New("owner/repo must be non-empty GitHub names")
)

var (
	repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	commitPattern   = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)
)

// Release is the subset of a GitHub release walletlink reads.
type Release struct {
	Tag         string
	Name        string
	Prerelease  bool
	PublishedAt time.Time
	URL         string
}

// Info compares the running build with the latest release.
type Info struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
	URL     string `json:"url,omitempty"`
	IsNewer bool   `json:"updateAvailable"`
}

// Client fetches releases.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a release client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  fmt.Sprintf("walletlink/%s (%s/%s)", Dev, runtime.GOOS, runtime.GOARCH),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Latest fetches the latest release of owner/repo.
func (c *Client) Latest(ctx context.Context, owner, repo string) (*Release, error) {
	if !repoNamePattern.MatchString(owner) || !repoNamePattern.MatchString(repo) {
		return nil, ErrInvalidRepo
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL is built from the configured API root
	if err != nil {
		return nil, fmt.Errorf("fetching release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading release: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrReleaseAPI, resp.StatusCode, gjson.GetBytes(body, "message").String())
	}

	fields := gjson.GetManyBytes(body, "tag_name", "name", "prerelease", "published_at", "html_url")
	if fields[0].String() == "" {
		return nil, ErrInvalidRelease
	}
	return &Release{
		Tag:         fields[0].String(),
		Name:        fields[1].String(),
		Prerelease:  fields[2].Bool(),
		PublishedAt: fields[3].Time(),
		URL:         fields[4].String(),
	}, nil
}

// Check compares current with the latest walletlink release.
func (c *Client) Check(ctx context.Context, current string) (*Info, error) {
	rel, err := c.Latest(ctx, Owner, Repo)
	if err != nil {
		return nil, err
	}
	return &Info{
		Current: Normalize(current),
		Latest:  Normalize(rel.Tag),
		URL:     rel.URL,
		IsNewer: IsNewer(current, rel.Tag),
	}, nil
}

// IsDev reports whether v is a development build: empty, "dev" or a
// commit hash.
func IsDev(v string) bool {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" || v == Dev {
		return true
	}
	v = strings.TrimSuffix(v, "-dirty")
	return commitPattern.MatchString(v) && strings.ContainsAny(strings.ToLower(v), "abcdef")
}

// Compare returns 1, 0 or -1 as a is newer than, equal to or older than b.
// Development builds are older than any release.
func Compare(a, b string) int {
	aDev, bDev := IsDev(a), IsDev(b)
	switch {
	case aDev && bDev:
		return 0
	case aDev:
		return -1
	case bDev:
		return 1
	}

	pa, pb := parts(a), parts(b)
	for i := range 3 {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// IsNewer reports whether latest is newer than current.
func IsNewer(current, latest string) bool {
	return Compare(latest, current) > 0
}

// Normalize strips a leading v, whitespace and any pre-release or build
// suffix.
func Normalize(v string) string {
	v = strings.TrimLeft(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i != -1 {
		v = v[:i]
	}
	return v
}

// parts returns major, minor and patch; missing or malformed parts are 0.
func parts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(Normalize(v), ".", 3) {
		if n, err := strconv.Atoi(p); err == nil {
			out[i] = n
		}
	}
	return out
}

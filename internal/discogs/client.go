package discogs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"discosync/internal/cache"
	"discosync/internal/core"
	"discosync/internal/httpclient"
	"discosync/internal/ratelimit"
)

const (
	// DefaultBaseURL is the Discogs API root.
	DefaultBaseURL = "https://api.discogs.com"

	defaultPerPage = 50

	// TTL tiers: search pages churn, single records barely change.
	DefaultSearchTTL = time.Hour
	DefaultRecordTTL = 24 * time.Hour

	// maxTransportRetries bounds retries on connection/timeout failures;
	// with the initial attempt the client sends at most 4 requests.
	maxTransportRetries = 3

	// maxSafe429Wait is the largest server-suggested wait the client will
	// sleep through for the single in-call 429 retry. Longer waits are
	// surfaced to the caller instead.
	maxSafe429Wait = 5
)

// Config holds Discogs client configuration.
type Config struct {
	// BaseURL overrides the API root (tests point this at a local server).
	BaseURL string

	// Token is the personal access token. When set it wins over the
	// consumer key/secret pair.
	Token string

	// ConsumerKey and ConsumerSecret authenticate as key/secret query
	// parameters when no token is configured.
	ConsumerKey    string
	ConsumerSecret string

	// UserAgent is required by Discogs on every request.
	UserAgent string

	// SearchTTL and RecordTTL override the cache TTL tiers.
	SearchTTL time.Duration
	RecordTTL time.Duration
}

// Hooks receive client events for metrics collection. Nil hooks are skipped.
type Hooks struct {
	OnRequest     func(operation string)
	OnCacheHit    func(operation string)
	OnRateLimited func(operation string)
	OnError       func(operation string, kind core.ErrorKind)
}

// Client performs reliable calls against the Discogs API: response caching
// with TTL tiers, server-driven rate-limit gating, exponential backoff on
// transport failures and a single bounded retry on 429.
type Client struct {
	httpClient *http.Client
	cfg        Config
	store      cache.Store
	limiter    *ratelimit.Limiter
	hooks      Hooks

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Discogs client. The cache store is shared with the rate
// limiter so quota state survives process restarts.
func New(cfg Config, store cache.Store, hooks Hooks) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), cfg, store, hooks)
}

// NewWithHTTPClient creates a Discogs client with a custom HTTP client.
// If client is nil, http.DefaultClient is used.
func NewWithHTTPClient(client *http.Client, cfg Config, store cache.Store, hooks Hooks) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.SearchTTL == 0 {
		cfg.SearchTTL = DefaultSearchTTL
	}
	if cfg.RecordTTL == 0 {
		cfg.RecordTTL = DefaultRecordTTL
	}
	return &Client{
		httpClient: client,
		cfg:        cfg,
		store:      store,
		limiter:    ratelimit.New(store),
		hooks:      hooks,
		sleep:      sleepCtx,
	}
}

// Search queries the Discogs database for releases. Query may be empty if
// at least one filter is set.
func (c *Client) Search(ctx context.Context, query string, filters core.SearchFilters, page int) (*SearchResponse, error) {
	params := searchParams(query, filters, page)
	if len(params) <= 3 { // only type/per_page/page present
		return nil, core.NewInvalidInputError("empty search criteria")
	}

	var resp SearchResponse
	if _, err := c.get(ctx, "search", "/database/search", params, c.cfg.SearchTTL, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRelease fetches a single release by ID.
func (c *Client) GetRelease(ctx context.Context, id int64) (*Release, error) {
	if id <= 0 {
		return nil, core.NewInvalidInputError("release id must be positive")
	}

	var release Release
	body, err := c.get(ctx, "release", fmt.Sprintf("/releases/%d", id),
		map[string]string{"id": strconv.FormatInt(id, 10)}, c.cfg.RecordTTL, &release)
	if err != nil {
		return nil, err
	}
	release.Raw = body
	return &release, nil
}

// GetArtist fetches a single artist by ID.
func (c *Client) GetArtist(ctx context.Context, id int64) (*ArtistDetail, error) {
	if id <= 0 {
		return nil, core.NewInvalidInputError("artist id must be positive")
	}

	var artist ArtistDetail
	if _, err := c.get(ctx, "artist", fmt.Sprintf("/artists/%d", id),
		map[string]string{"id": strconv.FormatInt(id, 10)}, c.cfg.RecordTTL, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// GetLabel fetches a single label by ID.
func (c *Client) GetLabel(ctx context.Context, id int64) (*LabelDetail, error) {
	if id <= 0 {
		return nil, core.NewInvalidInputError("label id must be positive")
	}

	var label LabelDetail
	if _, err := c.get(ctx, "label", fmt.Sprintf("/labels/%d", id),
		map[string]string{"id": strconv.FormatInt(id, 10)}, c.cfg.RecordTTL, &label); err != nil {
		return nil, err
	}
	return &label, nil
}

// TestConnection verifies credentials and reachability with an uncached
// request against the API root.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.do(ctx, "ping", "/", nil)
	return err
}

// get runs one cached operation: cache lookup, rate-limit gate, HTTP call
// with retries, response classification, cache store.
func (c *Client) get(ctx context.Context, operation, endpoint string, params map[string]string, ttl time.Duration, out any) (json.RawMessage, error) {
	key := cache.Key(operation, params)

	if data, ok, err := c.store.Get(ctx, key); err == nil && ok {
		if c.hooks.OnCacheHit != nil {
			c.hooks.OnCacheHit(operation)
		}
		if err := json.Unmarshal(data, out); err != nil {
			// A poisoned entry is dropped and refetched.
			_ = c.store.Delete(ctx, key)
		} else {
			return data, nil
		}
	} else if err != nil {
		slog.Warn("cache read failed", "operation", operation, "error", err)
	}

	body, err := c.do(ctx, operation, endpoint, params)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(body, out); err != nil {
		slog.Error("failed to decode response", "operation", operation, "endpoint", endpoint, "error", err)
		if c.hooks.OnError != nil {
			c.hooks.OnError(operation, core.KindUpstreamDecode)
		}
		return nil, core.NewDecodeError("malformed response body", err)
	}

	if err := c.store.Set(ctx, key, body, ttl); err != nil {
		slog.Warn("cache write failed", "operation", operation, "error", err)
	}
	return body, nil
}

// do issues the HTTP call with the rate-limit gate and the retry policy:
// exponential backoff (1s, 2s, 4s) on transport failures up to 3 retries,
// one bounded retry on the first 429 with a short server-suggested wait.
// Decode failures and other statuses never retry.
func (c *Client) do(ctx context.Context, operation, endpoint string, params map[string]string) ([]byte, error) {
	if allowed, retryAfter := c.limiter.Check(ctx); !allowed {
		slog.Warn("rate limit reached, call blocked",
			"operation", operation, "endpoint", endpoint, "retry_after", retryAfter)
		if c.hooks.OnRateLimited != nil {
			c.hooks.OnRateLimited(operation)
		}
		return nil, core.NewRateLimitedError(
			fmt.Sprintf("Discogs rate limit reached, try again in %d seconds", retryAfter), retryAfter)
	}

	transportRetries := 0
	retried429 := false

	for {
		slog.Info("discogs request", "operation", operation, "endpoint", endpoint, "attempt", transportRetries+1)
		if c.hooks.OnRequest != nil {
			c.hooks.OnRequest(operation)
		}

		resp, err := c.doRequest(ctx, endpoint, params)
		if err != nil {
			transportRetries++
			if transportRetries > maxTransportRetries {
				slog.Error("request failed after retries",
					"operation", operation, "endpoint", endpoint, "error", err)
				if c.hooks.OnError != nil {
					c.hooks.OnError(operation, core.KindUpstreamTransport)
				}
				return nil, core.NewTransportError("request failed after retries", err)
			}
			backoff := time.Duration(1<<(transportRetries-1)) * time.Second
			slog.Warn("transport failure, backing off",
				"operation", operation, "backoff", backoff, "error", err)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, core.NewTransportError("request canceled during backoff", err)
			}
			continue
		}

		switch {
		case resp.statusCode == http.StatusTooManyRequests:
			c.limiter.Observe(ctx, resp.header, resp.statusCode)
			retryAfter := ratelimit.RetryAfterSeconds(resp.header)
			slog.Warn("rate limited by server",
				"operation", operation, "endpoint", endpoint, "retry_after", retryAfter)
			if c.hooks.OnRateLimited != nil {
				c.hooks.OnRateLimited(operation)
			}

			if !retried429 && retryAfter > 0 && retryAfter <= maxSafe429Wait {
				retried429 = true
				if err := c.sleep(ctx, time.Duration(retryAfter)*time.Second); err != nil {
					return nil, core.NewTransportError("request canceled during rate-limit wait", err)
				}
				continue
			}
			return nil, core.NewRateLimitedError(
				fmt.Sprintf("Discogs rate limit exceeded, try again in %d seconds", max(retryAfter, 1)), retryAfter)

		case resp.statusCode >= 200 && resp.statusCode < 300:
			c.limiter.Observe(ctx, resp.header, resp.statusCode)
			return resp.body, nil

		case resp.statusCode == http.StatusNotFound:
			slog.Warn("record not found", "operation", operation, "endpoint", endpoint)
			if c.hooks.OnError != nil {
				c.hooks.OnError(operation, core.KindNotFound)
			}
			return nil, core.NewNotFoundError(upstreamMessage(resp.body, "record not found"))

		default:
			msg := upstreamMessage(resp.body, fmt.Sprintf("Discogs returned status %d", resp.statusCode))
			slog.Error("unexpected upstream status",
				"operation", operation, "endpoint", endpoint, "status", resp.statusCode, "message", msg)
			if c.hooks.OnError != nil {
				c.hooks.OnError(operation, core.KindUpstreamStatus)
			}
			return nil, core.NewUpstreamStatusError(resp.statusCode, msg)
		}
	}
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

// doRequest executes a single HTTP request without retries.
func (c *Client) doRequest(ctx context.Context, endpoint string, params map[string]string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(endpoint, params), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &response{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       body,
	}, nil
}

// buildURL assembles the request URL. Key/secret credentials are appended
// here, after cache keys have been derived, so they never leak into keys.
func (c *Client) buildURL(endpoint string, params map[string]string) string {
	values := url.Values{}
	for name, value := range params {
		values.Set(name, value)
	}
	if c.cfg.Token == "" && c.cfg.ConsumerKey != "" && c.cfg.ConsumerSecret != "" {
		values.Set("key", c.cfg.ConsumerKey)
		values.Set("secret", c.cfg.ConsumerSecret)
	}

	u := c.cfg.BaseURL + endpoint
	if encoded := values.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// upstreamMessage extracts the human-readable message from a Discogs error
// body. The payload shape varies, so gjson reads it defensively.
func upstreamMessage(body []byte, fallback string) string {
	if msg := gjson.GetBytes(body, "message").String(); msg != "" {
		return msg
	}
	return fallback
}

func searchParams(query string, filters core.SearchFilters, page int) map[string]string {
	if page < 1 {
		page = 1
	}
	params := map[string]string{
		"type":     "release",
		"per_page": strconv.Itoa(defaultPerPage),
		"page":     strconv.Itoa(page),
	}
	if query != "" {
		params["q"] = query
	}

	set := func(name, value string) {
		if value != "" {
			params[name] = value
		}
	}
	set("artist", filters.Artist)
	set("title", filters.Title)
	set("label", filters.Label)
	set("catno", filters.CatalogNumber)
	set("year", filters.Year)
	set("format", filters.Format)
	set("country", filters.Country)
	set("genre", filters.Genre)
	set("style", filters.Style)
	set("sort", filters.Sort)
	set("sort_order", filters.SortOrder)
	return params
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

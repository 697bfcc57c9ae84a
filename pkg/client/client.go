// Package client provides the careerledger Go SDK for publishing, listing and
// reviewing portfolios through the registry HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Sentinel errors matched by (*APIError).Is.
var (
	ErrNotFound          = errors.New("portfolio not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrOrphaned          = errors.New("portfolio stored but not indexed")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// APIError is returned for every non-2xx registry response.
type APIError struct {
	StatusCode int
	Message    string
	// ID is set when the registry reports an orphaned record.
	ID string
}

func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("registry error %d: %s (id %s)", e.StatusCode, e.Message, e.ID)
	}
	return fmt.Sprintf("registry error %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrOrphaned:
		return e.StatusCode == http.StatusBadGateway
	case ErrLedgerUnavailable:
		return e.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// Draft is the payload for Publish.
type Draft struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	ExperienceLevel string   `json:"experienceLevel,omitempty"`
}

// Portfolio is a stored portfolio record.
type Portfolio struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Skills          []string `json:"skills"`
	ExperienceLevel string   `json:"experienceLevel"`
	Data            string   `json:"data"`
	Timestamp       int64    `json:"timestamp"`
	Owner           string   `json:"owner"`
	Status          string   `json:"status"`
}

// CreatedAt returns the record timestamp as a time.Time.
func (p *Portfolio) CreatedAt() time.Time { return time.Unix(p.Timestamp, 0) }

// Page is one page of a portfolio listing.
type Page struct {
	Portfolios []Portfolio `json:"portfolios"`
	Count      int         `json:"count"`
	Total      int         `json:"total"`
}

// ListOptions filters and pages List. Zero values use the server defaults.
type ListOptions struct {
	Query  string
	Limit  int
	Offset int
}

// Stats holds record counts by review status.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Verified int `json:"verified"`
	Rejected int `json:"rejected"`
}

// JournalEntry is one audit journal entry.
type JournalEntry struct {
	Index     int       `json:"index"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RecordID  string    `json:"record_id,omitempty"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	DataHash  string    `json:"data_hash"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Journal is the journal overview returned by GET /api/v1/journal.
type Journal struct {
	Length  int            `json:"length"`
	Root    string         `json:"root"`
	Entries []JournalEntry `json:"entries"`
}

// Client is the careerledger SDK entry point.
type Client struct {
	registryBase string
	httpClient   *http.Client
	bearerToken  string
	account      string // development X-Account header
	cache        *recordCache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a session token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithAccount sends account in the X-Account header. Registries running
// without session tokens accept it as the acting account.
func WithAccount(account string) Option {
	return func(c *Client) error {
		c.account = account
		return nil
	}
}

// WithCacheTTL enables in-memory caching of Get results with the given TTL.
// Approve and Reject through the same Client evict the affected record.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl > 0 {
			c.cache = newRecordCache(ttl)
		}
		return nil
	}
}

// New creates a new Client connected to registryBase.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(token),
//	    client.WithCacheTTL(30*time.Second),
//	)
func New(registryBase string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(registryBase); err != nil {
		return nil, fmt.Errorf("parse registry URL: %w", err)
	}
	c := &Client{
		registryBase: registryBase,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(registryBase string, opts ...Option) *Client {
	c, err := New(registryBase, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Publish stores a new pending portfolio owned by the acting account. When
// the registry reports the record as orphaned the returned error matches
// ErrOrphaned and its *APIError carries the id.
func (c *Client) Publish(ctx context.Context, d Draft) (*Portfolio, error) {
	var out Portfolio
	if err := c.call(ctx, http.MethodPost, "/api/v1/portfolios", nil, d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of portfolios, newest first.
func (c *Client) List(ctx context.Context, opts ListOptions) (*Page, error) {
	q := url.Values{}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	var out Page
	if err := c.call(ctx, http.MethodGet, "/api/v1/portfolios", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the portfolio with the given id.
func (c *Client) Get(ctx context.Context, id string) (*Portfolio, error) {
	if c.cache != nil {
		if p, ok := c.cache.get(id); ok {
			return p, nil
		}
	}
	var out Portfolio
	if err := c.call(ctx, http.MethodGet, "/api/v1/portfolios/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(id, &out)
	}
	return &out, nil
}

// Approve moves a pending portfolio to verified.
func (c *Client) Approve(ctx context.Context, id string) (*Portfolio, error) {
	return c.review(ctx, id, "approve")
}

// Reject moves a pending portfolio to rejected.
func (c *Client) Reject(ctx context.Context, id string) (*Portfolio, error) {
	return c.review(ctx, id, "reject")
}

func (c *Client) review(ctx context.Context, id, action string) (*Portfolio, error) {
	if c.cache != nil {
		defer c.cache.evict(id)
	}
	var out Portfolio
	path := "/api/v1/portfolios/" + url.PathEscape(id) + "/" + action
	if err := c.call(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns record counts by review status.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.call(ctx, http.MethodGet, "/api/v1/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Orphans returns the ids of records stored but missing from the index.
func (c *Client) Orphans(ctx context.Context) ([]string, error) {
	var out struct {
		Orphans []string `json:"orphans"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/orphans", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Orphans, nil
}

// Reindex appends ids to the index, or every orphan when ids is empty, and
// returns the ids that were appended.
func (c *Client) Reindex(ctx context.Context, ids ...string) ([]string, error) {
	var body any
	if len(ids) > 0 {
		body = map[string][]string{"ids": ids}
	}
	var out struct {
		Reindexed []string `json:"reindexed"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/orphans/reindex", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Reindexed, nil
}

// Journal returns the journal length, root hash and up to limit entries
// starting at from.
func (c *Client) Journal(ctx context.Context, from, limit int) (*Journal, error) {
	q := url.Values{}
	q.Set("from", strconv.Itoa(from))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out Journal
	if err := c.call(ctx, http.MethodGet, "/api/v1/journal", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyJournal asks the registry to walk the journal chain. A broken chain
// is reported as (false, nil) with the reason in the second return value.
func (c *Client) VerifyJournal(ctx context.Context) (bool, string, error) {
	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/journal/verify", nil, nil, &out); err != nil {
		return false, "", err
	}
	return out.Valid, out.Error, nil
}

// Ready reports whether the registry can reach its ledger.
func (c *Client) Ready(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/readyz", nil, nil, nil)
}

// call executes one JSON request. in and out may be nil.
func (c *Client) call(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.registryBase + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request, attaching credentials if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	if c.account != "" {
		req.Header.Set("X-Account", c.account)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		var payload struct {
			Error string `json:"error"`
			ID    string `json:"id"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.ID = payload.ID
		}
		return nil, apiErr
	}
	return body, nil
}

// --- simple in-memory record cache ---

type cacheEntry struct {
	record    Portfolio
	expiresAt time.Time
}

type recordCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newRecordCache(ttl time.Duration) *recordCache {
	return &recordCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (rc *recordCache) get(key string) (*Portfolio, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	e, ok := rc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	p := e.record
	return &p, true
}

func (rc *recordCache) set(key string, p *Portfolio) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[key] = &cacheEntry{record: *p, expiresAt: time.Now().Add(rc.ttl)}
}

func (rc *recordCache) evict(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.entries, key)
}

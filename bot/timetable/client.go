package timetable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"schedbot/core/logger"
	tg "schedbot/core/telegram"
	"log/slog"
)

const (
	scheduleCacheTTL = 10 * time.Minute
	listCacheTTL     = time.Hour
	maxBodyBytes     = 4 << 20
)

// Client is the HTTP Provider implementation.
type Client struct {
	baseURL string
	http    *http.Client

	scheduleCache *ttlCache
	listCache     *ttlCache
}

// ClientOptions configure a Client.
type ClientOptions struct {
	BaseURL string
	// HTTPClient overrides the default retrying client, used in tests.
	HTTPClient *http.Client
}

// NewClient builds a Provider backed by the schedule service HTTP API.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = tg.BuildHTTPClient()
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		http:          httpClient,
		scheduleCache: newTTLCache(scheduleCacheTTL),
		listCache:     newTTLCache(listCacheTTL),
	}
}

// Schedule implements Provider.
func (c *Client) Schedule(ctx context.Context, date string, query string, kind Kind) ([]Day, error) {
	q := url.Values{}
	q.Set("date", date)
	switch kind {
	case KindTeacher:
		q.Set("teacher", query)
	default:
		q.Set("group", query)
	}
	endpoint := c.baseURL + "/schedule?" + q.Encode()

	var days []Day
	if c.scheduleCache.get(endpoint, &days) {
		return days, nil
	}

	start := time.Now()
	body, status, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("timetable: schedule request: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("timetable: schedule request: unexpected status %d", status)
	}
	if err := json.Unmarshal(body, &days); err != nil {
		return nil, fmt.Errorf("timetable: schedule decode: %w", err)
	}

	// Days without a single lesson are noise for pagination.
	filtered := days[:0]
	for _, d := range days {
		if len(d.Pairs) > 0 {
			filtered = append(filtered, d)
		}
	}
	days = filtered
	if len(days) == 0 {
		return nil, ErrNotFound
	}

	c.scheduleCache.put(endpoint, days)
	logger.Debug(ctx, "timetable", "schedule.fetched",
		slog.String("query", logger.SanitizeLimit(query, 64)),
		slog.String("date", date),
		slog.String("entity_type", string(kind)),
		slog.Int("found", len(days)),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
	return days, nil
}

// Entities implements Provider.
func (c *Client) Entities(ctx context.Context, kind Kind) ([]string, error) {
	endpoint := c.baseURL + "/list?type=" + url.QueryEscape(string(kind))

	var names []string
	if c.listCache.get(endpoint, &names) {
		return names, nil
	}

	body, status, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("timetable: list request: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("timetable: list request: unexpected status %d", status)
	}
	if err := json.Unmarshal(body, &names); err != nil {
		return nil, fmt.Errorf("timetable: list decode: %w", err)
	}

	c.listCache.put(endpoint, names)
	return names, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// ttlCache is a tiny expiring cache for decoded responses. Values are
// stored re-encoded so callers never share slices with the cache.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]ttlEntry
}

type ttlEntry struct {
	raw     []byte
	expires time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: make(map[string]ttlEntry)}
}

func (c *ttlCache) get(key string, out any) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && time.Now().After(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(e.raw, out) == nil
}

func (c *ttlCache) put(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = ttlEntry{raw: raw, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

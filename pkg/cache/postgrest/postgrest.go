// Package postgrest is an answer cache backend for a hosted Postgres exposed
// through a PostgREST API.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jajabor-ai/tutor/pkg/cache"
	"github.com/jajabor-ai/tutor/pkg/models"
)

// DefaultTable is the answer table name.
const DefaultTable = "answer_cache"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// Backend talks to <baseURL>/rest/v1/<table>.
type Backend struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ cache.Backend = (*Backend)(nil)

// New creates a Backend. client may be nil.
func New(baseURL, apiKey, table string, client *http.Client) *Backend {
	if table == "" {
		table = DefaultTable
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Backend{
		endpoint: strings.TrimRight(baseURL, "/") + "/rest/v1/" + table,
		apiKey:   apiKey,
		client:   client,
	}
}

// Lookup fetches the newest row matching key, subject and chapter.
func (b *Backend) Lookup(ctx context.Context, key, subjectID, chapterID string) (models.CacheEntry, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("cache_key", "eq."+key)
	q.Set("subject_id", "eq."+subjectID)
	q.Set("chapter_id", "eq."+chapterID)
	q.Set("order", "created_at.desc")
	q.Set("limit", "1")

	resp, err := b.do(ctx, http.MethodGet, q, nil, nil)
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache lookup: %w", err)
	}
	defer resp.Body.Close()

	var rows []models.CacheEntry
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache lookup: decode: %w", err)
	}
	if len(rows) == 0 {
		return models.CacheEntry{}, cache.ErrNotFound
	}
	return rows[0], nil
}

// Upsert inserts e, merging with an existing row on cache_key.
func (b *Backend) Upsert(ctx context.Context, e models.CacheEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	q := url.Values{}
	q.Set("on_conflict", "cache_key")
	hdr := http.Header{}
	hdr.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := b.do(ctx, http.MethodPost, q, hdr, body)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	resp.Body.Close()
	return nil
}

// touchAttempts bounds how often Touch re-reads a row whose access count
// changed underneath it.
const touchAttempts = 3

// Touch increments the access count of e's row. PostgREST cannot express
// access_count + 1 in a PATCH, so the update is conditional on the count it
// last read and is retried against a fresh read when another hit won.
func (b *Backend) Touch(ctx context.Context, e models.CacheEntry, at time.Time) error {
	count := e.AccessCount
	for range touchAttempts {
		ok, err := b.swapCount(ctx, e.Key, count, at)
		if err != nil {
			return fmt.Errorf("cache touch: %w", err)
		}
		if ok {
			return nil
		}
		cur, err := b.Lookup(ctx, e.Key, e.SubjectID, e.ChapterID)
		if err != nil {
			return fmt.Errorf("cache touch: %w", err)
		}
		count = cur.AccessCount
	}
	return fmt.Errorf("cache touch %s: access count kept changing", e.Key)
}

// swapCount sets access_count to old+1 only where it still equals old and
// reports whether a row was updated.
func (b *Backend) swapCount(ctx context.Context, key string, old int64, at time.Time) (bool, error) {
	body, err := json.Marshal(map[string]any{
		"access_count":  old + 1,
		"last_accessed": at.UTC(),
	})
	if err != nil {
		return false, err
	}
	q := url.Values{}
	q.Set("cache_key", "eq."+key)
	q.Set("access_count", "eq."+strconv.FormatInt(old, 10))
	q.Set("select", "cache_key")
	hdr := http.Header{}
	hdr.Set("Prefer", "return=representation")

	resp, err := b.do(ctx, http.MethodPatch, q, hdr, body)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}
	return len(rows) > 0, nil
}

// Count asks for an exact row count via the Content-Range header.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	q := url.Values{}
	q.Set("select", "cache_key")
	hdr := http.Header{}
	hdr.Set("Prefer", "count=exact")
	hdr.Set("Range-Unit", "items")
	hdr.Set("Range", "0-0")

	resp, err := b.do(ctx, http.MethodGet, q, hdr, nil)
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	n, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Clear deletes every row. PostgREST refuses unfiltered deletes, so the
// filter matches all keys.
func (b *Backend) Clear(ctx context.Context) error {
	q := url.Values{}
	q.Set("cache_key", "not.is.null")

	resp, err := b.do(ctx, http.MethodDelete, q, nil, nil)
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }

func (b *Backend) do(ctx context.Context, method string, q url.Values, hdr http.Header, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.endpoint+"?"+q.Encode(), rdr)
	if err != nil {
		return nil, err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("apikey", b.apiKey)
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: status %d: %s", method, b.endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// parseContentRange extracts the total from "0-0/42" or "*/0".
func parseContentRange(v string) (int64, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("bad content-range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("content-range %q has no total", v)
	}
	return strconv.ParseInt(total, 10, 64)
}

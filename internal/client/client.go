// Package client talks to the research backend over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/pkg/utils"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const maxErrorBody = 512

// Client is a backend API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *cache.Cache
	logger  *zap.Logger
}

// New creates a client for cfg. A non-positive CacheTTL disables response de-duplication.
func New(cfg config.APIConfig, logger *zap.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  utils.OrNop(logger),
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Search runs a non-streaming focus-group search.
func (c *Client) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp models.SearchResponse
	if err := c.PostJSON(ctx, PathSearch, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchUnified runs a search over focus groups and strategy memos. Identical requests
// within the cache TTL share one backend call.
func (c *Client) SearchUnified(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp models.SearchResponse
	if err := c.cachedJSON(ctx, http.MethodPost, PathSearchUnified, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenSearchStream starts a streaming search. The caller must close the returned body.
func (c *Client) OpenSearchStream(ctx context.Context, req models.SearchRequest) (io.ReadCloser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.OpenStream(ctx, PathSearchStream, req)
}

// Corpus lists every document in the corpus.
func (c *Client) Corpus(ctx context.Context) ([]models.CorpusItem, error) {
	var items []models.CorpusItem
	if err := c.cachedJSON(ctx, http.MethodGet, PathCorpus, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CorpusDocument fetches one document's Markdown content.
func (c *Client) CorpusDocument(ctx context.Context, docType, docID string) (*models.DocumentContent, error) {
	path := PathCorpus + "/" + url.PathEscape(docType) + "/" + url.PathEscape(docID)
	var doc models.DocumentContent
	if err := c.GetJSON(ctx, path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SynthesizeLight returns a short summary for one focus group.
func (c *Client) SynthesizeLight(ctx context.Context, req models.SynthesisRequest) (string, error) {
	var out models.LightSummary
	if err := c.PostJSON(ctx, PathSynthesizeLight, req, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

// SynthesizeStrategyLight returns a short summary of one race's strategy lessons.
func (c *Client) SynthesizeStrategyLight(ctx context.Context, req models.StrategySynthesisRequest) (string, error) {
	var out models.LightSummary
	if err := c.PostJSON(ctx, PathSynthesizeStrategyLight, req, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

// OpenStream POSTs payload to path and returns the response body unread. The request is
// aborted when ctx is canceled. The caller must close the body.
func (c *Client) OpenStream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PostJSON POSTs payload to path and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	body, err := c.roundTrip(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// GetJSON GETs path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.roundTrip(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// InvalidateCache drops every de-duplicated response.
func (c *Client) InvalidateCache() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

func (c *Client) cachedJSON(ctx context.Context, method, path string, payload, out any) error {
	if c.cache == nil {
		body, err := c.roundTrip(ctx, method, path, payload)
		if err != nil {
			return err
		}
		return decode(path, body, out)
	}

	key, err := cacheKey(method, path, payload)
	if err != nil {
		return err
	}
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("cache hit", zap.String("path", path))
		return decode(path, cached.([]byte), out)
	}
	body, err := c.roundTrip(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if err := decode(path, body, out); err != nil {
		return err
	}
	c.cache.Set(key, body, cache.DefaultExpiration)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) ([]byte, error) {
	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{op: "read " + path, err: err}
	}
	return body, nil
}

// do sends the request and checks the status. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, &transportError{op: method + " " + path, err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("backend returned error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Duration("headers_after", time.Since(start)))
	return resp, nil
}

func decode(path string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func cacheKey(method, path string, payload any) (string, error) {
	if payload == nil {
		return method + " " + path, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", path, err)
	}
	return method + " " + path + " " + string(data), nil
}

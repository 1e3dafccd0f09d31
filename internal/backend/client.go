// Package backend is the HTTP client of the chain indexing service.
//
// Every call is a single request: the client does not retry. A request
// that never produced a response fails with *errs.NetworkError; a
// response with a non-2xx status fails with *errs.APIError.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// metadataCacheSize is the number of pool and token records kept.
const metadataCacheSize = 512

// maxErrorBody caps the response body quoted in an APIError.
const maxErrorBody = 512

// Client talks to one backend root.
type Client struct {
	root   string
	http   *http.Client
	limits config.BackendParams
	logger zerolog.Logger

	pools  *lru.Cache[string, PoolInfo]
	tokens *lru.Cache[string, TokenInfo]
}

// New creates a client for the network's backend. A non-empty root
// overrides the network's URL.
func New(params config.BackendParams, root string, timeout time.Duration) (*Client, error) {
	if root == "" {
		root = params.URL
	}
	if root == "" {
		return nil, fmt.Errorf("backend: no URL configured")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pools, err := lru.New[string, PoolInfo](metadataCacheSize)
	if err != nil {
		return nil, fmt.Errorf("backend: pool cache: %w", err)
	}
	tokens, err := lru.New[string, TokenInfo](metadataCacheSize)
	if err != nil {
		return nil, fmt.Errorf("backend: token cache: %w", err)
	}
	return &Client{
		root:   strings.TrimRight(root, "/"),
		http:   &http.Client{Timeout: timeout},
		limits: params,
		logger: log.Backend,
		pools:  pools,
		tokens: tokens,
	}, nil
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.logger = l
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Limits returns the per-request address limits.
func (c *Client) Limits() config.BackendParams {
	return c.limits
}

func (c *Client) post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), result)
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.root+"/"+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("path", path).Msg("API call")
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Info().Str("path", path).Err(err).Msg("API call failed")
		return &errs.NetworkError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.NetworkError{Op: path, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		quoted := string(data)
		if len(quoted) > maxErrorBody {
			quoted = quoted[:maxErrorBody]
		}
		c.logger.Info().Str("path", path).Int("status", resp.StatusCode).Msg("API call rejected")
		return &errs.APIError{Op: path, Status: resp.StatusCode, Body: strings.TrimSpace(quoted)}
	}
	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return errs.Wrap(fmt.Errorf("decode response: %w", err), path)
	}
	return nil
}

// chunk splits addrs into slices of at most size.
func chunk(addrs []string, size int) [][]string {
	if size <= 0 {
		size = len(addrs)
	}
	var out [][]string
	for len(addrs) > 0 {
		n := size
		if n > len(addrs) {
			n = len(addrs)
		}
		out = append(out, addrs[:n:n])
		addrs = addrs[n:]
	}
	return out
}

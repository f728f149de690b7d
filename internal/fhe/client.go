// Package fhe is the adapter to the FHE gateway: it fetches the network
// public key once per process, builds encrypted inputs with their proof, and
// re-encrypts ciphertext handles for an authorized viewer.
package fhe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/fheauction/internal/crypto"
	"github.com/alanyoungcy/fheauction/internal/domain"
)

// Authorization payload constants the gateway verifies.
const (
	AuthorizationName    = "Authorization token"
	AuthorizationVersion = "1"
)

// Config configures the gateway client.
type Config struct {
	GatewayURL     string
	ChainID        int64
	RequestTimeout time.Duration // zero disables the bound
	Auth           *crypto.GatewayAuth
}

// Client talks to the FHE gateway. It is safe for concurrent use; one
// Client is shared by every session in the process.
type Client struct {
	baseURL    string
	chainID    int64
	timeout    time.Duration
	httpClient *http.Client
	auth       *crypto.GatewayAuth
	logger     *slog.Logger

	init  singleflight.Group
	mu    sync.RWMutex
	key   *[32]byte // network public key, set once initialized
	ready chan struct{}
}

// New creates a gateway client. It does not contact the gateway; call
// EnsureInitialized (or any operation) to do so.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.GatewayURL, "/"),
		chainID:    cfg.ChainID,
		timeout:    cfg.RequestTimeout,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       cfg.Auth,
		logger:     logger.With(slog.String("component", "fhe")),
		ready:      make(chan struct{}),
	}
}

// EnsureInitialized fetches the network public key if it has not been
// fetched yet. Concurrent callers share one in-flight fetch; once it has
// succeeded, later calls return immediately. A failed fetch is not cached.
func (c *Client) EnsureInitialized(ctx context.Context) error {
	if c.IsReady() {
		return nil
	}

	ch := c.init.DoChan("init", func() (any, error) {
		if c.IsReady() {
			return nil, nil
		}
		// The shared fetch must not die with whichever caller started it.
		fetchCtx, cancel := c.withTimeout(context.WithoutCancel(ctx))
		defer cancel()

		key, err := c.fetchNetworkKey(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.key = key
		c.mu.Unlock()
		close(c.ready)
		c.logger.Info("fhe: gateway initialized", slog.String("gateway", c.baseURL))
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %w", domain.ErrNotInitialized, res.Err)
		}
		return nil
	}
}

// Ready returns a channel that is closed once the client is initialized.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// IsReady reports whether initialization has completed.
func (c *Client) IsReady() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func (c *Client) networkKey() *[32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

func (c *Client) fetchNetworkKey(ctx context.Context) (*[32]byte, error) {
	var resp keysResponse
	if err := c.doRequest(ctx, http.MethodGet, "/keys", nil, &resp); err != nil {
		return nil, fmt.Errorf("fhe: fetch network key: %w", err)
	}
	raw, err := hexutil.Decode(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("fhe: network key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("fhe: network key has %d bytes, want 32", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// doRequest sends a JSON request to the gateway and decodes the JSON reply
// into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(b)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth.Enabled() {
		for k, v := range c.auth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
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

var errUnauthorized = errors.New("gateway rejected credentials")

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", errUnauthorized, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

// Package device drives a remote desktop: screenshots and mouse clicks.
package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/screen-locator/pkg/processing"
	"github.com/menta2k/screen-locator/pkg/types"
)

// Device is the control surface the locator clicks through
type Device interface {
	TakeScreenshot(ctx context.Context) (image.Image, error)
	Click(ctx context.Context, x, y int, kind types.ClickKind, button types.MouseButton) error
}

// DefaultSettleDelay gives the UI time to react to each mouse action
const DefaultSettleDelay = 2 * time.Second

// AgentdClient talks to a desktop agent daemon over HTTP
type AgentdClient struct {
	baseURL     string
	httpClient  *http.Client
	settleDelay time.Duration
	processor   *processing.Processor
	logger      *zap.Logger
}

// Option configures an AgentdClient
type Option func(*AgentdClient)

// WithSettleDelay overrides the pause after each mouse action
func WithSettleDelay(d time.Duration) Option {
	return func(c *AgentdClient) { c.settleDelay = d }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *AgentdClient) { c.httpClient = hc }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *AgentdClient) { c.logger = l }
}

// NewAgentdClient creates a client for the daemon at baseURL
func NewAgentdClient(baseURL string, opts ...Option) (*AgentdClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("device URL is required")
	}
	c := &AgentdClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		settleDelay: DefaultSettleDelay,
		processor:   processing.NewProcessor(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type screenshotResponse struct {
	Images []string `json:"images"`
}

// TakeScreenshot fetches the current screen
func (c *AgentdClient) TakeScreenshot(ctx context.Context) (image.Image, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/screenshot", nil)
	if err != nil {
		return nil, err
	}

	var resp screenshotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse screenshot response: %w", err)
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("screenshot response has no images")
	}

	encoded := resp.Images[0]
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return c.processor.DecodeImage(data)
}

// Click moves the mouse to (x, y) and clicks. Each step waits for the
// settle delay before returning.
func (c *AgentdClient) Click(ctx context.Context, x, y int, kind types.ClickKind, button types.MouseButton) error {
	var endpoint string
	switch kind {
	case types.ClickSingle:
		endpoint = "/v1/click"
	case types.ClickDouble:
		endpoint = "/v1/double_click"
	default:
		return fmt.Errorf("unknown click kind %q", kind)
	}

	c.logger.Debug("moving mouse", zap.Int("x", x), zap.Int("y", y))
	if _, err := c.do(ctx, http.MethodPost, "/v1/move_mouse", map[string]int{"x": x, "y": y}); err != nil {
		return err
	}
	if err := c.settle(ctx); err != nil {
		return err
	}

	c.logger.Debug("clicking", zap.String("kind", string(kind)), zap.String("button", string(button)))
	if _, err := c.do(ctx, http.MethodPost, endpoint, map[string]string{"button": string(button)}); err != nil {
		return err
	}
	return c.settle(ctx)
}

func (c *AgentdClient) settle(ctx context.Context) error {
	if c.settleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(c.settleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *AgentdClient) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

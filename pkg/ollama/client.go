package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/screen-locator/pkg/client"
)

// DefaultTimeout bounds a chat call whose context has no deadline
const DefaultTimeout = 300 * time.Second

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	options map[string]any
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	return NewClientWithHTTP(ollamaURL, http.DefaultClient)
}

// NewClientWithHTTP creates a client on a custom HTTP client
func NewClientWithHTTP(ollamaURL string, httpClient *http.Client) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// Drop any path such as /api/chat; the SDK adds its own.
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, httpClient),
		// Marker selection wants the most likely answer, not a creative one
		options: map[string]any{"temperature": 0.0},
	}, nil
}

// Chat sends the conversation and returns the final message content
func (c *Client) Chat(ctx context.Context, model string, messages []client.Message, schema json.RawMessage) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	msgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		images := make([]api.ImageData, 0, len(m.Images))
		for _, img := range m.Images {
			images = append(images, api.ImageData(img))
		}
		msgs = append(msgs, api.Message{
			Role:    m.Role,
			Content: m.Content,
			Images:  images,
		})
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &streamFalse,
		Options:  c.options,
	}
	if len(schema) > 0 {
		req.Format = schema
	}

	var responseContent string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	if responseContent == "" {
		return "", fmt.Errorf("empty response from ollama")
	}

	return responseContent, nil
}

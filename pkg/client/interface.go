package client

import (
	"context"
	"encoding/json"
)

// Message is one turn of a vision conversation. Images are encoded bytes
// (PNG, JPEG or WebP).
type Message struct {
	Role    string
	Content string
	Images  [][]byte
}

// VisionClient sends a conversation to a vision model and returns the raw
// text of its reply. schema, when set, is the JSON schema the reply should
// follow; backends that support structured output pass it on.
type VisionClient interface {
	Chat(ctx context.Context, model string, messages []Message, schema json.RawMessage) (string, error)
}

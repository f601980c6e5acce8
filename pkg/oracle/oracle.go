// Package oracle asks a vision model which numbered marker is closest to a
// described screen element.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"text/template"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/menta2k/screen-locator/pkg/client"
	"github.com/menta2k/screen-locator/pkg/grid"
	"github.com/menta2k/screen-locator/pkg/processing"
)

// DefaultNamespace tags marker queries in logs
const DefaultNamespace = "zoom"

// Query is one marker question for a composited image
type Query struct {
	Description string
	Image       image.Image
	Sides       int
	MarkerColor string
	LabelColor  string
	Depth       int
	// Thread carries the conversation of a localization call across rounds.
	// A nil thread sends the question on its own.
	Thread *Thread
}

// Oracle answers marker queries. Failures are reported in the Selection,
// never as a panic or error return.
type Oracle interface {
	SelectMarker(ctx context.Context, q Query) Selection
}

// Thread is the running conversation of one localization call
type Thread struct {
	messages []client.Message
}

// Add appends a message
func (t *Thread) Add(m client.Message) {
	t.messages = append(t.messages, m)
}

// Messages returns a copy of the conversation
func (t *Thread) Messages() []client.Message {
	out := make([]client.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages
func (t *Thread) Len() int { return len(t.messages) }

// Config controls how the vision oracle talks to its model
type Config struct {
	Model       string
	Namespace   string
	Retries     int
	RetryDelay  time.Duration
	ImageFormat string
}

// DefaultConfig retries once, as marker queries are cheap to fall back from
func DefaultConfig() Config {
	return Config{
		Namespace:   DefaultNamespace,
		Retries:     1,
		RetryDelay:  500 * time.Millisecond,
		ImageFormat: processing.FormatPNG,
	}
}

// VisionOracle is an Oracle backed by a vision model client
type VisionOracle struct {
	client    client.VisionClient
	config    Config
	processor *processing.Processor
	logger    *zap.Logger
}

// New creates a VisionOracle
func New(c client.VisionClient, config Config, logger *zap.Logger) *VisionOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	return &VisionOracle{
		client:    c,
		config:    config,
		processor: processing.NewProcessor(),
		logger:    logger.With(zap.String("namespace", config.Namespace), zap.String("model", config.Model)),
	}
}

// SelectMarker sends the composited image with the marker prompt and parses
// the reply. Transport and parse failures are retried within the configured
// budget and then reported as a failed Selection.
func (o *VisionOracle) SelectMarker(ctx context.Context, q Query) Selection {
	data, err := o.processor.EncodeBytes(q.Image, o.config.ImageFormat)
	if err != nil {
		return Failed(err, "")
	}
	prompt, err := BuildPrompt(q)
	if err != nil {
		return Failed(err, "")
	}

	thread := q.Thread
	if thread == nil {
		thread = &Thread{}
	}
	thread.Add(client.Message{Role: "user", Content: prompt, Images: [][]byte{data}})

	schema := SelectionSchema(q.Sides)
	var raw string
	var number int
	err = retry.Do(
		func() error {
			reply, err := o.client.Chat(ctx, o.config.Model, thread.Messages(), schema)
			if err != nil {
				return err
			}
			raw = reply
			number, err = ParseSelection(reply, q.Sides)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(o.config.Retries+1)),
		retry.Delay(o.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Info("retrying marker query", zap.Uint("attempt", n+1), zap.Int("depth", q.Depth), zap.Error(err))
		}),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("marker query interrupted: %w", err)
		}
		o.logger.Info("marker query failed", zap.Int("depth", q.Depth), zap.String("raw", raw), zap.Error(err))
		return Failed(err, raw)
	}

	o.logger.Info("marker selected", zap.Int("depth", q.Depth), zap.Int("number", number))
	return Selected(number, raw)
}

var promptTemplate = template.Must(template.New("zoom").Parse(`You are an experienced AI trained to find the elements on the screen.
You see a screenshot of the web application.
I have drawn some big {{.LabelColor}} numbers on {{.MarkerColor}} circles on this image
to help you to find required elements.
Please tell me the closest big {{.LabelColor}} number on a {{.MarkerColor}} circle to the center of the {{.Description}}.
Please note that some circles may lay on the {{.Description}}. If that's the case, return the number in any of these circles.
The circles are numbered from 1 to {{.Count}}.
Please return your response as raw JSON following the schema {{.Schema}}
Be concise and only return the raw json, for example if the circle you wanted to select had a number 3 in it
you would return {"number": 3}
`))

// BuildPrompt renders the marker question for q
func BuildPrompt(q Query) (string, error) {
	var sb strings.Builder
	err := promptTemplate.Execute(&sb, map[string]any{
		"Description": q.Description,
		"MarkerColor": q.MarkerColor,
		"LabelColor":  q.LabelColor,
		"Count":       grid.MarkerCount(q.Sides),
		"Schema":      string(SelectionSchema(q.Sides)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return sb.String(), nil
}

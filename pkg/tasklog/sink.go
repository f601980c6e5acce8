// Package tasklog is the append-only message channel of a task. The
// locator posts its intermediate images to the "debug" thread so a human
// can audit why a click landed where it did.
package tasklog

import (
	"context"
	"image"
	"sync"

	"go.uber.org/zap"
)

// DebugThread is the sub-thread for localization artifacts
const DebugThread = "debug"

// Message is one entry of a task's message log
type Message struct {
	TaskID string
	Role   string
	Text   string
	Thread string
	Images []image.Image
}

// Sink accepts task messages. Posting never blocks on a reply.
type Sink interface {
	PostMessage(ctx context.Context, msg Message)
}

// LogSink writes messages to a zap logger. Images are summarized, not logged.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink on logger
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// PostMessage logs the message
func (s *LogSink) PostMessage(_ context.Context, msg Message) {
	s.logger.Info(msg.Text,
		zap.String("task_id", msg.TaskID),
		zap.String("role", msg.Role),
		zap.String("thread", msg.Thread),
		zap.Int("images", len(msg.Images)),
	)
}

// MemorySink keeps every message in memory
type MemorySink struct {
	mu       sync.Mutex
	messages []Message
}

// NewMemorySink creates an empty MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// PostMessage records the message
func (s *MemorySink) PostMessage(_ context.Context, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns the recorded messages, optionally filtered by thread
func (s *MemorySink) Messages(thread string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		if thread == "" || m.Thread == thread {
			out = append(out, m)
		}
	}
	return out
}

// MultiSink fans a message out to several sinks
type MultiSink []Sink

// PostMessage forwards msg to every sink
func (m MultiSink) PostMessage(ctx context.Context, msg Message) {
	for _, s := range m {
		if s != nil {
			s.PostMessage(ctx, msg)
		}
	}
}

// Nop discards messages
type Nop struct{}

// PostMessage does nothing
func (Nop) PostMessage(context.Context, Message) {}

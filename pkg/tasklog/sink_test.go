package tasklog

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemorySinkFilters(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	s.PostMessage(ctx, Message{Role: "assistant", Text: "hello"})
	s.PostMessage(ctx, Message{Role: "assistant", Text: "zooming", Thread: DebugThread})

	assert.Len(t, s.Messages(""), 2)
	debug := s.Messages(DebugThread)
	require.Len(t, debug, 1)
	assert.Equal(t, "zooming", debug[0].Text)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSink(zap.New(core))

	s.PostMessage(context.Background(), Message{
		TaskID: "t1",
		Role:   "assistant",
		Text:   "Merge image for depth 0",
		Thread: DebugThread,
		Images: []image.Image{image.NewNRGBA(image.Rect(0, 0, 1, 1))},
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Merge image for depth 0", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "t1", fields["task_id"])
	assert.Equal(t, int64(1), fields["images"])
}

func TestMultiSink(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	MultiSink{a, nil, b, Nop{}}.PostMessage(context.Background(), Message{Text: "x"})

	assert.Len(t, a.Messages(""), 1)
	assert.Len(t, b.Messages(""), 1)
}

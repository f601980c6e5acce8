package device

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/screen-locator/pkg/processing"
	"github.com/menta2k/screen-locator/pkg/types"
)

type recordedCall struct {
	Path string
	Body map[string]any
}

type fakeAgentd struct {
	mu     sync.Mutex
	calls  []recordedCall
	status int
	shot   []byte
}

func (f *fakeAgentd) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := recordedCall{Path: r.URL.Path}
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
	}
	f.calls = append(f.calls, call)

	if f.status != 0 {
		http.Error(w, "device busy", f.status)
		return
	}
	if r.URL.Path == "/v1/screenshot" {
		_ = json.NewEncoder(w).Encode(map[string]any{"images": []string{base64.StdEncoding.EncodeToString(f.shot)}})
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func newTestClient(t *testing.T, f *fakeAgentd) *AgentdClient {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := NewAgentdClient(srv.URL+"/", WithSettleDelay(0))
	require.NoError(t, err)
	return c
}

func TestClickSingle(t *testing.T) {
	f := &fakeAgentd{}
	c := newTestClient(t, f)

	require.NoError(t, c.Click(context.Background(), 796, 6, types.ClickSingle, types.ButtonLeft))

	require.Len(t, f.calls, 2)
	assert.Equal(t, "/v1/move_mouse", f.calls[0].Path)
	assert.Equal(t, map[string]any{"x": float64(796), "y": float64(6)}, f.calls[0].Body)
	assert.Equal(t, "/v1/click", f.calls[1].Path)
	assert.Equal(t, map[string]any{"button": "left"}, f.calls[1].Body)
}

func TestClickDoubleRight(t *testing.T) {
	f := &fakeAgentd{}
	c := newTestClient(t, f)

	require.NoError(t, c.Click(context.Background(), 1, 2, types.ClickDouble, types.ButtonRight))

	require.Len(t, f.calls, 2)
	assert.Equal(t, "/v1/double_click", f.calls[1].Path)
	assert.Equal(t, map[string]any{"button": "right"}, f.calls[1].Body)
}

func TestClickUnknownKind(t *testing.T) {
	f := &fakeAgentd{}
	c := newTestClient(t, f)

	assert.Error(t, c.Click(context.Background(), 1, 2, types.ClickKind("triple"), types.ButtonLeft))
	assert.Empty(t, f.calls)
}

func TestClickTransportError(t *testing.T) {
	f := &fakeAgentd{status: http.StatusBadGateway}
	c := newTestClient(t, f)

	err := c.Click(context.Background(), 1, 2, types.ClickSingle, types.ButtonLeft)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Len(t, f.calls, 1)
}

func TestTakeScreenshot(t *testing.T) {
	shot, err := processing.NewProcessor().EncodeBytes(image.NewNRGBA(image.Rect(0, 0, 120, 80)), processing.FormatPNG)
	require.NoError(t, err)

	f := &fakeAgentd{shot: shot}
	c := newTestClient(t, f)

	img, err := c.TakeScreenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())
}

func TestNewAgentdClientRequiresURL(t *testing.T) {
	_, err := NewAgentdClient("")
	assert.Error(t, err)
}

package locator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/screen-locator/pkg/artifacts"
	"github.com/menta2k/screen-locator/pkg/oracle"
	"github.com/menta2k/screen-locator/pkg/tasklog"
	"github.com/menta2k/screen-locator/pkg/types"
)

// fakeOracle answers every round from a per-depth script
type fakeOracle struct {
	mu      sync.Mutex
	answers map[int]oracle.Selection
	def     oracle.Selection
	queries []oracle.Query
}

func (o *fakeOracle) SelectMarker(_ context.Context, q oracle.Query) oracle.Selection {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries = append(o.queries, q)
	if sel, ok := o.answers[q.Depth]; ok {
		return sel
	}
	return o.def
}

type click struct {
	x, y   int
	kind   types.ClickKind
	button types.MouseButton
}

type fakeDevice struct {
	screen        image.Image
	screenshotErr error
	clickErr      error
	screenshots   int
	clicks        []click
}

func (d *fakeDevice) TakeScreenshot(context.Context) (image.Image, error) {
	d.screenshots++
	if d.screenshotErr != nil {
		return nil, d.screenshotErr
	}
	return d.screen, nil
}

func (d *fakeDevice) Click(_ context.Context, x, y int, kind types.ClickKind, button types.MouseButton) error {
	if d.clickErr != nil {
		return d.clickErr
	}
	d.clicks = append(d.clicks, click{x, y, kind, button})
	return nil
}

func testScreen(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), uint8(x + y), 255})
		}
	}
	return img
}

type harness struct {
	locator *Locator
	oracle  *fakeOracle
	device  *fakeDevice
	sink    *tasklog.MemorySink
	store   *artifacts.FileStore
	root    string
}

func newHarness(t *testing.T, o *fakeOracle) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		oracle: o,
		device: &fakeDevice{screen: testScreen(1200, 800)},
		sink:   tasklog.NewMemorySink(),
		store:  artifacts.NewFileStore(root, "png", nil),
		root:   root,
	}
	l, err := New(DefaultConfig(), Dependencies{
		Oracle: h.oracle,
		Device: h.device,
		Sink:   h.sink,
		Store:  h.store,
	})
	require.NoError(t, err)
	h.locator = l
	return h
}

func always(n int) *fakeOracle {
	return &fakeOracle{def: oracle.Selected(n, "")}
}

func texts(msgs []tasklog.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestClickObjectThreeRounds(t *testing.T) {
	h := newHarness(t, always(29))

	res, err := h.locator.ClickObject(context.Background(), ClickRequest{
		TaskID:      "task-1",
		Description: "the close button",
		Kind:        types.ClickSingle,
	})
	require.NoError(t, err)

	wantCrops := []types.Box{
		types.NewBox(600, 0, 900, 200),
		types.NewBox(448, 0, 672, 150),
		types.NewBox(336, 0, 504, 112),
	}
	require.Len(t, res.Rounds, 3)
	for k, r := range res.Rounds {
		assert.Equal(t, k, r.Depth)
		assert.Equal(t, 29, r.Marker)
		assert.False(t, r.Fallback)
		assert.Equal(t, wantCrops[k], r.Crop, "round %d", k)
	}

	last := res.Boxes[len(res.Boxes)-1]
	assert.InDelta(t, 786.667, last.X0, 1e-3)
	assert.InDelta(t, 0, last.Y0, 1e-9)
	assert.InDelta(t, 805.333, last.X1, 1e-3)
	assert.InDelta(t, 12.444, last.Y1, 1e-3)

	assert.Equal(t, types.Point{X: 796, Y: 6}, res.Point)
	assert.Equal(t, 27, res.Upscale)
	assert.Equal(t, 1, h.device.screenshots)
	require.Len(t, h.device.clicks, 1)
	assert.Equal(t, click{796, 6, types.ClickSingle, types.ButtonLeft}, h.device.clicks[0])

	// three images per round plus the final debug image
	files, err := filepath.Glob(filepath.Join(h.store.Dir("task-1"), "*.png"))
	require.NoError(t, err)
	assert.Len(t, files, 10)
	hash := artifacts.DescriptionHash("the close button")
	assert.FileExists(t, h.store.Path("task-1", hash, artifacts.StageMerge, 2))
	assert.FileExists(t, filepath.Join(h.store.Dir("task-1"), hash+"_debug.png"))

	posted := texts(h.sink.Messages(tasklog.DebugThread))
	assert.Contains(t, posted, "Clicking 'single' on object 'the close button'")
	assert.Contains(t, posted, "Zooming into image with depth 0")
	assert.Contains(t, posted, `Selection {"number":29}`)
	assert.Contains(t, posted, "Clicking coordinates 796, 6")
	assert.Contains(t, posted, "Final debug img")
}

func TestLocateBoxesNest(t *testing.T) {
	h := newHarness(t, always(29))

	res, err := h.locator.Locate(context.Background(), "task-1", testScreen(1200, 800), "anything")
	require.NoError(t, err)

	require.Len(t, res.Boxes, 4)
	for k := 1; k < len(res.Boxes); k++ {
		assert.True(t, res.Boxes[k-1].Contains(res.Boxes[k]), "box %d escapes its parent", k)
		assert.Less(t, res.Boxes[k].Width(), res.Boxes[k-1].Width())
	}
	assert.Empty(t, h.device.clicks)
}

func TestLocateDeterministic(t *testing.T) {
	screen := testScreen(1200, 800)
	h := newHarness(t, always(12))

	first, err := h.locator.Locate(context.Background(), "run-a", screen, "menu")
	require.NoError(t, err)
	second, err := h.locator.Locate(context.Background(), "run-b", screen, "menu")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	hash := artifacts.DescriptionHash("menu")
	for depth := 0; depth < 3; depth++ {
		a, err := os.ReadFile(h.store.Path("run-a", hash, artifacts.StageMerge, depth))
		require.NoError(t, err)
		b, err := os.ReadFile(h.store.Path("run-b", hash, artifacts.StageMerge, depth))
		require.NoError(t, err)
		assert.Equal(t, a, b, "merge image at depth %d differs", depth)
	}
}

func TestClickObjectFallsBackOnOracleFailure(t *testing.T) {
	o := &fakeOracle{
		def:     oracle.Selected(29, ""),
		answers: map[int]oracle.Selection{1: oracle.Failed(errors.New("model said hello"), "hello")},
	}
	h := newHarness(t, o)

	res, err := h.locator.ClickObject(context.Background(), ClickRequest{
		TaskID:      "task-2",
		Description: "the close button",
		Kind:        types.ClickDouble,
		Button:      types.ButtonRight,
	})
	require.NoError(t, err)

	require.Len(t, res.Rounds, 3)
	assert.False(t, res.Rounds[0].Fallback)
	assert.True(t, res.Rounds[1].Fallback)
	assert.Equal(t, 25, res.Rounds[1].Marker)
	assert.False(t, res.Rounds[2].Fallback)
	assert.Len(t, o.queries, 3)

	// marker 25 of an 8-grid is the exact center of the 900×600 view
	assert.Equal(t, types.NewBox(336, 225, 560, 375), res.Rounds[1].Crop)

	require.Len(t, h.device.clicks, 1)
	assert.Equal(t, click{res.Point.X, res.Point.Y, types.ClickDouble, types.ButtonRight}, h.device.clicks[0])
	assert.Contains(t, texts(h.sink.Messages(tasklog.DebugThread)), "Failed to analyze. Fall back to #25")
}

func TestOutOfRangeSelectionFallsBack(t *testing.T) {
	h := newHarness(t, always(50))

	res, err := h.locator.Locate(context.Background(), "task-3", testScreen(1200, 800), "x")
	require.NoError(t, err)
	for _, r := range res.Rounds {
		assert.True(t, r.Fallback)
		assert.Equal(t, 25, r.Marker)
	}
	// repeated center zooms converge on the screenshot center
	assert.InDelta(t, 600, float64(res.Point.X), 2)
	assert.InDelta(t, 400, float64(res.Point.Y), 2)
}

func TestClickObjectRejectsUnknownKind(t *testing.T) {
	h := newHarness(t, always(29))

	_, err := h.locator.ClickObject(context.Background(), ClickRequest{
		TaskID:      "task-4",
		Description: "the close button",
		Kind:        "triple",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Zero(t, h.device.screenshots)
	assert.Empty(t, h.device.clicks)
	assert.Empty(t, h.oracle.queries)
	_, statErr := os.Stat(filepath.Join(h.root, "images"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestClickObjectRejectsUnknownButton(t *testing.T) {
	h := newHarness(t, always(29))

	_, err := h.locator.ClickObject(context.Background(), ClickRequest{
		Description: "the close button",
		Kind:        types.ClickSingle,
		Button:      "thumb",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, h.device.screenshots)
}

func TestClickObjectDeviceFailures(t *testing.T) {
	t.Run("screenshot", func(t *testing.T) {
		h := newHarness(t, always(29))
		h.device.screenshotErr = errors.New("connection refused")

		_, err := h.locator.ClickObject(context.Background(), ClickRequest{Description: "x", Kind: types.ClickSingle})
		assert.ErrorIs(t, err, ErrDeviceFailure)
		assert.Empty(t, h.oracle.queries)
	})

	t.Run("click", func(t *testing.T) {
		h := newHarness(t, always(29))
		h.device.clickErr = errors.New("agent went away")

		res, err := h.locator.ClickObject(context.Background(), ClickRequest{Description: "x", Kind: types.ClickSingle})
		assert.ErrorIs(t, err, ErrDeviceFailure)
		assert.True(t, strings.Contains(err.Error(), "agent went away"))
		assert.Equal(t, types.Point{X: 796, Y: 6}, res.Point)
	})
}

func TestLocateRejectsTinyScreenshot(t *testing.T) {
	h := newHarness(t, always(1))

	_, err := h.locator.Locate(context.Background(), "t", testScreen(5, 5), "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, h.oracle.queries)
}

func TestLocateStopsOnCancel(t *testing.T) {
	h := newHarness(t, always(29))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.locator.Locate(ctx, "t", testScreen(1200, 800), "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.oracle.queries)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sides", func(c *Config) { c.Sides = 2 }},
		{"upscale", func(c *Config) { c.Upscale = 0 }},
		{"depth", func(c *Config) { c.MaxDepth = 0 }},
		{"opacity", func(c *Config) { c.Opacity = 1.5 }},
		{"marker color", func(c *Config) { c.MarkerColor = "notacolor" }},
		{"label color", func(c *Config) { c.LabelColor = "#12" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPointIsRoundedCenter(t *testing.T) {
	h := newHarness(t, always(29))
	res, err := h.locator.Locate(context.Background(), "t", testScreen(1200, 800), "x")
	require.NoError(t, err)

	cx, cy := res.Boxes[len(res.Boxes)-1].Center()
	assert.Equal(t, int(math.Round(cx)), res.Point.X)
	assert.Equal(t, int(math.Round(cy)), res.Point.Y)
}

// Package screenlocator finds on-screen elements from a natural-language
// description and clicks them.
//
// A screenshot is overlaid with an n×n grid of numbered markers and sent to
// a vision model, which answers with the marker closest to the target. The
// 2×2-cell neighborhood of that marker is cropped, enlarged and gridded
// again. After a fixed number of rounds the center of the last region,
// mapped back to screenshot coordinates, is the click point.
//
// Basic usage:
//
//	sl, err := screenlocator.New(screenlocator.DefaultOptions(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	img, err := sl.LoadImage("screen.png")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := sl.Locate(ctx, "", img, "the blue Save button")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("click at %d,%d\n", res.Point.X, res.Point.Y)
//
// The package wires together:
//
//   - pkg/grid: numbered marker overlays
//   - pkg/compositor and pkg/zoom: per-round image work
//   - pkg/oracle with pkg/ollama or pkg/llamacpp: the vision model
//   - pkg/device: screenshots and clicks through the desktop agent
//   - pkg/locator and pkg/action: the refinement loop and click retries
package screenlocator

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/screen-locator/pkg/action"
	"github.com/menta2k/screen-locator/pkg/artifacts"
	"github.com/menta2k/screen-locator/pkg/client"
	"github.com/menta2k/screen-locator/pkg/compositor"
	"github.com/menta2k/screen-locator/pkg/device"
	"github.com/menta2k/screen-locator/pkg/grid"
	"github.com/menta2k/screen-locator/pkg/llamacpp"
	"github.com/menta2k/screen-locator/pkg/locator"
	"github.com/menta2k/screen-locator/pkg/ollama"
	"github.com/menta2k/screen-locator/pkg/oracle"
	"github.com/menta2k/screen-locator/pkg/processing"
	"github.com/menta2k/screen-locator/pkg/tasklog"
	"github.com/menta2k/screen-locator/pkg/types"
)

// Version of the screen locator library
const Version = "1.0.0"

// Options assembles a ScreenLocator
type Options struct {
	Locator locator.Config
	Oracle  oracle.Config
	// Backend is "ollama" or "llamacpp"
	Backend   string
	OracleURL string
	// DeviceURL may be empty for offline use; Click then fails
	DeviceURL   string
	SettleDelay time.Duration
	// ArtifactsDir may be empty to keep no intermediate images
	ArtifactsDir    string
	ArtifactsFormat string
	Action          action.Config
}

// DefaultOptions targets a local Ollama and desktop agent
func DefaultOptions() Options {
	oc := oracle.DefaultConfig()
	oc.Model = "qwen2.5vl:7b"
	return Options{
		Locator:         locator.DefaultConfig(),
		Oracle:          oc,
		Backend:         "ollama",
		OracleURL:       "http://localhost:11434",
		DeviceURL:       "http://localhost:8000",
		SettleDelay:     device.DefaultSettleDelay,
		ArtifactsFormat: processing.FormatPNG,
		Action:          action.DefaultConfig(),
	}
}

// ScreenLocator provides a high-level interface for locating and clicking
type ScreenLocator struct {
	locator   *locator.Locator
	executor  *action.Executor
	device    device.Device
	processor *processing.Processor
	grid      *grid.Renderer
	opacity   float64
	sides     int
	logger    *zap.Logger
}

// NewVisionClient creates the model client for backend
func NewVisionClient(backend, url string) (client.VisionClient, error) {
	switch backend {
	case "ollama":
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", backend)
}

// New creates a ScreenLocator from options
func New(opts Options, logger *zap.Logger) (*ScreenLocator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	vc, err := NewVisionClient(opts.Backend, opts.OracleURL)
	if err != nil {
		return nil, err
	}

	var dev device.Device
	if opts.DeviceURL != "" {
		d, err := device.NewAgentdClient(opts.DeviceURL,
			device.WithSettleDelay(opts.SettleDelay),
			device.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create device client: %w", err)
		}
		dev = d
	}

	processor := processing.NewProcessor()
	var store artifacts.Store = artifacts.Discard{}
	if opts.ArtifactsDir != "" {
		store = artifacts.NewFileStore(opts.ArtifactsDir, opts.ArtifactsFormat, processor)
	}
	sink := tasklog.NewLogSink(logger)

	loc, err := locator.New(opts.Locator, locator.Dependencies{
		Oracle: oracle.New(vc, opts.Oracle, logger),
		Device: dev,
		Sink:   sink,
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &ScreenLocator{
		locator:   loc,
		executor:  action.NewExecutorWithConfig(loc, opts.Action, sink, logger),
		device:    dev,
		processor: processor,
		grid: grid.NewWithConfig(grid.Config{
			MarkerColor: grid.MustParseColor(opts.Locator.MarkerColor),
			LabelColor:  grid.MustParseColor(opts.Locator.LabelColor),
			MinFontSize: opts.Locator.MinFontSize,
		}),
		opacity: opts.Locator.Opacity,
		sides:   opts.Locator.Sides,
		logger:  logger,
	}, nil
}

// LoadImage loads a screenshot from file
func (sl *ScreenLocator) LoadImage(path string) (image.Image, error) {
	return sl.processor.LoadImage(path)
}

// SaveImage saves an image, picking the encoding from format
func (sl *ScreenLocator) SaveImage(img image.Image, path, format string) error {
	return sl.processor.SaveImage(img, path, format)
}

// Locate finds description on img without clicking. An empty taskID gets a
// fresh one.
func (sl *ScreenLocator) Locate(ctx context.Context, taskID string, img image.Image, description string) (locator.Result, error) {
	return sl.locator.Locate(ctx, NewTaskID(taskID), img, description)
}

// Click screenshots the device, locates description and clicks it,
// retrying transient failures.
func (sl *ScreenLocator) Click(ctx context.Context, taskID, description string, kind types.ClickKind, button types.MouseButton) (locator.Result, error) {
	return sl.executor.Click(ctx, locator.ClickRequest{
		TaskID:      NewTaskID(taskID),
		Description: description,
		Kind:        kind,
		Button:      button,
	})
}

// Screenshot captures the device screen
func (sl *ScreenLocator) Screenshot(ctx context.Context) (image.Image, error) {
	if sl.device == nil {
		return nil, fmt.Errorf("no device configured")
	}
	return sl.device.TakeScreenshot(ctx)
}

// RenderGrid returns img in grayscale with the numbered marker grid drawn
// over it, as the model sees it in the first round.
func (sl *ScreenLocator) RenderGrid(img image.Image, sides int) (image.Image, error) {
	if sides == 0 {
		sides = sl.sides
	}
	b := img.Bounds()
	overlay, err := sl.grid.Render(b.Dx(), b.Dy(), sides)
	if err != nil {
		return nil, err
	}
	return compositor.Superimpose(img, overlay, sl.opacity)
}

// DebugOverlay draws the boxes of a result and its click point onto img
func (sl *ScreenLocator) DebugOverlay(img image.Image, res locator.Result) image.Image {
	return sl.processor.CreateDebugOverlay(img, res.Boxes, res.Point)
}

// NewTaskID returns id, or a random UUID when id is empty
func NewTaskID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

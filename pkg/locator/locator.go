// Package locator resolves a natural-language description of a screen
// element to a pixel coordinate by repeatedly overlaying a numbered grid,
// asking a vision oracle for the closest marker and zooming in around it.
//
// Each round runs RENDER → ASK → DECODE → CROP. The number of rounds is
// fixed by Config.MaxDepth; there is no early exit, so latency is
// predictable. The final click point is the center of the last absolute box.
package locator

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/screen-locator/pkg/artifacts"
	"github.com/menta2k/screen-locator/pkg/compositor"
	"github.com/menta2k/screen-locator/pkg/device"
	"github.com/menta2k/screen-locator/pkg/grid"
	"github.com/menta2k/screen-locator/pkg/oracle"
	"github.com/menta2k/screen-locator/pkg/processing"
	"github.com/menta2k/screen-locator/pkg/tasklog"
	"github.com/menta2k/screen-locator/pkg/types"
	"github.com/menta2k/screen-locator/pkg/zoom"
)

var (
	// ErrInvalidArgument rejects a request before any image work starts
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDeviceFailure wraps screenshot and click transport errors
	ErrDeviceFailure = errors.New("device action failed")
)

// Dependencies are the collaborators of a Locator. Sink, Store and Logger
// are optional.
type Dependencies struct {
	Oracle oracle.Oracle
	Device device.Device
	Sink   tasklog.Sink
	Store  artifacts.Store
	Logger *zap.Logger
}

// Locator runs localization calls. It holds no per-call state and is safe
// for concurrent use when its collaborators are.
type Locator struct {
	config      Config
	renderer    *grid.Renderer
	markerColor string
	labelColor  string
	oracle      oracle.Oracle
	device      device.Device
	sink        tasklog.Sink
	store       artifacts.Store
	processor   *processing.Processor
	logger      *zap.Logger
}

// New creates a Locator
func New(config Config, deps Dependencies) (*Locator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid locator config: %w", err)
	}
	if deps.Oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if deps.Sink == nil {
		deps.Sink = tasklog.Nop{}
	}
	if deps.Store == nil {
		deps.Store = artifacts.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Locator{
		config: config,
		renderer: grid.NewWithConfig(grid.Config{
			MarkerColor: grid.MustParseColor(config.MarkerColor),
			LabelColor:  grid.MustParseColor(config.LabelColor),
			MinFontSize: config.MinFontSize,
		}),
		markerColor: config.MarkerColor,
		labelColor:  config.LabelColor,
		oracle:      deps.Oracle,
		device:      deps.Device,
		sink:        deps.Sink,
		store:       deps.Store,
		processor:   processing.NewProcessor(),
		logger:      deps.Logger,
	}, nil
}

// Round records one refinement step
type Round struct {
	Depth    int       `json:"depth"`
	Marker   int       `json:"marker"`
	Fallback bool      `json:"fallback"`
	Crop     types.Box `json:"crop"`
	Absolute types.Box `json:"absolute"`
}

// Result is the outcome of a localization call
type Result struct {
	Point           types.Point `json:"point"`
	Boxes           []types.Box `json:"boxes"`
	Rounds          []Round     `json:"rounds"`
	Upscale         int         `json:"upscale"`
	DescriptionHash string      `json:"description_hash"`
}

// zoomState is the mutable state of one call
type zoomState struct {
	current image.Image
	last    types.Box
	upscale int
}

// Locate resolves description to a point in the frame of screenshot. It
// does not click.
func (l *Locator) Locate(ctx context.Context, taskID string, screenshot image.Image, description string) (Result, error) {
	if description == "" {
		return Result{}, fmt.Errorf("%w: description is empty", ErrInvalidArgument)
	}
	b := screenshot.Bounds()
	if err := grid.CheckSides(b.Dx(), b.Dy(), l.config.Sides); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	hash := artifacts.DescriptionHash(description)
	log := l.logger.With(zap.String("task_id", taskID), zap.String("description_hash", hash))

	state := zoomState{
		current: screenshot,
		last:    types.NewBox(0, 0, b.Dx(), b.Dy()),
		upscale: 1,
	}
	result := Result{
		Boxes:           []types.Box{state.last},
		DescriptionHash: hash,
	}
	thread := &oracle.Thread{}

	for depth := 0; depth < l.config.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		log.Info("zoom depth", zap.Int("depth", depth))

		merged, err := l.render(ctx, taskID, hash, depth, state.current)
		if err != nil {
			return Result{}, err
		}

		sel := l.oracle.SelectMarker(ctx, oracle.Query{
			Description: description,
			Image:       merged,
			Sides:       l.config.Sides,
			MarkerColor: l.markerColor,
			LabelColor:  l.labelColor,
			Depth:       depth,
			Thread:      thread,
		})
		marker, fallback := l.decode(ctx, taskID, depth, sel)

		z, err := zoom.ZoomIn(state.current, l.config.Sides, marker, l.config.Upscale)
		if err != nil {
			return Result{}, fmt.Errorf("zoom at depth %d: %w", depth, err)
		}
		abs := z.Crop.ToAbsolute(state.last, float64(state.upscale))

		result.Rounds = append(result.Rounds, Round{
			Depth:    depth,
			Marker:   marker,
			Fallback: fallback,
			Crop:     z.Crop,
			Absolute: abs,
		})
		result.Boxes = append(result.Boxes, abs)

		state = zoomState{
			current: z.Image,
			last:    abs,
			upscale: state.upscale * l.config.Upscale,
		}
	}

	result.Point = state.last.Point()
	result.Upscale = state.upscale
	log.Info("resolved click point", zap.Int("x", result.Point.X), zap.Int("y", result.Point.Y))

	dbg := l.processor.CreateDebugOverlay(screenshot, result.Boxes, result.Point)
	l.save(log, func() (string, error) { return l.store.SaveDebug(taskID, hash, dbg) })
	l.post(ctx, taskID, "Final debug img", dbg)

	return result, nil
}

// render saves the current view, draws the grid over it and returns the
// composited image sent to the oracle.
func (l *Locator) render(ctx context.Context, taskID, hash string, depth int, current image.Image) (image.Image, error) {
	log := l.logger.With(zap.String("task_id", taskID), zap.Int("depth", depth))
	b := current.Bounds()

	l.save(log, func() (string, error) {
		return l.store.Save(taskID, hash, artifacts.StageCurrent, depth, current)
	})
	l.post(ctx, taskID, fmt.Sprintf("Zooming into image with depth %d", depth), current)

	overlay, err := l.renderer.Render(b.Dx(), b.Dy(), l.config.Sides)
	if err != nil {
		return nil, fmt.Errorf("%w: render grid at depth %d: %v", ErrInvalidArgument, depth, err)
	}
	l.save(log, func() (string, error) {
		return l.store.Save(taskID, hash, artifacts.StageGrid, depth, overlay)
	})

	merged, err := compositor.Superimpose(current, overlay, l.config.Opacity)
	if err != nil {
		return nil, fmt.Errorf("merge at depth %d: %w", depth, err)
	}
	l.save(log, func() (string, error) {
		return l.store.Save(taskID, hash, artifacts.StageMerge, depth, merged)
	})
	l.post(ctx, taskID, fmt.Sprintf("Merge image for depth %d", depth), merged)

	return merged, nil
}

// decode turns an oracle selection into a marker, falling back to the
// center marker when the oracle gave no usable answer.
func (l *Locator) decode(ctx context.Context, taskID string, depth int, sel oracle.Selection) (int, bool) {
	n := l.config.Sides
	if sel.OK && grid.ValidIndex(sel.Number, n) {
		l.post(ctx, taskID, fmt.Sprintf(`Selection {"number":%d}`, sel.Number))
		return sel.Number, false
	}

	reason := sel.Err
	if reason == nil {
		reason = fmt.Errorf("marker %d out of range", sel.Number)
	}
	marker := grid.FallbackIndex(n)
	l.logger.Info("error in analyzing zoom",
		zap.String("task_id", taskID),
		zap.Int("depth", depth),
		zap.Int("fallback", marker),
		zap.Error(reason),
	)
	l.post(ctx, taskID, fmt.Sprintf("Failed to analyze. Fall back to #%d", marker))
	return marker, true
}

// ClickRequest asks for a click on the element matching Description
type ClickRequest struct {
	TaskID      string
	Description string
	Kind        types.ClickKind
	Button      types.MouseButton
}

// ClickObject takes a screenshot, locates the described element and clicks
// it. Unsupported click kinds or buttons fail before any screenshot is
// taken or artifact written.
func (l *Locator) ClickObject(ctx context.Context, req ClickRequest) (Result, error) {
	kind, err := types.ParseClickKind(string(req.Kind))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	button, err := types.ParseMouseButton(string(req.Button))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if req.Description == "" {
		return Result{}, fmt.Errorf("%w: description is empty", ErrInvalidArgument)
	}
	if l.device == nil {
		return Result{}, fmt.Errorf("%w: no device configured", ErrInvalidArgument)
	}

	l.logger.Debug("clicking object", zap.String("task_id", req.TaskID), zap.String("description", req.Description))

	screenshot, err := l.device.TakeScreenshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: take screenshot: %w", ErrDeviceFailure, err)
	}
	l.post(ctx, req.TaskID, fmt.Sprintf("Clicking '%s' on object '%s'", kind, req.Description), screenshot)

	result, err := l.Locate(ctx, req.TaskID, screenshot, req.Description)
	if err != nil {
		return Result{}, err
	}

	p := result.Point
	l.logger.Info("clicking exact coords", zap.String("task_id", req.TaskID), zap.Int("x", p.X), zap.Int("y", p.Y))
	l.post(ctx, req.TaskID, fmt.Sprintf("Clicking coordinates %d, %d", p.X, p.Y))

	if err := l.device.Click(ctx, p.X, p.Y, kind, button); err != nil {
		return result, fmt.Errorf("%w: click at (%d, %d): %w", ErrDeviceFailure, p.X, p.Y, err)
	}
	return result, nil
}

func (l *Locator) post(ctx context.Context, taskID, text string, images ...image.Image) {
	l.sink.PostMessage(ctx, tasklog.Message{
		TaskID: taskID,
		Role:   "assistant",
		Text:   text,
		Thread: tasklog.DebugThread,
		Images: images,
	})
}

// save writes an artifact; a failed write is logged and does not stop the
// localization.
func (l *Locator) save(log *zap.Logger, write func() (string, error)) {
	path, err := write()
	if err != nil {
		log.Warn("failed to save artifact", zap.Error(err))
		return
	}
	if path != "" {
		log.Debug("saved artifact", zap.String("path", path))
	}
}

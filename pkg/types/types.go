package types

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Box is an axis-aligned rectangle in pixel units of some coordinate frame,
// either the current (zoomed) view or the original screenshot.
type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// NewBox creates a box from integer pixel corners
func NewBox(x0, y0, x1, y1 int) Box {
	return Box{X0: float64(x0), Y0: float64(y0), X1: float64(x1), Y1: float64(y1)}
}

// BoxFromRect converts an image rectangle to a Box
func BoxFromRect(r image.Rectangle) Box {
	return NewBox(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}

// Width returns the horizontal extent of the box
func (b Box) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box
func (b Box) Height() float64 { return b.Y1 - b.Y0 }

// Center returns the midpoint of the box
func (b Box) Center() (float64, float64) {
	return (b.X0 + b.X1) / 2, (b.Y0 + b.Y1) / 2
}

// ToAbsolute maps a box expressed in the current upscaled view into the
// frame of previous, which is itself absolute. cumulativeUpscale is the
// product of all upscale factors applied before the current view was cropped.
func (b Box) ToAbsolute(previous Box, cumulativeUpscale float64) Box {
	if cumulativeUpscale <= 0 {
		cumulativeUpscale = 1
	}
	return Box{
		X0: previous.X0 + b.X0/cumulativeUpscale,
		Y0: previous.Y0 + b.Y0/cumulativeUpscale,
		X1: previous.X0 + b.X1/cumulativeUpscale,
		Y1: previous.Y0 + b.Y1/cumulativeUpscale,
	}
}

// Contains reports whether other lies entirely inside b
func (b Box) Contains(other Box) bool {
	const eps = 1e-9
	return other.X0 >= b.X0-eps && other.Y0 >= b.Y0-eps &&
		other.X1 <= b.X1+eps && other.Y1 <= b.Y1+eps
}

// Rect returns the box as an integer rectangle, rounding outwards.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X0)), int(math.Floor(b.Y0)),
		int(math.Ceil(b.X1)), int(math.Ceil(b.Y1)),
	)
}

// Point returns the center of the box rounded to the nearest pixel
func (b Box) Point() Point {
	cx, cy := b.Center()
	return Point{X: int(math.Round(cx)), Y: int(math.Round(cy))}
}

func (b Box) String() string {
	return fmt.Sprintf("(%.2f,%.2f)-(%.2f,%.2f)", b.X0, b.Y0, b.X1, b.Y1)
}

// Compose maps the last of a history of per-round crop boxes (each in the
// frame of the view it was cut from) straight into the frame of origin.
// upscales[k] is the factor applied after crop k. The offsets of earlier
// rounds are summed in one pass, so the result matches applying ToAbsolute
// round by round.
func Compose(origin Box, crops []Box, upscales []int) Box {
	if len(crops) == 0 {
		return origin
	}

	offX, offY := origin.X0, origin.Y0
	cum := 1.0
	for k := 0; k < len(crops)-1; k++ {
		offX += crops[k].X0 / cum
		offY += crops[k].Y0 / cum
		if k < len(upscales) {
			cum *= float64(upscales[k])
		}
	}

	last := crops[len(crops)-1]
	return Box{
		X0: offX + last.X0/cum,
		Y0: offY + last.Y0/cum,
		X1: offX + last.X1/cum,
		Y1: offY + last.Y1/cum,
	}
}

// Point is an integer pixel coordinate in the absolute frame
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ClickKind selects how many times the button is pressed
type ClickKind string

const (
	ClickSingle ClickKind = "single"
	ClickDouble ClickKind = "double"
)

// ParseClickKind validates a click kind name
func ParseClickKind(s string) (ClickKind, error) {
	switch ClickKind(s) {
	case ClickSingle:
		return ClickSingle, nil
	case ClickDouble:
		return ClickDouble, nil
	}
	return "", fmt.Errorf("click kind must be 'single' or 'double', got %q", s)
}

// MouseButton names the button used for a click
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// ParseMouseButton validates a button name, defaulting to left when empty
func ParseMouseButton(s string) (MouseButton, error) {
	switch MouseButton(strings.ToLower(strings.TrimSpace(s))) {
	case "", ButtonLeft:
		return ButtonLeft, nil
	case ButtonRight:
		return ButtonRight, nil
	case ButtonMiddle:
		return ButtonMiddle, nil
	}
	return "", fmt.Errorf("mouse button must be 'left', 'right' or 'middle', got %q", s)
}

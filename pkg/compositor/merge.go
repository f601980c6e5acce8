// Package compositor merges a screenshot with a marker overlay. The
// screenshot keeps only its luminance so colored markers stand out.
package compositor

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrDimensionMismatch is returned when the two inputs differ in size
var ErrDimensionMismatch = errors.New("images must have the same dimensions")

// ErrInvalidOpacity is returned for opacities outside [0, 1]
var ErrInvalidOpacity = errors.New("opacity must be between 0 and 1")

// Superimpose draws overlay over a grayscale, fully opaque copy of base at
// the given opacity. The inputs are never resized.
func Superimpose(base, overlay image.Image, opacity float64) (*image.NRGBA, error) {
	bb, ob := base.Bounds(), overlay.Bounds()
	if bb.Dx() != ob.Dx() || bb.Dy() != ob.Dy() {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, bb.Dx(), bb.Dy(), ob.Dx(), ob.Dy())
	}
	if opacity < 0 || opacity > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOpacity, opacity)
	}

	gray := imaging.Grayscale(base)
	flatten(gray)

	return imaging.Overlay(gray, overlay, image.Pt(0, 0), opacity), nil
}

// flatten drops the alpha channel so transparent screenshot regions do not
// show through the merged image.
func flatten(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}

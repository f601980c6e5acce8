// Package zoom cuts the 2×2-cell neighborhood around a grid marker out of
// an image and enlarges it for the next refinement round.
package zoom

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/screen-locator/pkg/grid"
	"github.com/menta2k/screen-locator/pkg/types"
)

// Result is the enlarged neighborhood of a marker
type Result struct {
	Image *image.NRGBA
	// Crop is the cut rectangle in the frame of the image before upscaling
	Crop types.Box
}

// Region returns the 2×2-cell block centered on marker index of an n-sided
// grid over a width×height image.
func Region(width, height, n, index int) (image.Rectangle, error) {
	if err := grid.CheckSides(width, height, n); err != nil {
		return image.Rectangle{}, err
	}
	if !grid.ValidIndex(index, n) {
		return image.Rectangle{}, fmt.Errorf("marker %d out of range [1, %d]", index, grid.MarkerCount(n))
	}

	cw, ch := grid.Cell(width, height, n)
	i, j := grid.Decode(index, n)
	x, y := i*cw, j*ch
	return image.Rect(x, y, x+2*cw, y+2*ch), nil
}

// ZoomIn crops the neighborhood of marker index and scales it up by an
// integer factor with nearest-neighbor sampling, which keeps marker and text
// edges sharp across repeated rounds.
func ZoomIn(img image.Image, n, index, upscale int) (Result, error) {
	if upscale < 1 {
		return Result{}, fmt.Errorf("upscale must be at least 1, got %d", upscale)
	}

	bounds := img.Bounds()
	rect, err := Region(bounds.Dx(), bounds.Dy(), n, index)
	if err != nil {
		return Result{}, err
	}

	cropped := imaging.Crop(img, rect.Add(bounds.Min))
	zoomed := imaging.Resize(cropped, rect.Dx()*upscale, rect.Dy()*upscale, imaging.NearestNeighbor)

	return Result{
		Image: zoomed,
		Crop:  types.BoxFromRect(rect),
	}, nil
}

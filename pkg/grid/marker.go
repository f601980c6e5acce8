// Package grid renders numbered marker overlays and owns the marker
// numbering scheme shared by the prompt, the renderer and the zoomer.
//
// An n-sided grid splits an image into n×n cells of width/n by height/n
// pixels (integer division). Markers sit on the (n-1)×(n-1) interior
// intersections. The marker at intersection (i, j), i counting columns and
// j counting rows from the top-left, has index i·(n-1) + j + 1 and is drawn
// at ((i+1)·cellWidth, (j+1)·cellHeight).
package grid

import (
	"fmt"
	"image"
)

// MinSides is the smallest grid that still has more than one marker
const MinSides = 3

// Cell returns the cell size of an n-sided grid over a width×height image
func Cell(width, height, n int) (cellWidth, cellHeight int) {
	return width / n, height / n
}

// MarkerCount returns the number of markers on an n-sided grid
func MarkerCount(n int) int {
	return (n - 1) * (n - 1)
}

// Encode returns the marker index for interior intersection (i, j)
func Encode(i, j, n int) int {
	return i*(n-1) + j + 1
}

// Decode inverts Encode
func Decode(index, n int) (i, j int) {
	return (index - 1) / (n - 1), (index - 1) % (n - 1)
}

// ValidIndex reports whether index names a marker on an n-sided grid
func ValidIndex(index, n int) bool {
	return index >= 1 && index <= MarkerCount(n)
}

// FallbackIndex returns the marker closest to the image center. Even grids
// have a marker exactly on the center intersection.
func FallbackIndex(n int) int {
	if n%2 == 0 {
		return (MarkerCount(n) + 1) / 2
	}
	return MarkerCount(n)/2 - (n-1)/2
}

// CheckSides validates the grid size against image dimensions
func CheckSides(width, height, n int) error {
	if n < MinSides {
		return fmt.Errorf("grid needs at least %d sides, got %d", MinSides, n)
	}
	if width < n || height < n {
		return fmt.Errorf("image %dx%d is too small for a %d-sided grid", width, height, n)
	}
	return nil
}

// Marker is the geometry of a single numbered marker
type Marker struct {
	Index  int
	Center image.Point
	Radius int
}

// Bounds returns the bounding square of the marker disc
func (m Marker) Bounds() image.Rectangle {
	return image.Rect(m.Center.X-m.Radius, m.Center.Y-m.Radius, m.Center.X+m.Radius+1, m.Center.Y+m.Radius+1)
}

// FontSize returns the label size for a given cell height
func FontSize(cellHeight, minSize int) int {
	size := cellHeight / 5
	if size < minSize {
		size = minSize
	}
	return size
}

// Radius returns the marker radius for a label font size
func Radius(fontSize int) int {
	return fontSize * 7 / 10
}

// Markers lays out all markers of an n-sided grid over a width×height image
// in index order.
func Markers(width, height, n, minFontSize int) []Marker {
	cw, ch := Cell(width, height, n)
	radius := Radius(FontSize(ch, minFontSize))

	markers := make([]Marker, 0, MarkerCount(n))
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-1; j++ {
			markers = append(markers, Marker{
				Index:  Encode(i, j, n),
				Center: image.Pt((i+1)*cw, (j+1)*ch),
				Radius: radius,
			})
		}
	}
	return markers
}

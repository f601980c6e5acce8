package grid

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// DefaultMinFontSize keeps labels legible on small crops
const DefaultMinFontSize = 20

// Config holds the visual parameters of a grid overlay
type Config struct {
	MarkerColor color.NRGBA
	LabelColor  color.NRGBA
	MinFontSize int
}

// Renderer draws numbered marker overlays
type Renderer struct {
	config Config
}

// New creates a Renderer with red markers and yellow labels
func New() *Renderer {
	return &Renderer{
		config: Config{
			MarkerColor: MustParseColor("red"),
			LabelColor:  MustParseColor("yellow"),
			MinFontSize: DefaultMinFontSize,
		},
	}
}

// NewWithConfig creates a Renderer with custom colors and font size
func NewWithConfig(config Config) *Renderer {
	if config.MinFontSize <= 0 {
		config.MinFontSize = DefaultMinFontSize
	}
	return &Renderer{config: config}
}

// Render draws an n-sided grid overlay on a transparent width×height image
func Render(width, height int, markerColor, labelColor color.NRGBA, n int) (*image.NRGBA, error) {
	r := NewWithConfig(Config{MarkerColor: markerColor, LabelColor: labelColor})
	return r.Render(width, height, n)
}

var (
	boldOnce sync.Once
	boldFont *opentype.Font
	boldErr  error
)

func labelFont() (*opentype.Font, error) {
	boldOnce.Do(func() {
		boldFont, boldErr = opentype.Parse(gobold.TTF)
	})
	return boldFont, boldErr
}

// Render draws one disc and label per interior intersection. Output depends
// only on the arguments and the renderer configuration.
func (r *Renderer) Render(width, height, n int) (*image.NRGBA, error) {
	if err := CheckSides(width, height, n); err != nil {
		return nil, err
	}

	_, ch := Cell(width, height, n)
	fontSize := FontSize(ch, r.config.MinFontSize)

	f, err := labelFont()
	if err != nil {
		return nil, fmt.Errorf("failed to parse label font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(fontSize),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create label face: %w", err)
	}
	defer face.Close()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(r.config.LabelColor),
		Face: face,
	}
	ascent := face.Metrics().Ascent

	for _, m := range Markers(width, height, n, r.config.MinFontSize) {
		fillDisc(img, m.Center, m.Radius, r.config.MarkerColor)

		// Labels are anchored at their top-left corner; two-digit labels
		// shift twice as far left to stay centered on the disc.
		offsetX := float64(fontSize) / 4
		if m.Index >= 10 {
			offsetX = float64(fontSize) / 2
		}
		top := float64(m.Center.Y) - float64(fontSize)/2
		drawer.Dot = fixed.Point26_6{
			X: toFixed(float64(m.Center.X) - offsetX),
			Y: toFixed(top) + ascent,
		}
		drawer.DrawString(strconv.Itoa(m.Index))
	}

	return img, nil
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}

func fillDisc(img *image.NRGBA, c image.Point, r int, col color.NRGBA) {
	bounds := img.Bounds()
	for dy := -r; dy <= r; dy++ {
		y := c.Y + dy
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for dx := -r; dx <= r; dx++ {
			x := c.X + dx
			if x < bounds.Min.X || x >= bounds.Max.X || dx*dx+dy*dy > r*r {
				continue
			}
			img.SetNRGBA(x, y, col)
		}
	}
}

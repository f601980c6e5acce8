package locator

import (
	"fmt"

	"github.com/menta2k/screen-locator/pkg/grid"
)

// Config is the grid specification of a localization. It does not change
// during a call.
type Config struct {
	// Sides is the number of cells along each axis; markers sit on the
	// (Sides-1)² interior intersections. Even values put a marker exactly
	// on the image center, which makes the fallback precise.
	Sides int
	// Upscale enlarges each crop before the next round
	Upscale int
	// MaxDepth is the fixed number of refinement rounds
	MaxDepth int
	// Opacity of the overlay over the grayscale screenshot
	Opacity     float64
	MarkerColor string
	LabelColor  string
	MinFontSize int
}

// DefaultConfig returns an 8-sided grid, 3x upscale and 3 rounds
func DefaultConfig() Config {
	return Config{
		Sides:       8,
		Upscale:     3,
		MaxDepth:    3,
		Opacity:     1.0,
		MarkerColor: "red",
		LabelColor:  "yellow",
		MinFontSize: grid.DefaultMinFontSize,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Sides < grid.MinSides {
		return fmt.Errorf("sides must be at least %d", grid.MinSides)
	}
	if c.Upscale < 1 {
		return fmt.Errorf("upscale must be at least 1")
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1")
	}
	if c.Opacity < 0 || c.Opacity > 1 {
		return fmt.Errorf("opacity must be between 0 and 1")
	}
	if _, err := grid.ParseColor(c.MarkerColor); err != nil {
		return fmt.Errorf("marker color: %w", err)
	}
	if _, err := grid.ParseColor(c.LabelColor); err != nil {
		return fmt.Errorf("label color: %w", err)
	}
	return nil
}

package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/screen-locator/pkg/types"
)

// Supported encodings for artifacts and model payloads
const (
	FormatPNG  = "png"
	FormatJPEG = "jpg"
	FormatWebP = "webp"
)

// Processor handles image decoding, encoding and debug drawing
type Processor struct {
	quality  int
	lossless bool
}

// NewProcessor creates a processor with lossless PNG-friendly defaults
func NewProcessor() *Processor {
	return &Processor{quality: 90}
}

// NewProcessorWithQuality sets the quality used for lossy encodings
func NewProcessorWithQuality(quality int, lossless bool) *Processor {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	return &Processor{quality: quality, lossless: lossless}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// DecodeImage decodes PNG, JPEG or WebP bytes
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Encode writes img in the given format
func (p *Processor) Encode(w io.Writer, img image.Image, format string) error {
	switch NormalizeFormat(format) {
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Lossless: p.lossless, Quality: float32(p.quality)})
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: p.quality})
	default:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		return enc.Encode(w, img)
	}
}

// EncodeBytes encodes img into memory, for model payloads
func (p *Processor) EncodeBytes(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf, img, format); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// SaveImage saves an image to a file in the given format
func (p *Processor) SaveImage(img image.Image, path, format string) error {
	switch NormalizeFormat(format) {
	case FormatWebP:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := p.Encode(f, img, FormatWebP); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case FormatJPEG:
		return imaging.Save(img, path, imaging.JPEGQuality(p.quality))
	default:
		return imaging.Save(img, path, imaging.PNGCompressionLevel(png.BestSpeed))
	}
}

// NormalizeFormat maps user format names onto the supported encodings
func NormalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "webp":
		return FormatWebP
	default:
		return FormatPNG
	}
}

// CreateDebugOverlay outlines every absolute box of a localization on the
// original screenshot and marks the final click point.
func (p *Processor) CreateDebugOverlay(img image.Image, boxes []types.Box, click types.Point) *image.NRGBA {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	gold := color.NRGBA{255, 204, 0, 255}
	green := color.NRGBA{0, 255, 0, 255}
	red := color.NRGBA{255, 0, 0, 255}
	stroke := int(math.Max(2, 0.003*float64(minInt(w, h))))

	for i, box := range boxes {
		c := gold
		if i == len(boxes)-1 {
			c = green
		}
		drawBox(nrgba, box.Rect(), c, stroke)
	}

	fillDot(nrgba, click.X, click.Y, 5, red)
	return nrgba
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Dx() <= 0 {
		r.Max.X = r.Min.X + 1
	}
	if r.Dy() <= 0 {
		r.Max.Y = r.Min.Y + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func fillDot(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				drawHLine(img, cy+dy, cx+dx, cx+dx+1, c)
			}
		}
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

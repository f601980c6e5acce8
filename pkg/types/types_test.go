package types

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBoxCenter(t *testing.T) {
	cx, cy := NewBox(10, 20, 110, 100).Center()
	assert.Equal(t, 60.0, cx)
	assert.Equal(t, 60.0, cy)
}

func TestBoxToAbsolute(t *testing.T) {
	prev := NewBox(600, 0, 900, 200)
	cur := NewBox(448, 0, 672, 150)

	abs := cur.ToAbsolute(prev, 3)
	assert.InDelta(t, 600+448.0/3, abs.X0, 1e-9)
	assert.InDelta(t, 0, abs.Y0, 1e-9)
	assert.InDelta(t, 824, abs.X1, 1e-9)
	assert.InDelta(t, 50, abs.Y1, 1e-9)
	assert.True(t, prev.Contains(abs))
}

func TestBoxPointRounds(t *testing.T) {
	b := Box{X0: 786.6666666, Y0: 0, X1: 805.3333333, Y1: 12.4444}
	assert.Equal(t, Point{X: 796, Y: 6}, b.Point())
}

func TestBoxRect(t *testing.T) {
	b := Box{X0: 1.5, Y0: 2.2, X1: 10.1, Y1: 20}
	assert.Equal(t, image.Rect(1, 2, 11, 20), b.Rect())
	assert.Equal(t, NewBox(1, 2, 11, 20), BoxFromRect(b.Rect()))
}

// cropHistory draws a nested zoom history: each round cuts a 2x2-cell block
// out of the current view and enlarges it by an integer factor.
func cropHistory(rt *rapid.T, w, h int) ([]Box, []int) {
	n := rapid.IntRange(3, 12).Draw(rt, "n")
	depth := rapid.IntRange(1, 5).Draw(rt, "depth")

	var crops []Box
	var upscales []int
	for k := 0; k < depth; k++ {
		cw, ch := w/n, h/n
		i := rapid.IntRange(0, n-2).Draw(rt, "i")
		j := rapid.IntRange(0, n-2).Draw(rt, "j")
		up := rapid.IntRange(1, 4).Draw(rt, "upscale")

		crops = append(crops, NewBox(i*cw, j*ch, i*cw+2*cw, j*ch+2*ch))
		upscales = append(upscales, up)
		w, h = 2*cw*up, 2*ch*up
		if w/n < 1 || h/n < 1 {
			break
		}
	}
	return crops, upscales
}

func TestComposeMatchesIterative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.IntRange(200, 4000).Draw(rt, "w")
		h := rapid.IntRange(200, 4000).Draw(rt, "h")
		crops, upscales := cropHistory(rt, w, h)
		origin := NewBox(0, 0, w, h)

		abs := origin
		cum := 1.0
		boxes := []Box{abs}
		for k, crop := range crops {
			abs = crop.ToAbsolute(abs, cum)
			cum *= float64(upscales[k])
			boxes = append(boxes, abs)
		}

		for k := 1; k < len(boxes); k++ {
			require.True(rt, boxes[k-1].Contains(boxes[k]), "round %d escapes its parent", k)
		}

		composed := Compose(origin, crops, upscales)
		require.InDelta(rt, abs.X0, composed.X0, 1e-6)
		require.InDelta(rt, abs.Y0, composed.Y0, 1e-6)
		require.InDelta(rt, abs.X1, composed.X1, 1e-6)
		require.InDelta(rt, abs.Y1, composed.Y1, 1e-6)

		ax, ay := abs.Center()
		cx, cy := composed.Center()
		require.InDelta(rt, ax, cx, 1e-6)
		require.InDelta(rt, ay, cy, 1e-6)
	})
}

func TestComposeEmpty(t *testing.T) {
	origin := NewBox(0, 0, 100, 100)
	assert.Equal(t, origin, Compose(origin, nil, nil))
}

func TestParseClickKind(t *testing.T) {
	k, err := ParseClickKind("single")
	require.NoError(t, err)
	assert.Equal(t, ClickSingle, k)

	k, err = ParseClickKind("double")
	require.NoError(t, err)
	assert.Equal(t, ClickDouble, k)

	for _, bad := range []string{"triple", "", "Single"} {
		_, err = ParseClickKind(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseMouseButton(t *testing.T) {
	b, err := ParseMouseButton("")
	require.NoError(t, err)
	assert.Equal(t, ButtonLeft, b)

	b, err = ParseMouseButton("right")
	require.NoError(t, err)
	assert.Equal(t, ButtonRight, b)

	_, err = ParseMouseButton("thumb")
	assert.Error(t, err)
}

package align

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseContext() Context {
	return Context{
		ImageWidth:       1920,
		ImageHeight:      1080,
		DevicePixelRatio: 2.0,
		FrameOffsetX:     0,
		FrameOffsetY:     50,
		ViewportScale:    1.0,
	}
}

func TestAlignScalesAndOffsets(t *testing.T) {
	// 1920x1080 screenshot, model reports (960, 200), DPR 2.0 and the game
	// frame sits 50 device pixels below the page origin.
	coord, err := Align(Point{X: 960, Y: 200}, baseContext())
	require.NoError(t, err)
	assert.Equal(t, DeviceCoordinate{X: 1920, Y: 450}, coord)
}

func TestAlignIsPure(t *testing.T) {
	p := Point{X: 123.4, Y: 567.8}
	ctx := baseContext()
	first, err := Align(p, ctx)
	require.NoError(t, err)
	second, err := Align(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAlignUndoesPreSendDownscale(t *testing.T) {
	// Capture was downscaled by half before being sent to the model, so a
	// model-space pixel covers two device pixels even at DPR 1.0.
	ctx := Context{
		ImageWidth:       640,
		ImageHeight:      360,
		DevicePixelRatio: 1.0,
		ViewportScale:    0.5,
	}
	coord, err := Align(Point{X: 320, Y: 180}, ctx)
	require.NoError(t, err)
	assert.Equal(t, DeviceCoordinate{X: 640, Y: 360}, coord)
}

func TestAlignRounding(t *testing.T) {
	ctx := Context{
		ImageWidth:       100,
		ImageHeight:      100,
		DevicePixelRatio: 1.5,
		ViewportScale:    1.0,
	}
	coord, err := Align(Point{X: 33, Y: 33}, ctx)
	require.NoError(t, err)
	// 33 * 1.5 = 49.5 rounds half away from zero.
	assert.Equal(t, DeviceCoordinate{X: 50, Y: 50}, coord)
}

func TestAlignRejectsInvalidContext(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Context)
	}{
		{"zero width", func(c *Context) { c.ImageWidth = 0 }},
		{"negative height", func(c *Context) { c.ImageHeight = -1 }},
		{"zero dpr", func(c *Context) { c.DevicePixelRatio = 0 }},
		{"nan dpr", func(c *Context) { c.DevicePixelRatio = math.NaN() }},
		{"zero scale", func(c *Context) { c.ViewportScale = 0 }},
		{"infinite offset", func(c *Context) { c.FrameOffsetX = math.Inf(1) }},
		{"negative offset", func(c *Context) { c.FrameOffsetY = -10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := baseContext()
			tt.mutate(&ctx)
			_, err := Align(Point{X: 10, Y: 10}, ctx)
			assert.Error(t, err)
		})
	}
}

func TestAlignRejectsInvalidPoint(t *testing.T) {
	ctx := baseContext()
	for _, p := range []Point{
		{X: math.NaN(), Y: 10},
		{X: 10, Y: math.Inf(1)},
		{X: -5, Y: 10},
	} {
		_, err := Align(p, ctx)
		assert.Error(t, err, "point %+v", p)
	}
}

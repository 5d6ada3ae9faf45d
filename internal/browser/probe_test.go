package browser

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotilla/pilot-agent/internal/align"
)

func TestAlignContextFullViewport(t *testing.T) {
	m := &FrameMetrics{
		DevicePixelRatio: 2.0,
		ViewportWidth:    1280,
		ViewportHeight:   720,
		HasFrame:         true,
		FrameLeft:        0,
		FrameTop:         25,
	}

	actx := m.AlignContext(1280, 720)
	require.NoError(t, actx.Validate())

	assert.Equal(t, 2.0, actx.DevicePixelRatio)
	assert.Equal(t, 1.0, actx.ViewportScale)
	// A full-viewport capture already shows the frame at its on-page
	// position; adding the frame offset again would double it.
	assert.Equal(t, 0.0, actx.FrameOffsetX)
	assert.Equal(t, 0.0, actx.FrameOffsetY)
}

func TestAlignContextOffsetCanvasClicksItsOwnPixels(t *testing.T) {
	// A canvas whose top-left sits at (200,100) on the page appears at
	// (200,100) in the full-viewport image; aligning that image point must
	// land back on (200,100) in device pixels at DPR 1.
	m := &FrameMetrics{
		DevicePixelRatio: 1.0,
		ViewportWidth:    1280,
		ViewportHeight:   720,
		HasFrame:         true,
		FrameLeft:        200,
		FrameTop:         100,
		FrameWidth:       800,
		FrameHeight:      500,
	}

	actx := m.AlignContext(1280, 720)
	require.NoError(t, actx.Validate())

	coord, err := align.Align(align.Point{X: 200, Y: 100}, actx)
	require.NoError(t, err)
	assert.Equal(t, align.DeviceCoordinate{X: 200, Y: 100}, coord)
}

func TestAlignContextDownscaledImage(t *testing.T) {
	m := &FrameMetrics{
		DevicePixelRatio: 2.0,
		ViewportWidth:    1280,
		ViewportHeight:   720,
	}

	// Image sent to the model was resized to half the viewport width.
	actx := m.AlignContext(640, 360)
	require.NoError(t, actx.Validate())
	assert.Equal(t, 0.5, actx.ViewportScale)

	coord, err := align.Align(align.Point{X: 320, Y: 180}, actx)
	require.NoError(t, err)
	assert.Equal(t, align.DeviceCoordinate{X: 1280, Y: 720}, coord)
}

func TestCanvasAlignContext(t *testing.T) {
	m := &FrameMetrics{
		DevicePixelRatio: 2.0,
		ViewportWidth:    1280,
		ViewportHeight:   720,
		HasFrame:         true,
		FrameLeft:        100,
		FrameTop:         0,
		// Canvas renders at 2x its CSS size.
		CanvasScaleX: 2.0,
		CanvasScaleY: 2.0,
	}

	actx := m.CanvasAlignContext(1600, 1200)
	require.NoError(t, actx.Validate())

	// A point at canvas-internal (800, 600) is CSS (400, 300), so the device
	// position is 400*2 + 100*2 = 1000 across and 300*2 = 600 down.
	coord, err := align.Align(align.Point{X: 800, Y: 600}, actx)
	require.NoError(t, err)
	assert.Equal(t, align.DeviceCoordinate{X: 1000, Y: 600}, coord)
}

func TestCanvasAlignContextZeroScaleDefaults(t *testing.T) {
	m := &FrameMetrics{DevicePixelRatio: 1.0}
	actx := m.CanvasAlignContext(640, 480)
	assert.Equal(t, 1.0, actx.ViewportScale)
}

func TestAlignContextZeroViewportDefaultsScale(t *testing.T) {
	m := &FrameMetrics{DevicePixelRatio: 1.0}
	actx := m.AlignContext(800, 600)
	assert.Equal(t, 1.0, actx.ViewportScale)
}

func TestExecutorRefusesLowConfidence(t *testing.T) {
	exec := NewExecutor(0.5, zerolog.Nop())

	err := exec.ClickAt(context.Background(), align.DeviceCoordinate{X: 10, Y: 10}, 0.3)
	require.Error(t, err)

	var lowErr *ErrLowConfidence
	require.ErrorAs(t, err, &lowErr)
	assert.Equal(t, 0.3, lowErr.Confidence)
	assert.Equal(t, 0.5, lowErr.Threshold)
}

func TestExecutorRefusesUnverifiedConfidenceWithThreshold(t *testing.T) {
	exec := NewExecutor(0.5, zerolog.Nop())
	err := exec.ClickAt(context.Background(), align.DeviceCoordinate{X: 10, Y: 10}, -1.0)
	var lowErr *ErrLowConfidence
	require.ErrorAs(t, err, &lowErr)
}

// Package align converts model-reported image-pixel coordinates into device
// click coordinates. Screenshots are captured in device pixels (scaled by
// devicePixelRatio) and may be resized before being sent to the model, while
// the game surface usually lives inside a nested iframe offset from the page
// origin. Alignment undoes both so a click lands on the pixel the model saw.
package align

import (
	"fmt"
	"math"
)

// Context carries the scaling and offset parameters for one conversion. It is
// supplied per request and read-only.
type Context struct {
	// ImageWidth and ImageHeight are the dimensions of the screenshot the
	// model analyzed, in its own pixel space.
	ImageWidth  int
	ImageHeight int
	// DevicePixelRatio is window.devicePixelRatio at capture time.
	DevicePixelRatio float64
	// FrameOffsetX/Y locate the captured surface (canvas or iframe) inside
	// the top-level viewport, in device coordinates.
	FrameOffsetX float64
	FrameOffsetY float64
	// ViewportScale is any resize factor applied to the screenshot before
	// sending it to the model (e.g., 0.5 when downscaled by half). 1.0
	// means the model saw the capture at native size.
	ViewportScale float64
}

// Validate rejects contexts that cannot produce a meaningful coordinate.
func (c Context) Validate() error {
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("image dimensions must be positive, got %dx%d", c.ImageWidth, c.ImageHeight)
	}
	if !isFinite(c.DevicePixelRatio) || c.DevicePixelRatio <= 0 {
		return fmt.Errorf("device pixel ratio must be a positive finite number, got %v", c.DevicePixelRatio)
	}
	if !isFinite(c.ViewportScale) || c.ViewportScale <= 0 {
		return fmt.Errorf("viewport scale must be a positive finite number, got %v", c.ViewportScale)
	}
	if !isFinite(c.FrameOffsetX) || !isFinite(c.FrameOffsetY) {
		return fmt.Errorf("frame offsets must be finite, got (%v, %v)", c.FrameOffsetX, c.FrameOffsetY)
	}
	if c.FrameOffsetX < 0 || c.FrameOffsetY < 0 {
		return fmt.Errorf("frame offsets must be non-negative, got (%v, %v)", c.FrameOffsetX, c.FrameOffsetY)
	}
	return nil
}

// DeviceCoordinate is a terminal click position in device pixels. It is
// handed to the action executor and never mutated further.
type DeviceCoordinate struct {
	X int
	Y int
}

func (d DeviceCoordinate) String() string {
	return fmt.Sprintf("(%d, %d)", d.X, d.Y)
}

// Point is a location in image-pixel space, as reported by the model.
type Point struct {
	X float64
	Y float64
}

// Align converts an image-space point into a device click coordinate. The
// operation is pure: identical inputs always yield an identical coordinate.
//
// device = point × (DPR ÷ pre-send scale) + frame offset
func Align(p Point, ctx Context) (DeviceCoordinate, error) {
	if err := ctx.Validate(); err != nil {
		return DeviceCoordinate{}, err
	}
	if !isFinite(p.X) || !isFinite(p.Y) || p.X < 0 || p.Y < 0 {
		return DeviceCoordinate{}, fmt.Errorf("point must be finite and non-negative, got (%v, %v)", p.X, p.Y)
	}

	scale := ctx.DevicePixelRatio / ctx.ViewportScale
	x := p.X*scale + ctx.FrameOffsetX
	y := p.Y*scale + ctx.FrameOffsetY

	return DeviceCoordinate{
		X: int(math.Round(x)),
		Y: int(math.Round(y)),
	}, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/flotilla/pilot-agent/internal/align"
)

// FrameMetrics holds the page geometry needed to map screenshot pixels onto
// device pixels: the device pixel ratio, the CSS viewport, and the bounding
// rect of the canvas frame when one exists.
type FrameMetrics struct {
	DevicePixelRatio float64
	ViewportWidth    float64
	ViewportHeight   float64
	HasFrame         bool
	FrameLeft        float64
	FrameTop         float64
	FrameWidth       float64
	FrameHeight      float64
	// CanvasScaleX/Y relate the canvas internal resolution to its CSS size.
	CanvasScaleX float64
	CanvasScaleY float64
}

// Probe inspects the manager's current page for alignment geometry.
func (m *Manager) Probe() (*FrameMetrics, error) {
	return ProbeAlignment(m.ctx)
}

// ProbeAlignment inspects the live page for the geometry a coordinate
// alignment needs. The probe never fails just because no canvas is present;
// HasFrame reports that and the offsets stay zero.
func ProbeAlignment(ctx context.Context) (*FrameMetrics, error) {
	script := `
(function() {
    const out = {
        dpr: window.devicePixelRatio || 1,
        viewport: { width: window.innerWidth, height: window.innerHeight },
        found: false
    };

    const canvas = document.querySelector('canvas');
    if (canvas) {
        const rect = canvas.getBoundingClientRect();
        out.found = true;
        out.rect = { left: rect.left, top: rect.top, width: rect.width, height: rect.height };
        out.scale = {
            x: rect.width > 0 ? canvas.width / rect.width : 1,
            y: rect.height > 0 ? canvas.height / rect.height : 1
        };
    }

    return JSON.stringify(out);
})();
`

	var resultJSON string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &resultJSON)); err != nil {
		return nil, fmt.Errorf("failed to probe page geometry: %w", err)
	}

	var result struct {
		DPR      float64 `json:"dpr"`
		Viewport struct {
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"viewport"`
		Found bool `json:"found"`
		Rect  struct {
			Left   float64 `json:"left"`
			Top    float64 `json:"top"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"rect"`
		Scale struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"scale"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse geometry probe: %w", err)
	}

	m := &FrameMetrics{
		DevicePixelRatio: result.DPR,
		ViewportWidth:    result.Viewport.Width,
		ViewportHeight:   result.Viewport.Height,
		HasFrame:         result.Found,
		CanvasScaleX:     1,
		CanvasScaleY:     1,
	}
	if result.Found {
		m.FrameLeft = result.Rect.Left
		m.FrameTop = result.Rect.Top
		m.FrameWidth = result.Rect.Width
		m.FrameHeight = result.Rect.Height
		m.CanvasScaleX = result.Scale.X
		m.CanvasScaleY = result.Scale.Y
	}
	return m, nil
}

// AlignContext builds the alignment context for a full-viewport screenshot of
// the probed page. imageWidth/imageHeight are the dimensions of the image
// actually sent to the model, which may have been resized from the viewport.
// The canvas frame is already inside the image at its on-page position, so no
// frame offset applies; offsets belong to canvas-space captures only.
func (m *FrameMetrics) AlignContext(imageWidth, imageHeight int) align.Context {
	scale := 1.0
	if m.ViewportWidth > 0 {
		scale = float64(imageWidth) / m.ViewportWidth
	}
	return align.Context{
		ImageWidth:       imageWidth,
		ImageHeight:      imageHeight,
		DevicePixelRatio: m.DevicePixelRatio,
		ViewportScale:    scale,
	}
}

// CanvasAlignContext builds the alignment context for an image read straight
// off the canvas (toDataURL), where pixels are in the canvas internal
// resolution rather than viewport space. The canvas internal-to-CSS scale
// plays the role of the pre-send scale: device = img ÷ scale × DPR + offset.
func (m *FrameMetrics) CanvasAlignContext(imageWidth, imageHeight int) align.Context {
	scale := m.CanvasScaleX
	if scale <= 0 {
		scale = 1
	}
	return align.Context{
		ImageWidth:       imageWidth,
		ImageHeight:      imageHeight,
		DevicePixelRatio: m.DevicePixelRatio,
		FrameOffsetX:     m.FrameLeft * m.DevicePixelRatio,
		FrameOffsetY:     m.FrameTop * m.DevicePixelRatio,
		ViewportScale:    scale,
	}
}

package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// Phase labels the point in a run where a screenshot was taken.
type Phase string

const (
	PhaseInitial Phase = "initial"
	PhaseLocate  Phase = "locate"
	PhaseError   Phase = "error"
	PhaseFinal   Phase = "final"
)

const (
	viewportWidth  = 1280
	viewportHeight = 720
)

// Screenshot is a captured PNG with metadata.
type Screenshot struct {
	// Filepath is set once the screenshot has been saved to disk.
	Filepath  string
	Phase     Phase
	Timestamp time.Time
	Data      []byte
	Width     int
	Height    int
}

// Capture takes a full-viewport screenshot of the manager's current page.
func (m *Manager) Capture(phase Phase) (*Screenshot, error) {
	return Capture(m.ctx, phase)
}

// CaptureCanvas reads the canvas contents of the manager's current page.
func (m *Manager) CaptureCanvas(phase Phase) (*Screenshot, error) {
	return CaptureCanvas(m.ctx, phase)
}

// Capture takes a full-viewport screenshot at the 1280x720 resolution pinned
// by Manager.LoadPage. It never touches viewport emulation itself: changing
// the device scale mid-run would invalidate any previously probed geometry.
func Capture(ctx context.Context, phase Phase) (*Screenshot, error) {
	var buf []byte
	if err := chromedp.Run(ctx,
		chromedp.FullScreenshot(&buf, 100),
	); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	return &Screenshot{
		Phase:     phase,
		Timestamp: time.Now(),
		Data:      buf,
		Width:     viewportWidth,
		Height:    viewportHeight,
	}, nil
}

// CaptureCanvas reads the canvas contents directly via toDataURL. This sees
// frames a compositor screenshot can miss when the page renders into an
// offscreen buffer. Falls back with an error when no canvas is present or the
// canvas is tainted by cross-origin content.
func CaptureCanvas(ctx context.Context, phase Phase) (*Screenshot, error) {
	script := `
(function() {
    const canvas = document.querySelector('canvas');
    if (!canvas) {
        return '';
    }
    try {
        return canvas.toDataURL('image/png');
    } catch (e) {
        return '';
    }
})();
`
	var dataURL string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &dataURL)); err != nil {
		return nil, fmt.Errorf("failed to read canvas: %w", err)
	}

	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(dataURL, prefix) {
		return nil, fmt.Errorf("canvas capture unavailable")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode canvas data: %w", err)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("canvas returned invalid PNG: %w", err)
	}

	return &Screenshot{
		Phase:     phase,
		Timestamp: time.Now(),
		Data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}

// Save writes the screenshot to dir with a unique filename.
func (s *Screenshot) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create screenshot dir %s: %w", dir, err)
	}

	filename := fmt.Sprintf("screenshot_%s_%s_%s.png",
		s.Phase,
		s.Timestamp.Format("20060102_150405"),
		uuid.New().String()[:8],
	)

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, s.Data, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot to %s: %w", path, err)
	}

	s.Filepath = path
	return nil
}

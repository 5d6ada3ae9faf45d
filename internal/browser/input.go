package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/flotilla/pilot-agent/internal/align"
)

// ErrLowConfidence reports a click refused because the target confidence fell
// below the executor threshold.
type ErrLowConfidence struct {
	Confidence float64
	Threshold  float64
}

func (e *ErrLowConfidence) Error() string {
	return fmt.Sprintf("refusing to act: confidence %.2f below threshold %.2f", e.Confidence, e.Threshold)
}

// Executor dispatches pointer input at device coordinates. It enforces a
// minimum confidence before touching the page; a negative confidence means
// the model did not report one and only passes a zero threshold.
type Executor struct {
	minConfidence float64
	log           zerolog.Logger
}

// NewExecutor returns an executor that refuses actions whose target
// confidence is below minConfidence.
func NewExecutor(minConfidence float64, logger zerolog.Logger) *Executor {
	return &Executor{
		minConfidence: minConfidence,
		log:           logger.With().Str("component", "input").Logger(),
	}
}

// ClickAt clicks at the given device coordinate.
func (e *Executor) ClickAt(ctx context.Context, coord align.DeviceCoordinate, confidence float64) error {
	if confidence < e.minConfidence {
		return &ErrLowConfidence{Confidence: confidence, Threshold: e.minConfidence}
	}

	e.log.Info().Int("x", coord.X).Int("y", coord.Y).Float64("confidence", confidence).Msg("clicking")

	if err := chromedp.Run(ctx, chromedp.MouseClickXY(float64(coord.X), float64(coord.Y))); err != nil {
		return fmt.Errorf("click at (%d, %d) failed: %w", coord.X, coord.Y, err)
	}
	return nil
}

// DragTo performs a mouse drag between two device coordinates with smooth
// interpolated movement and a hold before release. Canvas apps sample mouse
// position per frame, so the intermediate moves matter.
func (e *Executor) DragTo(ctx context.Context, from, to align.DeviceCoordinate, confidence float64, duration, holdDuration time.Duration) error {
	if confidence < e.minConfidence {
		return &ErrLowConfidence{Confidence: confidence, Threshold: e.minConfidence}
	}

	e.log.Info().
		Int("from_x", from.X).Int("from_y", from.Y).
		Int("to_x", to.X).Int("to_y", to.Y).
		Msg("dragging")

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MousePressed, float64(from.X), float64(from.Y)).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("mouse press failed: %w", err)
	}

	time.Sleep(50 * time.Millisecond)

	steps := 10
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := float64(from.X) + float64(to.X-from.X)*t
		y := float64(from.Y) + float64(to.Y-from.Y)*t

		err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}))
		if err != nil {
			return fmt.Errorf("mouse move failed at step %d: %w", i, err)
		}

		time.Sleep(duration / time.Duration(steps))
	}

	time.Sleep(holdDuration)

	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseReleased, float64(to.X), float64(to.Y)).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("mouse release failed: %w", err)
	}
	return nil
}

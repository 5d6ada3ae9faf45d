// Package agent composes the model orchestrator, locator, aligner, browser
// and store into end-to-end runs.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/flotilla/pilot-agent/internal/align"
	"github.com/flotilla/pilot-agent/internal/locator"
	"github.com/flotilla/pilot-agent/internal/model"
)

// LocateResult pairs the located region in image pixels with its aligned
// device coordinate.
type LocateResult struct {
	Region     *locator.TargetRegion
	Coordinate align.DeviceCoordinate
}

// Targeter finds a described target in a screenshot and maps it onto device
// pixels in one step.
type Targeter struct {
	locator *locator.Locator
	log     zerolog.Logger
}

// NewTargeter builds a targeter on top of a model caller, typically the
// fallback orchestrator.
func NewTargeter(caller locator.Caller, logger zerolog.Logger) *Targeter {
	return &Targeter{
		locator: locator.New(caller, logger),
		log:     logger.With().Str("component", "targeter").Logger(),
	}
}

// LocateAndAlign locates description in img and converts the region center to
// a device coordinate using actx. Locator failures pass through unchanged so
// callers can distinguish a missing target from a malformed response.
func (t *Targeter) LocateAndAlign(ctx context.Context, img locator.Image, description string, actx align.Context) (*LocateResult, error) {
	region, err := t.locator.Locate(ctx, img, description)
	if err != nil {
		return nil, err
	}

	coord, err := align.Align(align.Point{X: region.CenterX, Y: region.CenterY}, actx)
	if err != nil {
		return nil, fmt.Errorf("failed to align located target: %w", err)
	}

	t.log.Info().
		Str("description", description).
		Float64("center_x", region.CenterX).
		Float64("center_y", region.CenterY).
		Int("device_x", coord.X).
		Int("device_y", coord.Y).
		Float64("confidence", region.Confidence).
		Msg("target located and aligned")

	return &LocateResult{Region: region, Coordinate: coord}, nil
}

// recordingCaller wraps a model caller and remembers which variant answered
// and how many calls were made, for run reporting.
type recordingCaller struct {
	inner locator.Caller

	mu        sync.Mutex
	calls     int
	lastModel string
}

func (r *recordingCaller) Call(ctx context.Context, req model.Request) (*model.Response, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	resp, err := r.inner.Call(ctx, req)
	if err == nil && resp != nil {
		r.mu.Lock()
		r.lastModel = resp.Model
		r.mu.Unlock()
	}
	return resp, err
}

func (r *recordingCaller) stats() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastModel, r.calls
}

// Package locator resolves a natural-language description of an on-screen
// element into a target region in screenshot pixel space, using a vision
// model behind the fallback orchestrator.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/flotilla/pilot-agent/internal/model"
)

// ConfidenceUnverified marks a region whose confidence the model did not
// report. Callers treating confidence as a gate must decide how to handle it
// explicitly rather than inheriting a fake zero or one.
const ConfidenceUnverified = -1.0

var (
	// ErrTargetNotFound means the model answered but could not find the
	// described element. Retrying with another screenshot or description
	// may help.
	ErrTargetNotFound = errors.New("target not found in screenshot")
	// ErrMalformedResponse means the model's answer could not be parsed
	// into a valid in-bounds region. Identical retries are unlikely to
	// help and clamping would risk clicking the wrong element.
	ErrMalformedResponse = errors.New("malformed target response")
)

// Image is a screenshot handed to the locator.
type Image struct {
	// Data is the PNG-encoded screenshot
	Data []byte
	// Width and Height are the image dimensions in pixels
	Width  int
	Height int
}

// TargetRegion is a model-reported location of a UI element, in source-image
// pixel coordinates. Created fresh per request and discarded after use.
type TargetRegion struct {
	// CenterX and CenterY are the click point inside the image
	CenterX float64
	CenterY float64
	// Width and Height describe the optional bounding box (0 when the
	// model only returned a center point)
	Width  float64
	Height float64
	// Confidence is the model's self-reported confidence in [0,1], or
	// ConfidenceUnverified when absent
	Confidence float64
	// Label is the model's description of what it found
	Label string
}

// Caller issues one logical model call. *model.Orchestrator satisfies it.
type Caller interface {
	Call(ctx context.Context, req model.Request) (*model.Response, error)
}

// Locator finds UI elements in screenshots by description.
type Locator struct {
	caller Caller
	log    zerolog.Logger
}

// New creates a locator on top of the given caller.
func New(caller Caller, log zerolog.Logger) *Locator {
	return &Locator{
		caller: caller,
		log:    log.With().Str("component", "locator").Logger(),
	}
}

// Locate sends the screenshot and description to the model and parses the
// answer into a TargetRegion. Coordinates are validated against the image
// bounds; anything out of range fails rather than being clamped.
func (l *Locator) Locate(ctx context.Context, img Image, description string) (*TargetRegion, error) {
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("screenshot data is empty")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("screenshot dimensions must be positive, got %dx%d", img.Width, img.Height)
	}
	if description == "" {
		return nil, fmt.Errorf("target description is empty")
	}

	resp, err := l.caller.Call(ctx, model.Request{
		Prompt:    buildLocatePrompt(description, img.Width, img.Height),
		ImagePNG:  img.Data,
		MaxTokens: 300,
	})
	if err != nil {
		return nil, fmt.Errorf("vision call failed: %w", err)
	}

	region, err := parseTargetResponse(resp.Content, img.Width, img.Height)
	if err != nil {
		return nil, err
	}

	l.log.Debug().
		Str("model", resp.Model).
		Str("label", region.Label).
		Float64("cx", region.CenterX).
		Float64("cy", region.CenterY).
		Float64("confidence", region.Confidence).
		Msg("target located")
	return region, nil
}

// buildLocatePrompt asks for exact pixel coordinates of the described
// element. The coordinate conventions are spelled out because vision models
// routinely guess centers otherwise.
func buildLocatePrompt(description string, width, height int) string {
	return fmt.Sprintf(`You are analyzing a game screenshot to locate this UI element: %s

The screenshot resolution is %dx%d pixels with origin (0,0) at TOP-LEFT corner.

CRITICAL: You MUST return the EXACT pixel coordinates where the element appears in the image.
- Measure from the TOP-LEFT corner (0,0)
- X increases going RIGHT
- Y increases going DOWN
- Return the CENTER point of the element

Return ONLY a JSON object with this exact format:
{
  "found": true/false,
  "x": exact_pixel_x_of_center,
  "y": exact_pixel_y_of_center,
  "width": element_width_in_pixels,
  "height": element_height_in_pixels,
  "label": "brief description of what you found",
  "confidence": 0.0-1.0
}

If you cannot find the element with reasonable confidence, set "found" to false.

IMPORTANT:
- Count pixels carefully from top-left
- If the element is in the upper-left, x and y should be SMALL numbers
- If the element is in the center, x should be near %d and y near %d
- DO NOT just guess the center of the screen - measure the actual element location`,
		description, width, height, width/2, height/2)
}

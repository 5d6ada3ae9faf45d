package locator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// targetPayload mirrors the JSON the locate prompt asks for. Confidence is a
// pointer so an absent field is distinguishable from a reported 0.0.
type targetPayload struct {
	Found      bool     `json:"found"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
}

// parseTargetResponse turns raw model output into a validated TargetRegion.
// Out-of-bounds or unparsable answers fail with ErrMalformedResponse; a
// well-formed "not found" answer fails with ErrTargetNotFound. The two are
// never coerced into each other.
func parseTargetResponse(content string, imgWidth, imgHeight int) (*TargetRegion, error) {
	text := stripMarkdownCodeFence(content)

	var payload targetPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		// Vision models frequently emit almost-JSON (trailing commas,
		// single quotes). Try repairing before giving up.
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v (content: %.200s)", ErrMalformedResponse, err, content)
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return nil, fmt.Errorf("%w: %v (content: %.200s)", ErrMalformedResponse, err, content)
		}
	}

	if !payload.Found {
		return nil, ErrTargetNotFound
	}

	if payload.X == nil || payload.Y == nil {
		return nil, fmt.Errorf("%w: missing center coordinates", ErrMalformedResponse)
	}
	cx, cy := *payload.X, *payload.Y
	if cx < 0 || cx >= float64(imgWidth) || cy < 0 || cy >= float64(imgHeight) {
		return nil, fmt.Errorf("%w: center (%v, %v) outside %dx%d image",
			ErrMalformedResponse, cx, cy, imgWidth, imgHeight)
	}
	if payload.Width < 0 || payload.Height < 0 {
		return nil, fmt.Errorf("%w: negative bounding box %vx%v",
			ErrMalformedResponse, payload.Width, payload.Height)
	}

	confidence := ConfidenceUnverified
	if payload.Confidence != nil {
		confidence = *payload.Confidence
		if confidence < 0 || confidence > 1 {
			return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedResponse, confidence)
		}
	}

	return &TargetRegion{
		CenterX:    cx,
		CenterY:    cy,
		Width:      payload.Width,
		Height:     payload.Height,
		Confidence: confidence,
		Label:      payload.Label,
	}, nil
}

// stripMarkdownCodeFence removes ```json / ``` wrappers models like to add
// despite being told not to.
func stripMarkdownCodeFence(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSpace(text)
		if idx := strings.Index(text, "```"); idx != -1 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSpace(text)
		if idx := strings.Index(text, "```"); idx != -1 {
			text = text[:idx]
		}
	}

	return strings.TrimSpace(text)
}

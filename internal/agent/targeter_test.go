package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotilla/pilot-agent/internal/align"
	"github.com/flotilla/pilot-agent/internal/locator"
	"github.com/flotilla/pilot-agent/internal/model"
)

type stubCaller struct {
	content string
	model   string
	err     error
	calls   int
}

func (s *stubCaller) Call(ctx context.Context, req model.Request) (*model.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &model.Response{Content: s.content, Model: s.model}, nil
}

func testAlignContext() align.Context {
	return align.Context{
		ImageWidth:       1280,
		ImageHeight:      720,
		DevicePixelRatio: 2.0,
		FrameOffsetY:     50,
		ViewportScale:    1.0,
	}
}

func TestLocateAndAlign(t *testing.T) {
	caller := &stubCaller{
		content: `{"found": true, "x": 960, "y": 200, "width": 100, "height": 40, "label": "START", "confidence": 0.9}`,
		model:   "gpt-4o",
	}
	targeter := NewTargeter(caller, zerolog.Nop())

	img := locator.Image{Data: []byte{0x89, 0x50}, Width: 1280, Height: 720}
	result, err := targeter.LocateAndAlign(context.Background(), img, "start button", testAlignContext())
	require.NoError(t, err)

	assert.Equal(t, 960.0, result.Region.CenterX)
	assert.Equal(t, "START", result.Region.Label)
	// 960*2 = 1920, 200*2 + 50 = 450.
	assert.Equal(t, align.DeviceCoordinate{X: 1920, Y: 450}, result.Coordinate)
}

func TestLocateAndAlignPropagatesNotFound(t *testing.T) {
	caller := &stubCaller{content: `{"found": false}`}
	targeter := NewTargeter(caller, zerolog.Nop())

	img := locator.Image{Data: []byte{0x89}, Width: 1280, Height: 720}
	_, err := targeter.LocateAndAlign(context.Background(), img, "missing", testAlignContext())
	assert.ErrorIs(t, err, locator.ErrTargetNotFound)
}

func TestLocateAndAlignRejectsInvalidContext(t *testing.T) {
	caller := &stubCaller{
		content: `{"found": true, "x": 10, "y": 10, "width": 5, "height": 5}`,
	}
	targeter := NewTargeter(caller, zerolog.Nop())

	actx := testAlignContext()
	actx.DevicePixelRatio = 0

	img := locator.Image{Data: []byte{0x89}, Width: 1280, Height: 720}
	_, err := targeter.LocateAndAlign(context.Background(), img, "button", actx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to align")
}

func TestRecordingCallerTracksModelAndCalls(t *testing.T) {
	inner := &stubCaller{content: "{}", model: "claude-sonnet"}
	rec := &recordingCaller{inner: inner}

	_, err := rec.Call(context.Background(), model.Request{Prompt: "hi"})
	require.NoError(t, err)
	_, err = rec.Call(context.Background(), model.Request{Prompt: "again"})
	require.NoError(t, err)

	modelUsed, calls := rec.stats()
	assert.Equal(t, "claude-sonnet", modelUsed)
	assert.Equal(t, 2, calls)
}

func TestRecordingCallerKeepsCountOnError(t *testing.T) {
	inner := &stubCaller{err: errors.New("boom")}
	rec := &recordingCaller{inner: inner}

	_, err := rec.Call(context.Background(), model.Request{Prompt: "hi"})
	require.Error(t, err)

	modelUsed, calls := rec.stats()
	assert.Empty(t, modelUsed)
	assert.Equal(t, 1, calls)
}

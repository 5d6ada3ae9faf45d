package reporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotilla/pilot-agent/internal/align"
	"github.com/flotilla/pilot-agent/internal/browser"
	"github.com/flotilla/pilot-agent/internal/locator"
)

func TestBuildSuccessfulRun(t *testing.T) {
	b := NewBuilder("https://example.com/app", "blue start button")
	b.AddScreenshot(&browser.Screenshot{
		Phase:     browser.PhaseInitial,
		Timestamp: time.Now(),
		Width:     1280,
		Height:    720,
	})
	b.SetTarget(&locator.TargetRegion{CenterX: 640, CenterY: 400, Confidence: 0.9})
	b.SetClick(align.DeviceCoordinate{X: 1280, Y: 800})
	b.SetModel("gpt-4o", 2)

	report := b.Build()

	assert.NotEmpty(t, report.ReportID)
	assert.Equal(t, "succeeded", report.Status)
	assert.Equal(t, "https://example.com/app", report.PageURL)
	assert.Equal(t, "gpt-4o", report.ModelUsed)
	assert.Equal(t, 2, report.Attempts)
	require.NotNil(t, report.Click)
	assert.Equal(t, 1280, report.Click.X)
	require.Len(t, report.Evidence.Screenshots, 1)
	assert.Equal(t, browser.PhaseInitial, report.Evidence.Screenshots[0].Phase)
	assert.Empty(t, report.Error)
}

func TestBuildStatusFromError(t *testing.T) {
	b := NewBuilder("https://example.com/app", "missing thing")
	b.SetError(locator.ErrTargetNotFound)
	report := b.Build()
	assert.Equal(t, "target_not_found", report.Status)
	assert.NotEmpty(t, report.Error)

	b = NewBuilder("https://example.com/app", "thing")
	b.SetError(errors.New("browser crashed"))
	report = b.Build()
	assert.Equal(t, "failed", report.Status)
	assert.Equal(t, "browser crashed", report.Error)
}

func TestBuildStatusFromWrappedError(t *testing.T) {
	b := NewBuilder("https://example.com/app", "missing thing")
	b.SetError(fmt.Errorf("locate %q: %w", "missing thing", locator.ErrTargetNotFound))
	report := b.Build()
	assert.Equal(t, "target_not_found", report.Status)
}

func TestSaveToTempRoundTrips(t *testing.T) {
	b := NewBuilder("https://example.com/app", "button")
	b.AddMetadata("run_mode", "headless")
	report := b.Build()

	path, err := report.SaveToTemp()
	require.NoError(t, err)
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, report.ReportID, got.ReportID)
	assert.Equal(t, "headless", got.Metadata["run_mode"])
}

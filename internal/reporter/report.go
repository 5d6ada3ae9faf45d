package reporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/flotilla/pilot-agent/internal/align"
	"github.com/flotilla/pilot-agent/internal/browser"
	"github.com/flotilla/pilot-agent/internal/locator"
)

// Report captures the outcome of a pilot run: what was located, where the
// click landed, and the evidence collected along the way.
type Report struct {
	ReportID string `json:"report_id"`
	// PageURL is the URL of the page the run drove.
	PageURL string `json:"page_url"`
	// Description is the target description given to the locator.
	Description string        `json:"description"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration_ms"`
	// Status is the overall run status (succeeded, target_not_found, failed).
	Status string `json:"status"`
	// ModelUsed is the variant that produced the accepted response.
	ModelUsed string `json:"model_used,omitempty"`
	// Attempts is how many model calls the run consumed.
	Attempts int `json:"attempts"`
	// Target is the located region in image pixels, when one was found.
	Target *locator.TargetRegion `json:"target,omitempty"`
	// Click is the aligned device coordinate, when a click was dispatched.
	Click *align.DeviceCoordinate `json:"click,omitempty"`
	// Error holds the failure description for non-success statuses.
	Error    string            `json:"error,omitempty"`
	Evidence *Evidence         `json:"evidence"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Evidence lists the artifacts gathered during the run.
type Evidence struct {
	Screenshots []ScreenshotInfo `json:"screenshots"`
}

// ScreenshotInfo is the report-level metadata for one captured screenshot.
type ScreenshotInfo struct {
	Phase     browser.Phase `json:"phase"`
	Filepath  string        `json:"filepath"`
	S3URL     string        `json:"s3_url,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
}

// Builder assembles a report incrementally as a run progresses.
type Builder struct {
	pageURL     string
	description string
	startTime   time.Time
	screenshots []*browser.Screenshot
	target      *locator.TargetRegion
	click       *align.DeviceCoordinate
	modelUsed   string
	attempts    int
	runErr      error
	metadata    map[string]string
}

// NewBuilder starts a report for a run against pageURL looking for description.
func NewBuilder(pageURL, description string) *Builder {
	return &Builder{
		pageURL:     pageURL,
		description: description,
		startTime:   time.Now(),
		metadata:    make(map[string]string),
	}
}

// AddScreenshot records a captured screenshot.
func (b *Builder) AddScreenshot(s *browser.Screenshot) {
	b.screenshots = append(b.screenshots, s)
}

// SetTarget records the located region.
func (b *Builder) SetTarget(t *locator.TargetRegion) {
	b.target = t
}

// SetClick records the device coordinate a click was dispatched at.
func (b *Builder) SetClick(c align.DeviceCoordinate) {
	b.click = &c
}

// SetModel records which model variant produced the accepted response and
// how many calls the run consumed.
func (b *Builder) SetModel(variant string, attempts int) {
	b.modelUsed = variant
	b.attempts = attempts
}

// SetError records the failure that ended the run.
func (b *Builder) SetError(err error) {
	b.runErr = err
}

// AddMetadata attaches a key/value pair to the report.
func (b *Builder) AddMetadata(key, value string) {
	b.metadata[key] = value
}

// Screenshots returns the screenshots recorded so far.
func (b *Builder) Screenshots() []*browser.Screenshot {
	return b.screenshots
}

// Build finalizes the report.
func (b *Builder) Build() *Report {
	status := "succeeded"
	errText := ""
	if b.runErr != nil {
		errText = b.runErr.Error()
		status = "failed"
		if errors.Is(b.runErr, locator.ErrTargetNotFound) {
			status = "target_not_found"
		}
	}

	evidence := &Evidence{}
	for _, s := range b.screenshots {
		evidence.Screenshots = append(evidence.Screenshots, ScreenshotInfo{
			Phase:     s.Phase,
			Filepath:  s.Filepath,
			Timestamp: s.Timestamp,
			Width:     s.Width,
			Height:    s.Height,
		})
	}

	return &Report{
		ReportID:    uuid.New().String(),
		PageURL:     b.pageURL,
		Description: b.description,
		Timestamp:   b.startTime,
		Duration:    time.Since(b.startTime),
		Status:      status,
		ModelUsed:   b.modelUsed,
		Attempts:    b.attempts,
		Target:      b.target,
		Click:       b.click,
		Error:       errText,
		Evidence:    evidence,
		Metadata:    b.metadata,
	}
}

// SaveToTemp writes the report JSON to a temp file and returns its path.
func (r *Report) SaveToTemp() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("pilot_report_%s.json", r.ReportID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return path, nil
}

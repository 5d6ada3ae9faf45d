package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/flotilla/pilot-agent/internal/align"
	"github.com/flotilla/pilot-agent/internal/browser"
	"github.com/flotilla/pilot-agent/internal/locator"
	"github.com/flotilla/pilot-agent/internal/reporter"
	"github.com/flotilla/pilot-agent/internal/store"
)

// RunOptions configure one pilot run.
type RunOptions struct {
	// URL is the page to drive.
	URL string
	// Description is the target to locate and click, in plain language.
	Description string
	// DragTo, when set, turns the run into a drag: the target described by
	// Description is dragged onto the target described by DragTo.
	DragTo string
	// ScreenID keys the target cache; empty disables caching for the run.
	ScreenID string
	// CacheTTL is how long a remembered target stays usable.
	CacheTTL time.Duration
	// EvidenceDir is where screenshots are saved; empty disables saving.
	EvidenceDir string
}

// browserDriver is the slice of browser.Manager the pilot drives.
type browserDriver interface {
	LoadPage(url string) error
	DismissOverlays() error
	WaitForCanvas(timeout time.Duration) error
	FocusCanvas() error
	Context() context.Context
	Probe() (*browser.FrameMetrics, error)
	Capture(phase browser.Phase) (*browser.Screenshot, error)
	CaptureCanvas(phase browser.Phase) (*browser.Screenshot, error)
}

// inputDriver is the slice of browser.Executor the pilot drives.
type inputDriver interface {
	ClickAt(ctx context.Context, coord align.DeviceCoordinate, confidence float64) error
	DragTo(ctx context.Context, from, to align.DeviceCoordinate, confidence float64, duration, holdDuration time.Duration) error
}

// Pilot drives a full run: load the page, locate the described target,
// align it to device pixels and click it, collecting evidence throughout.
type Pilot struct {
	drv      browserDriver
	caller   locator.Caller
	exec     inputDriver
	targets  *store.Store
	uploader *reporter.S3Uploader
	log      zerolog.Logger
}

// NewPilot wires a pilot. targets and uploader may be nil to disable target
// caching and artifact upload respectively.
func NewPilot(drv browserDriver, caller locator.Caller, exec inputDriver, targets *store.Store, uploader *reporter.S3Uploader, logger zerolog.Logger) *Pilot {
	return &Pilot{
		drv:      drv,
		caller:   caller,
		exec:     exec,
		targets:  targets,
		uploader: uploader,
		log:      logger.With().Str("component", "pilot").Logger(),
	}
}

// Run executes one locate-and-click run and always returns a report, even on
// failure. The returned error is the failure that ended the run, if any.
func (p *Pilot) Run(ctx context.Context, opts RunOptions) (*reporter.Report, error) {
	builder := reporter.NewBuilder(opts.URL, opts.Description)

	runErr := p.run(ctx, opts, builder)
	if runErr != nil {
		builder.SetError(runErr)
		p.captureEvidence(builder, browser.PhaseError, opts.EvidenceDir)
	}

	report := builder.Build()

	if p.uploader != nil {
		if err := p.uploader.UploadReportWithArtifacts(ctx, report, builder.Screenshots()); err != nil {
			p.log.Warn().Err(err).Msg("artifact upload failed")
		}
	}

	return report, runErr
}

func (p *Pilot) run(ctx context.Context, opts RunOptions, builder *reporter.Builder) error {
	if err := p.drv.LoadPage(opts.URL); err != nil {
		return err
	}

	if err := p.drv.DismissOverlays(); err != nil {
		// Overlays are best effort; the locate step may still succeed.
		p.log.Warn().Err(err).Msg("overlay dismissal failed")
	}

	// Canvas apps render after load; give the surface a moment to appear and
	// take focus. Pages without a canvas still work, so both are best effort.
	if err := p.drv.WaitForCanvas(10 * time.Second); err != nil {
		p.log.Debug().Err(err).Msg("no canvas surface detected")
	} else if err := p.drv.FocusCanvas(); err != nil {
		p.log.Warn().Err(err).Msg("canvas focus failed")
	}

	bctx := p.drv.Context()

	metrics, err := p.drv.Probe()
	if err != nil {
		return fmt.Errorf("alignment probe failed: %w", err)
	}

	rec := &recordingCaller{inner: p.caller}
	targeter := NewTargeter(rec, p.log)

	// A cached location on the same screen skips the vision round trip.
	// Drags always resolve fresh since they need two live positions.
	if cached := p.recall(opts); cached != nil && opts.DragTo == "" {
		// Stored centers are in whatever space the original capture used, so
		// the context must be rebuilt for that same space.
		actx := alignContextForRecord(metrics, cached.Space)
		coord, err := align.Align(align.Point{X: cached.CenterX, Y: cached.CenterY}, actx)
		if err == nil {
			p.log.Info().Str("screen_id", opts.ScreenID).Str("space", cached.Space).Msg("using cached target location")
			builder.SetTarget(&locator.TargetRegion{
				CenterX:    cached.CenterX,
				CenterY:    cached.CenterY,
				Width:      cached.Width,
				Height:     cached.Height,
				Confidence: cached.Confidence,
				Label:      cached.Label,
			})
			if err := p.exec.ClickAt(bctx, coord, cached.Confidence); err == nil {
				builder.SetClick(coord)
				return nil
			}
			// The cached location no longer works; fall back to vision.
			p.forget(opts)
		}
	}

	img, actx, space, err := p.captureForLocate(metrics, builder, opts.EvidenceDir)
	if err != nil {
		return err
	}

	result, err := targeter.LocateAndAlign(ctx, img, opts.Description, actx)
	modelUsed, calls := rec.stats()
	builder.SetModel(modelUsed, calls)
	if err != nil {
		return err
	}

	builder.SetTarget(result.Region)
	p.remember(opts, result.Region, space)

	if opts.DragTo != "" {
		dest, err := targeter.LocateAndAlign(ctx, img, opts.DragTo, actx)
		modelUsed, calls = rec.stats()
		builder.SetModel(modelUsed, calls)
		if err != nil {
			return err
		}
		confidence := minConfidence(result.Region.Confidence, dest.Region.Confidence)
		if err := p.exec.DragTo(bctx, result.Coordinate, dest.Coordinate, confidence, 300*time.Millisecond, 100*time.Millisecond); err != nil {
			return err
		}
	} else {
		if err := p.exec.ClickAt(bctx, result.Coordinate, result.Region.Confidence); err != nil {
			return err
		}
	}
	builder.SetClick(result.Coordinate)

	p.captureEvidence(builder, browser.PhaseFinal, opts.EvidenceDir)
	return nil
}

// captureForLocate takes the screenshot the locator will analyze, preferring
// the compositor view and falling back to reading the canvas directly when
// the page renders into an offscreen buffer. It reports which coordinate
// space the image pixels live in so the location can be cached alongside it.
func (p *Pilot) captureForLocate(metrics *browser.FrameMetrics, builder *reporter.Builder, evidenceDir string) (locator.Image, align.Context, string, error) {
	shot, err := p.drv.Capture(browser.PhaseInitial)
	if err == nil {
		p.saveScreenshot(builder, shot, evidenceDir)
		img := locator.Image{Data: shot.Data, Width: shot.Width, Height: shot.Height}
		return img, metrics.AlignContext(shot.Width, shot.Height), store.SpaceViewport, nil
	}
	p.log.Warn().Err(err).Msg("viewport capture failed, trying canvas")

	shot, canvasErr := p.drv.CaptureCanvas(browser.PhaseInitial)
	if canvasErr != nil {
		return locator.Image{}, align.Context{}, "", fmt.Errorf("screenshot capture failed: %w", err)
	}
	p.saveScreenshot(builder, shot, evidenceDir)
	img := locator.Image{Data: shot.Data, Width: shot.Width, Height: shot.Height}
	return img, metrics.CanvasAlignContext(shot.Width, shot.Height), store.SpaceCanvas, nil
}

// alignContextForRecord rebuilds the alignment context a cached center was
// stored under. Canvas-space centers use the canvas internal resolution;
// viewport-space centers use the probed viewport at native size.
func alignContextForRecord(m *browser.FrameMetrics, space string) align.Context {
	if space == store.SpaceCanvas {
		return m.CanvasAlignContext(int(m.FrameWidth*m.CanvasScaleX), int(m.FrameHeight*m.CanvasScaleY))
	}
	return m.AlignContext(int(m.ViewportWidth), int(m.ViewportHeight))
}

func minConfidence(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (p *Pilot) recall(opts RunOptions) *store.TargetRecord {
	if p.targets == nil || opts.ScreenID == "" {
		return nil
	}
	rec, err := p.targets.Recall(opts.ScreenID, opts.Description, opts.CacheTTL)
	if err != nil {
		p.log.Warn().Err(err).Msg("target recall failed")
		return nil
	}
	return rec
}

func (p *Pilot) remember(opts RunOptions, region *locator.TargetRegion, space string) {
	if p.targets == nil || opts.ScreenID == "" {
		return
	}
	err := p.targets.Remember(store.TargetRecord{
		ScreenID:    opts.ScreenID,
		Description: opts.Description,
		CenterX:     region.CenterX,
		CenterY:     region.CenterY,
		Width:       region.Width,
		Height:      region.Height,
		Confidence:  region.Confidence,
		Label:       region.Label,
		Space:       space,
		LastSeen:    time.Now(),
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("target remember failed")
	}
}

func (p *Pilot) forget(opts RunOptions) {
	if p.targets == nil || opts.ScreenID == "" {
		return
	}
	if err := p.targets.Forget(opts.ScreenID, opts.Description); err != nil {
		p.log.Warn().Err(err).Msg("target forget failed")
	}
}

func (p *Pilot) captureEvidence(builder *reporter.Builder, phase browser.Phase, evidenceDir string) {
	shot, err := p.drv.Capture(phase)
	if err != nil {
		p.log.Warn().Err(err).Str("phase", string(phase)).Msg("evidence capture failed")
		return
	}
	p.saveScreenshot(builder, shot, evidenceDir)
}

func (p *Pilot) saveScreenshot(builder *reporter.Builder, shot *browser.Screenshot, evidenceDir string) {
	if evidenceDir != "" {
		if err := shot.Save(evidenceDir); err != nil {
			p.log.Warn().Err(err).Msg("screenshot save failed")
		}
	}
	builder.AddScreenshot(shot)
}

package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Manager owns the browser lifecycle and page navigation.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	log         zerolog.Logger
}

// NewManager launches a Chrome instance and returns a manager for it.
func NewManager(headless bool, logger zerolog.Logger) (*Manager, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", headless), // Only disable GPU in headless mode
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		// Hide automation detection
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	return &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		log:         logger.With().Str("component", "browser").Logger(),
	}, nil
}

// Close shuts down the browser and cleans up resources.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
}

// Context returns the browser context for running chromedp tasks.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Navigate navigates to the specified URL and waits for the body to be ready.
func (m *Manager) Navigate(url string) error {
	err := chromedp.Run(m.ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// NavigateWithTimeout navigates to URL with a specific timeout.
func (m *Manager) NavigateWithTimeout(url string, timeout time.Duration) error {
	timeoutCtx, timeoutCancel := context.WithTimeout(m.ctx, timeout)
	defer timeoutCancel()

	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if err == context.DeadlineExceeded {
			return fmt.Errorf("timeout after %v while loading %s", timeout, url)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// LoadPage navigates to an app URL with a 45-second timeout and pins the
// viewport to the capture resolution. Emulating here, before any geometry
// probe or screenshot, keeps the probed metrics valid for every later
// capture; re-emulating per capture would invalidate them.
func (m *Manager) LoadPage(url string) error {
	const pageLoadTimeout = 45 * time.Second
	m.log.Info().Str("url", url).Msg("loading page")
	if err := m.NavigateWithTimeout(url, pageLoadTimeout); err != nil {
		return err
	}
	if err := chromedp.Run(m.ctx, chromedp.EmulateViewport(viewportWidth, viewportHeight)); err != nil {
		return fmt.Errorf("failed to emulate viewport: %w", err)
	}
	return nil
}

// WaitForCanvas waits until a canvas element is visible, for pages that
// render their surface after load.
func (m *Manager) WaitForCanvas(timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(timeoutCtx, chromedp.WaitVisible("canvas", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("no canvas appeared within %v: %w", timeout, err)
	}
	return nil
}

// FocusCanvas gives the canvas keyboard/pointer focus so subsequent input
// registers with the app rather than the surrounding page.
func (m *Manager) FocusCanvas() error {
	script := `
(function() {
    const canvas = document.querySelector('canvas');
    if (!canvas) {
        return false;
    }
    if (!canvas.hasAttribute('tabindex')) {
        canvas.setAttribute('tabindex', '0');
    }
    canvas.focus();
    return document.activeElement === canvas;
})();
`
	var focused bool
	if err := chromedp.Run(m.ctx, chromedp.Evaluate(script, &focused)); err != nil {
		return fmt.Errorf("failed to focus canvas: %w", err)
	}
	if !focused {
		return fmt.Errorf("canvas did not take focus")
	}
	return nil
}

// DismissOverlays injects JavaScript to accept cookie consent dialogs and
// remove ad elements that would occlude the content we screenshot.
func (m *Manager) DismissOverlays() error {
	script := `
(function() {
    const adSelectors = [
        '[id*="ad-"]', '[id*="ads-"]', '[class*="ad-"]', '[class*="ads-"]',
        '[id*="banner"]', '[class*="banner"]',
        'iframe[src*="doubleclick"]', 'iframe[src*="googlesyndication"]',
        '.adsbygoogle', '[id^="google_ads"]',
    ];

    let removed = 0;
    adSelectors.forEach(selector => {
        try {
            document.querySelectorAll(selector).forEach(el => {
                // Never remove the canvas or its containers
                if (!el.querySelector('canvas') && !el.closest('[id*="app"]') && !el.closest('[class*="app"]')) {
                    el.remove();
                    removed++;
                }
            });
        } catch (e) {
            // Ignore invalid selectors
        }
    });

    const consentHandled = (function() {
        const containers = document.querySelectorAll('[id*="cookie"], [class*="cookie"], [id*="consent"], [class*="consent"], [id*="gdpr"], [class*="gdpr"]');
        for (let container of containers) {
            const buttons = container.querySelectorAll('button, a[role="button"]');
            for (let btn of buttons) {
                const text = btn.textContent.toLowerCase().trim();
                const id = (btn.id || '').toLowerCase();
                const className = (btn.className || '').toLowerCase();
                const isAccept = (
                    (text.includes('accept all') || text.includes('allow all') ||
                     text.includes('agree') || text === 'accept' || text === 'ok' ||
                     id.includes('accept') || className.includes('accept')) &&
                    !text.includes('play') && !text.includes('start')
                );
                if (isAccept) {
                    btn.click();
                    return true;
                }
            }
        }
        return false;
    })();

    return JSON.stringify({ adsRemoved: removed, consentHandled: consentHandled });
})();
`

	var result string
	if err := chromedp.Run(m.ctx, chromedp.Evaluate(script, &result)); err != nil {
		return fmt.Errorf("failed to dismiss overlays: %w", err)
	}
	m.log.Debug().Str("result", result).Msg("overlay sweep done")
	return nil
}

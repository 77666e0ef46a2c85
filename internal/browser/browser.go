// Package browser provides the playwright-backed implementation of the
// driver capability surface, either by launching a controlled Chromium
// or by attaching to a caller-prepared CDP endpoint.
package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/mkuran/shopbot/internal/driver"
)

type Options struct {
	Headless       bool
	WSEndpoint     string // non-empty: attach instead of launch
	NavTimeout     time.Duration
	ActionTimeout  time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		NavTimeout:     30 * time.Second,
		ActionTimeout:  10 * time.Second,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-US",
	}
}

type Browser struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	context  playwright.BrowserContext
	opts     *Options
	attached bool
	logger   *slog.Logger
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b := &Browser{
		pw:     pw,
		opts:   opts,
		logger: slog.Default().With("component", "browser"),
	}

	if opts.WSEndpoint != "" {
		if err := b.attach(); err != nil {
			pw.Stop()
			return nil, err
		}
	} else {
		if err := b.launch(); err != nil {
			pw.Stop()
			return nil, err
		}
	}

	if err := b.context.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		b.logger.Warn("failed to install stealth script", "error", err)
	}

	return b, nil
}

func (b *Browser) launch() error {
	launched, err := b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--window-size=1920,1080",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := launched.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(b.opts.UserAgent),
		Locale:    playwright.String(b.opts.Locale),
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
	})
	if err != nil {
		launched.Close()
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	b.browser = launched
	b.context = context
	b.logger.Info("browser launched", "headless", b.opts.Headless)
	return nil
}

// attach connects to a user-prepared debugging endpoint and reuses its
// default context so an existing signed-in profile carries over.
func (b *Browser) attach() error {
	connected, err := b.pw.Chromium.ConnectOverCDP(b.opts.WSEndpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", b.opts.WSEndpoint, err)
	}

	contexts := connected.Contexts()
	if len(contexts) > 0 {
		b.context = contexts[0]
	} else {
		context, err := connected.NewContext()
		if err != nil {
			connected.Close()
			return fmt.Errorf("failed to create context on attached browser: %w", err)
		}
		b.context = context
	}

	b.browser = connected
	b.attached = true
	b.logger.Info("attached to browser", "endpoint", b.opts.WSEndpoint)
	return nil
}

// NewPage opens a fresh tab implementing the driver surface.
func (b *Browser) NewPage() (driver.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.ActionTimeout.Milliseconds()))
	return &pwPage{
		page:          page,
		navTimeout:    b.opts.NavTimeout,
		actionTimeout: b.opts.ActionTimeout,
	}, nil
}

// Alive reports whether the underlying browser connection still holds.
func (b *Browser) Alive() bool {
	return b.browser != nil && b.browser.IsConnected()
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil && !b.attached {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

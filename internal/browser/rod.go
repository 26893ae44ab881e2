package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the Rod-backed driver.
type Config struct {
	// Remote is the WebSocket URL of an externally managed Chrome
	// instance. Empty launches a local Chrome via launcher.
	Remote string
	// ProfileDir is a persistent user-data directory, required for
	// pre-installed extensions to survive across launches.
	ProfileDir string
	// Extensions is a list of unpacked extension directories to load
	// (ad blockers, cookie-consent handlers).
	Extensions []string
	// MemoryLimit in bytes; the browser process is recycled once its JS
	// heap exceeds this. Default 1GB.
	MemoryLimit int64
	// RecycleInterval bounds process lifetime regardless of memory use.
	// Default 4h.
	RecycleInterval time.Duration
	// ResourceBlocking lists resource types (image, font, media,
	// stylesheet) to block during navigation.
	ResourceBlocking []string
	// Stealth enables go-rod/stealth page creation to obscure the
	// automation fingerprint.
	Stealth bool
	// NavTimeout bounds a single page load. Default 60s (spec §4.3 step 2).
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RodDriver is the go-rod-backed Driver implementation, adapted from the
// production browser manager: persistent profile, stealth tabs, memory-
// and age-based recycling, MHTML and screenshot export.
type RodDriver struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
}

// NewRodDriver launches (or connects to) Chrome per cfg and returns a
// ready Driver.
func NewRodDriver(cfg Config) (*RodDriver, error) {
	cfg.defaults()
	d := &RodDriver{cfg: cfg}
	if err := d.launch(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *RodDriver) launch() error {
	var wsURL string

	if d.cfg.Remote != "" {
		wsURL = d.cfg.Remote
		d.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		if d.cfg.ProfileDir != "" {
			l = l.UserDataDir(d.cfg.ProfileDir)
		}
		if len(d.cfg.Extensions) > 0 {
			l = l.Set("load-extension", d.cfg.Extensions...)
		}

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		d.lnch = l
		d.cfg.Logger.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		d.cfg.Logger.Warn("browser: ignore cert errors failed", "error", err)
	}

	d.browser = b
	d.startAt = time.Now()
	return nil
}

// Capture implements Driver.
func (d *RodDriver) Capture(ctx context.Context, url string) (Capture, error) {
	if err := d.recycleIfDue(); err != nil {
		return Capture{}, fmt.Errorf("browser: recycle before capture: %w", err)
	}

	d.mu.Lock()
	b := d.browser
	d.mu.Unlock()
	if b == nil || d.closed {
		return Capture{}, fmt.Errorf("browser: driver is closed")
	}

	var page *rod.Page
	var err error
	if d.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return Capture{}, fmt.Errorf("browser: open tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavTimeout)
	defer cancel()

	httpStatus, rawHTML, err := navigateAndCapture(page.Context(navCtx), url, d.cfg.ResourceBlocking)
	if err != nil {
		return Capture{}, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if httpStatus == 0 {
		return Capture{}, fmt.Errorf("browser: navigate %s: no main document response captured", url)
	}

	cap := Capture{HTTPStatus: httpStatus, RawHTML: rawHTML}

	if httpStatus < 200 || httpStatus >= 300 {
		return cap, nil
	}

	if err := page.Context(navCtx).WaitLoad(); err != nil {
		d.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	dom, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return cap, fmt.Errorf("browser: get rendered DOM: %w", err)
	}
	cap.RenderedDOM = []byte(dom.Value.Str())

	mhtml, err := page.Context(navCtx).WriteMHTML()
	if err != nil {
		d.cfg.Logger.Warn("browser: mhtml export failed", "url", url, "error", err)
	} else {
		cap.MHTML = mhtml
	}

	shot, err := page.Context(navCtx).Screenshot(true, nil)
	if err != nil {
		d.cfg.Logger.Warn("browser: screenshot failed", "url", url, "error", err)
	} else {
		cap.Screenshot = shot
	}

	return cap, nil
}

// navigateAndCapture hijacks every request on the page: blocked resource
// types are failed outright, everything else (including the main
// document) is loaded and continued, with the main document's raw bytes
// and HTTP status recorded exactly as received, ahead of any DOM
// rendering (spec §4.1: content_hash is over raw bytes).
func navigateAndCapture(page *rod.Page, url string, resourceBlocking []string) (int, []byte, error) {
	blocked := make(map[string]bool, len(resourceBlocking))
	for _, t := range resourceBlocking {
		blocked[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	defer router.Stop()

	var status int
	var raw []byte
	var once sync.Once

	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[strings.ToLower(string(h.Request.Type()))] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.MustLoadResponse()
		if h.Request.URL().String() == url {
			once.Do(func() {
				status = h.Response.Payload().ResponseCode
				raw = h.Response.Payload().Body
			})
		}
	})
	go router.Run()

	if err := page.Navigate(url); err != nil {
		return 0, nil, err
	}
	return status, raw, nil
}

// recycleIfDue kills and relaunches Chrome if either the process has run
// longer than RecycleInterval or its JS heap has grown past MemoryLimit,
// checked before every capture.
func (d *RodDriver) recycleIfDue() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("browser: driver is closed")
	}

	if time.Since(d.startAt) > d.cfg.RecycleInterval {
		d.cfg.Logger.Info("browser: recycle interval reached")
		d.cleanupLocked()
		return d.launch()
	}

	used, err := getJSHeapUsage(d.browser)
	if err != nil {
		d.cfg.Logger.Debug("browser: heap check failed", "error", err)
		return nil
	}
	if used > d.cfg.MemoryLimit {
		d.cfg.Logger.Info("browser: memory limit exceeded", "used", used, "limit", d.cfg.MemoryLimit)
		d.cleanupLocked()
		return d.launch()
	}
	return nil
}

// getJSHeapUsage reads performance.memory.usedJSHeapSize in the first open
// page, used as a proxy for overall process memory use.
func getJSHeapUsage(b *rod.Browser) (int64, error) {
	if b == nil {
		return 0, fmt.Errorf("browser: no browser handle for heap check")
	}
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("browser: no pages for heap check")
	}

	res, err := pages[0].Eval(`() => {
		if (performance.memory) {
			return performance.memory.usedJSHeapSize;
		}
		return 0;
	}`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}

func (d *RodDriver) cleanupLocked() {
	if d.browser != nil {
		d.browser.Close()
		d.browser = nil
	}
	if d.lnch != nil {
		d.lnch.Cleanup()
		d.lnch = nil
	}
}

// Close implements Driver.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cleanupLocked()
	return nil
}

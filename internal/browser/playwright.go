package browser

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
)

const playwrightInstallTimeout = 5 * time.Minute

var searchURLPattern = regexp.MustCompile(`/search\?q=`)

// Playwright resource types dropped when blocking is enabled.
var blockedPlaywrightTypes = map[string]bool{
	"image":    true,
	"font":     true,
	"media":    true,
	"imageset": true,
}

// PlaywrightExecutor is the playwright-backed ActionExecutor.
type PlaywrightExecutor struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	cfg    config.BrowserConfig
	host   string
	logger *zap.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ ActionExecutor = (*PlaywrightExecutor)(nil)

// NewPlaywrightExecutor installs Chromium if needed, launches it and opens one page.
func NewPlaywrightExecutor(ctx context.Context, cfg config.BrowserConfig, host string, logger *zap.Logger) (*PlaywrightExecutor, error) {
	p := &PlaywrightExecutor{cfg: cfg, host: host, logger: logger.Named("playwright_executor")}

	p.logger.Info("Verifying Playwright browser installation...")
	if err := p.ensureInstallation(ctx); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}
	p.pw = pw

	browser, err := pw.Chromium.Launch(p.launchOptions())
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	p.browser = browser

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:      &playwright.Size{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		ReducedMotion: playwright.ReducedMotionReduce,
	})
	if err != nil {
		p.shutdown()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	p.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		p.shutdown()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(millis(cfg.ActionTimeout))
	page.SetDefaultNavigationTimeout(millis(cfg.NavigationTimeout))
	p.page = page

	if cfg.BlockResources {
		if err := page.Route("**/*", blockRoute); err != nil {
			p.shutdown()
			return nil, fmt.Errorf("failed to install resource blocking: %w", err)
		}
	}

	p.logger.Info("Browser started.", zap.String("browser_version", browser.Version()), zap.Bool("headless", cfg.Headless))
	return p, nil
}

func (p *PlaywrightExecutor) ensureInstallation(ctx context.Context) error {
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			errCh <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func (p *PlaywrightExecutor) launchOptions() playwright.BrowserTypeLaunchOptions {
	args := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-blink-features=AutomationControlled",
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.cfg.Headless),
		Args:     append(args, p.cfg.Args...),
		Timeout:  playwright.Float(60000),
	}
}

func blockRoute(route playwright.Route) {
	if blockedPlaywrightTypes[route.Request().ResourceType()] {
		_ = route.Abort("blockedbyclient")
		return
	}
	_ = route.Continue()
}

// do runs a blocking playwright call and stops waiting when ctx ends.
// Playwright calls are bounded by their own timeouts, so the goroutine exits.
func (p *PlaywrightExecutor) do(ctx context.Context, op string, fn func() error) error {
	if p.closed.Load() || p.page == nil || p.page.IsClosed() {
		return fmt.Errorf("%s: %w", op, ErrExecutorClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		if p.closed.Load() || p.page.IsClosed() {
			return fmt.Errorf("%s: %w", op, ErrExecutorClosed)
		}
		return unavailable(op, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PlaywrightExecutor) evaluate(ctx context.Context, op, script string) (interface{}, error) {
	var res interface{}
	err := p.do(ctx, op, func() error {
		var err error
		res, err = p.page.Evaluate(script)
		return err
	})
	return res, err
}

func (p *PlaywrightExecutor) Navigate(ctx context.Context, target string) error {
	err := p.do(ctx, "navigate", func() error {
		if _, err := p.page.Goto(target, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
			Timeout:   playwright.Float(millis(p.cfg.NavigationTimeout)),
		}); err != nil {
			return err
		}
		return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateDomcontentloaded})
	})
	if err != nil {
		return err
	}
	if err := sleep(ctx, settleDelay); err != nil {
		return err
	}
	if onHost(target, p.host) {
		_ = p.do(ctx, "dismiss overlay", func() error { return p.page.Keyboard().Press("Escape") })
	}
	return nil
}

func (p *PlaywrightExecutor) Screenshot(ctx context.Context, viewportOnly bool) ([]byte, error) {
	var buf []byte
	err := p.do(ctx, "screenshot", func() error {
		var err error
		buf, err = p.page.Screenshot(playwright.PageScreenshotOptions{
			FullPage: playwright.Bool(!viewportOnly),
			Type:     playwright.ScreenshotTypePng,
			Timeout:  playwright.Float(millis(p.cfg.ActionTimeout)),
		})
		return err
	})
	return buf, err
}

func (p *PlaywrightExecutor) Scroll(ctx context.Context, dir Direction) error {
	if _, err := p.evaluate(ctx, "scroll", scrollScript(dir)); err != nil {
		return err
	}
	return sleep(ctx, 400*time.Millisecond)
}

func (p *PlaywrightExecutor) Zoom(ctx context.Context, factor float64) error {
	if _, err := p.evaluate(ctx, "zoom", zoomScript(factor)); err != nil {
		return err
	}
	return sleep(ctx, 300*time.Millisecond)
}

func (p *PlaywrightExecutor) PageHeight(ctx context.Context) (int, error) {
	res, err := p.evaluate(ctx, "page height", pageHeightScript)
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, unavailable("page height", fmt.Errorf("unexpected result type %T", res))
	}
}

func (p *PlaywrightExecutor) TextInRegion(ctx context.Context, topPct, bottomPct float64) (string, error) {
	res, err := p.evaluate(ctx, "text in region", textInRegionScript(topPct, bottomPct))
	if err != nil {
		return "", err
	}
	text, _ := res.(string)
	return text, nil
}

func (p *PlaywrightExecutor) ClickByRole(ctx context.Context, role, text string) error {
	loc := p.page.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{Name: text})
	return p.clickFirst(ctx, "click by role", loc, text)
}

// ClickByText prefers a link with that name before matching any text.
func (p *PlaywrightExecutor) ClickByText(ctx context.Context, text string) error {
	link := p.page.GetByRole(playwright.AriaRole("link"), playwright.PageGetByRoleOptions{Name: text})
	if err := p.clickFirst(ctx, "click link", link, text); err == nil || !isUnavailable(err) {
		return err
	}
	loc := p.page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(false)})
	return p.clickFirst(ctx, "click by text", loc, text)
}

func (p *PlaywrightExecutor) clickFirst(ctx context.Context, op string, loc playwright.Locator, text string) error {
	err := p.do(ctx, op, func() error {
		n, err := loc.Count()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no element matching %q", text)
		}
		first := loc.First()
		if err := first.ScrollIntoViewIfNeeded(); err != nil {
			return err
		}
		if err := first.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(millis(p.cfg.ActionTimeout))}); err != nil {
			return err
		}
		// A click that does not navigate still leaves the page loaded.
		return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateDomcontentloaded})
	})
	if err != nil {
		return err
	}
	return sleep(ctx, settleDelay)
}

// SubmitSearch uses the site's "/" shortcut on the configured host and a
// search input found by role or placeholder anywhere else.
func (p *PlaywrightExecutor) SubmitSearch(ctx context.Context, query string) error {
	if onHost(p.page.URL(), p.host) {
		return p.do(ctx, "submit search", func() error {
			if err := typeSearch(ctx, p.page.Keyboard(), query); err != nil {
				return err
			}
			return p.page.WaitForURL(searchURLPattern, playwright.PageWaitForURLOptions{Timeout: playwright.Float(millis(searchWaitTimeout))})
		})
	}

	return p.do(ctx, "submit search", func() error {
		box := p.page.GetByRole(playwright.AriaRole("searchbox"))
		if n, _ := box.Count(); n == 0 {
			box = p.page.GetByPlaceholder("Search")
		}
		if n, err := box.Count(); err != nil || n == 0 {
			return fmt.Errorf("no search input on page")
		}
		first := box.First()
		if err := first.Fill(query); err != nil {
			return err
		}
		return first.Press("Enter")
	})
}

// searchKeyboard is the part of playwright.Keyboard the search shortcut uses.
type searchKeyboard interface {
	Press(key string, options ...playwright.KeyboardPressOptions) error
	Type(text string, options ...playwright.KeyboardTypeOptions) error
}

// typeSearch opens the search box with "/" and submits query. The pauses
// between keystrokes stop as soon as ctx ends.
func typeSearch(ctx context.Context, kbd searchKeyboard, query string) error {
	if err := kbd.Press("/"); err != nil {
		return err
	}
	if err := sleep(ctx, settleDelay); err != nil {
		return err
	}
	if err := kbd.Type(query, playwright.KeyboardTypeOptions{Delay: playwright.Float(float64(searchKeyDelay.Milliseconds()))}); err != nil {
		return err
	}
	if err := sleep(ctx, 200*time.Millisecond); err != nil {
		return err
	}
	return kbd.Press("Enter")
}

func (p *PlaywrightExecutor) URL(ctx context.Context) (string, error) {
	var u string
	err := p.do(ctx, "read url", func() error {
		u = p.page.URL()
		return nil
	})
	return u, err
}

func (p *PlaywrightExecutor) Title(ctx context.Context) (string, error) {
	var t string
	err := p.do(ctx, "read title", func() error {
		var err error
		t, err = p.page.Title()
		return err
	})
	return t, err
}

// Close tears down page, context, browser and driver. It is safe to call twice.
func (p *PlaywrightExecutor) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		done := make(chan error, 1)
		go func() { done <- p.shutdown() }()
		select {
		case err = <-done:
			p.logger.Info("Browser closed.")
		case <-ctx.Done():
			err = ctx.Err()
			p.logger.Warn("Timed out waiting for browser to close.", zap.Error(err))
		}
	})
	return err
}

func (p *PlaywrightExecutor) shutdown() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.context != nil {
		keep(p.context.Close())
	}
	if p.browser != nil {
		keep(p.browser.Close())
	}
	if p.pw != nil {
		keep(p.pw.Stop())
	}
	return firstErr
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

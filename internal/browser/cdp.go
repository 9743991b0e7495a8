package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
)

const (
	settleDelay       = 500 * time.Millisecond
	searchKeyDelay    = 80 * time.Millisecond
	searchWaitTimeout = 8 * time.Second
)

// Resource types never fetched when blocking is enabled. Layout still renders.
var blockedResourceTypes = []network.ResourceType{
	network.ResourceTypeImage,
	network.ResourceTypeFont,
	network.ResourceTypeMedia,
}

// CDPExecutor is the chromedp-backed ActionExecutor.
type CDPExecutor struct {
	ctx         context.Context // tab context; carries the CDP target
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	host        string
	logger      *zap.Logger
	closed      atomic.Bool
}

var _ ActionExecutor = (*CDPExecutor)(nil)

// NewCDPExecutor starts a browser process and opens a single tab.
func NewCDPExecutor(ctx context.Context, cfg config.BrowserConfig, host string, logger *zap.Logger) (*CDPExecutor, error) {
	log := logger.Named("cdp_executor")

	// The browser lives until Close, not until the caller's ctx ends.
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), buildAllocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	e := &CDPExecutor{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		host:        host,
		logger:      log,
	}

	startup := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight), 1, false),
	}
	if cfg.BlockResources {
		e.listenForBlockedRequests()
		startup = append(startup, fetch.Enable().WithPatterns(blockPatterns()))
	}

	// First Run launches the process.
	if err := e.run(ctx, cfg.NavigationTimeout, "browser startup", startup...); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	log.Info("Browser started.",
		zap.Bool("headless", cfg.Headless),
		zap.Bool("block_resources", cfg.BlockResources),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight))
	return e, nil
}

func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+8)
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}
	// Defaults include headless; re-set explicitly from config.
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.DisableGPU,
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if runtime.GOOS == "linux" {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-dev-shm-usage", true))
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

func blockPatterns() []*fetch.RequestPattern {
	patterns := make([]*fetch.RequestPattern, 0, len(blockedResourceTypes))
	for _, rt := range blockedResourceTypes {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: rt,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

// listenForBlockedRequests fails every paused request. Only blocked
// resource types are paused, so everything that reaches here is dropped.
func (e *CDPExecutor) listenForBlockedRequests() {
	chromedp.ListenTarget(e.ctx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(e.ctx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(e.ctx, c.Target)
			if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil && e.ctx.Err() == nil {
				e.logger.Debug("Failed to block request.", zap.String("url", paused.Request.URL), zap.Error(err))
			}
		}()
	})
}

// run executes actions bound to both the tab lifetime and ctx, under timeout.
func (e *CDPExecutor) run(ctx context.Context, timeout time.Duration, op string, actions ...chromedp.Action) error {
	if e.closed.Load() || e.ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ErrExecutorClosed)
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	runCtx, runCancel := CombineContext(e.ctx, opCtx)
	defer runCancel()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if e.ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ErrExecutorClosed)
	}
	if opCtx.Err() == context.DeadlineExceeded {
		e.logger.Debug("CDP action timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return unavailable(op, fmt.Errorf("timed out after %v", timeout))
	}
	return unavailable(op, err)
}

func (e *CDPExecutor) eval(ctx context.Context, op, script string, res interface{}) error {
	return e.run(ctx, e.cfg.ActionTimeout, op, chromedp.Evaluate(script, res, func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true)
	}))
}

func (e *CDPExecutor) Navigate(ctx context.Context, target string) error {
	err := e.run(ctx, e.cfg.NavigationTimeout, "navigate",
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
	)
	if err != nil {
		return err
	}
	// Dismiss any overlay the landing page opens.
	if e.onHost(target) {
		_ = e.run(ctx, e.cfg.ActionTimeout, "dismiss overlay", chromedp.KeyEvent(kb.Escape), chromedp.Sleep(300*time.Millisecond))
	}
	return nil
}

func (e *CDPExecutor) Screenshot(ctx context.Context, viewportOnly bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if !viewportOnly {
		// Quality 100 keeps PNG encoding.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := e.run(ctx, e.cfg.ActionTimeout, "screenshot", action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *CDPExecutor) Scroll(ctx context.Context, dir Direction) error {
	var ok bool
	if err := e.eval(ctx, "scroll", scrollScript(dir), &ok); err != nil {
		return err
	}
	return sleep(ctx, 400*time.Millisecond)
}

func (e *CDPExecutor) Zoom(ctx context.Context, factor float64) error {
	var ok bool
	if err := e.eval(ctx, "zoom", zoomScript(factor), &ok); err != nil {
		return err
	}
	return sleep(ctx, 300*time.Millisecond)
}

func (e *CDPExecutor) PageHeight(ctx context.Context) (int, error) {
	var h float64
	if err := e.eval(ctx, "page height", pageHeightScript, &h); err != nil {
		return 0, err
	}
	return int(h), nil
}

func (e *CDPExecutor) TextInRegion(ctx context.Context, topPct, bottomPct float64) (string, error) {
	var text string
	if err := e.eval(ctx, "text in region", textInRegionScript(topPct, bottomPct), &text); err != nil {
		return "", err
	}
	return text, nil
}

func (e *CDPExecutor) ClickByRole(ctx context.Context, role, text string) error {
	return e.click(ctx, "click by role", clickByRoleScript(role, text), text)
}

// ClickByText prefers a link with that name before matching any text.
func (e *CDPExecutor) ClickByText(ctx context.Context, text string) error {
	if err := e.click(ctx, "click link", clickByRoleScript("link", text), text); err == nil {
		return nil
	} else if !isUnavailable(err) {
		return err
	}
	return e.click(ctx, "click by text", clickByTextScript(text), text)
}

func (e *CDPExecutor) click(ctx context.Context, op, script, text string) error {
	var clicked bool
	if err := e.eval(ctx, op, script, &clicked); err != nil {
		return err
	}
	if !clicked {
		return unavailable(op, fmt.Errorf("no element matching %q", text))
	}
	// Clicks on links trigger a navigation; wait for the next document.
	if err := sleep(ctx, settleDelay); err != nil {
		return err
	}
	return e.run(ctx, e.cfg.NavigationTimeout, op+" settle", chromedp.WaitReady("body", chromedp.ByQuery))
}

// SubmitSearch uses the site's "/" shortcut on the configured host and a
// focused search input anywhere else.
func (e *CDPExecutor) SubmitSearch(ctx context.Context, query string) error {
	current, err := e.URL(ctx)
	if err != nil {
		return err
	}
	if e.onHost(current) {
		return e.shortcutSearch(ctx, query)
	}

	var focused bool
	if err := e.eval(ctx, "focus searchbox", focusSearchboxScript, &focused); err != nil {
		return err
	}
	if !focused {
		return unavailable("submit search", fmt.Errorf("no search input on page"))
	}
	return e.run(ctx, e.cfg.NavigationTimeout, "submit search",
		chromedp.KeyEvent(query),
		chromedp.KeyEvent(kb.Enter),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (e *CDPExecutor) shortcutSearch(ctx context.Context, query string) error {
	actions := []chromedp.Action{chromedp.KeyEvent("/"), chromedp.Sleep(settleDelay)}
	for _, r := range query {
		actions = append(actions, chromedp.KeyEvent(string(r)), chromedp.Sleep(searchKeyDelay))
	}
	actions = append(actions, chromedp.Sleep(200*time.Millisecond), chromedp.KeyEvent(kb.Enter))
	timeout := e.cfg.ActionTimeout + time.Duration(len(query))*searchKeyDelay
	if err := e.run(ctx, timeout, "submit search", actions...); err != nil {
		return err
	}

	deadline := time.Now().Add(searchWaitTimeout)
	for time.Now().Before(deadline) {
		current, err := e.URL(ctx)
		if err != nil {
			return err
		}
		if e.onHost(current) && strings.Contains(current, "/search") {
			return nil
		}
		if err := sleep(ctx, 250*time.Millisecond); err != nil {
			return err
		}
	}
	return unavailable("submit search", fmt.Errorf("results page did not load within %v", searchWaitTimeout))
}

func (e *CDPExecutor) URL(ctx context.Context) (string, error) {
	var u string
	if err := e.run(ctx, e.cfg.ActionTimeout, "read url", chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (e *CDPExecutor) Title(ctx context.Context) (string, error) {
	var t string
	if err := e.run(ctx, e.cfg.ActionTimeout, "read title", chromedp.Title(&t)); err != nil {
		return "", err
	}
	return t, nil
}

// Close shuts the tab and the browser process. It is safe to call twice.
func (e *CDPExecutor) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = chromedp.Cancel(e.ctx)
		e.cancel()
		e.allocCancel()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("Browser closed.")
		return nil
	case <-ctx.Done():
		e.logger.Warn("Timed out waiting for browser to close.", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (e *CDPExecutor) onHost(rawURL string) bool {
	return onHost(rawURL, e.host)
}

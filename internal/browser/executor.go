// Package browser drives a real Chromium instance through a small set of
// selector-free actions. Two drivers are available: chromedp (default) and playwright.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
)

var (
	// ErrActionUnavailable wraps any single action that could not be carried out.
	// The browser itself is still usable.
	ErrActionUnavailable = errors.New("browser action unavailable")
	// ErrExecutorClosed is returned once the browser is gone.
	ErrExecutorClosed = errors.New("browser executor closed")
)

// Direction is a scroll target.
type Direction string

const (
	ScrollDown   Direction = "down"
	ScrollUp     Direction = "up"
	ScrollTop    Direction = "top"
	ScrollBottom Direction = "bottom"
)

// Zoom bounds applied by every driver.
const (
	MinZoom = 0.25
	MaxZoom = 2.0
)

// ActionExecutor is the browser capability the navigator and extractor depend on.
type ActionExecutor interface {
	Navigate(ctx context.Context, url string) error
	// Screenshot returns PNG bytes of the viewport, or of the full page when viewportOnly is false.
	Screenshot(ctx context.Context, viewportOnly bool) ([]byte, error)
	Scroll(ctx context.Context, dir Direction) error
	Zoom(ctx context.Context, factor float64) error
	PageHeight(ctx context.Context) (int, error)
	// TextInRegion returns visible text whose document Y lies between topPct and bottomPct of the page height.
	TextInRegion(ctx context.Context, topPct, bottomPct float64) (string, error)
	ClickByRole(ctx context.Context, role, text string) error
	ClickByText(ctx context.Context, text string) error
	SubmitSearch(ctx context.Context, query string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// ClampZoom bounds a zoom factor to [MinZoom, MaxZoom].
func ClampZoom(factor float64) float64 {
	if factor < MinZoom {
		return MinZoom
	}
	if factor > MaxZoom {
		return MaxZoom
	}
	return factor
}

// NewExecutor launches the driver selected by cfg.Driver. host is the site
// whose keyboard search shortcut SubmitSearch may use.
func NewExecutor(ctx context.Context, cfg config.BrowserConfig, host string, logger *zap.Logger) (ActionExecutor, error) {
	switch cfg.Driver {
	case config.DriverChromedp, "":
		return NewCDPExecutor(ctx, cfg, host, logger)
	case config.DriverPlaywright:
		return NewPlaywrightExecutor(ctx, cfg, host, logger)
	default:
		return nil, fmt.Errorf("unsupported browser driver: %s", cfg.Driver)
	}
}

func isUnavailable(err error) bool {
	return errors.Is(err, ErrActionUnavailable)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrActionUnavailable, err)
}

// onHost reports whether rawURL is on host or its www. subdomain.
func onHost(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || host == "" {
		return false
	}
	h := strings.ToLower(u.Hostname())
	host = strings.ToLower(host)
	return h == host || h == "www."+host
}

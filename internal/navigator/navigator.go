// Package navigator runs the observe, classify, reconcile, decide and act loop
// that walks the browser from the start page to the goal's terminal page.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/relscout/internal/browser"
	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
	"github.com/xkilldash9x/relscout/internal/state"
	"github.com/xkilldash9x/relscout/internal/vision"
)

var (
	// ErrNavigationExhausted means the step budget ran out before the terminal page.
	ErrNavigationExhausted = errors.New("navigation step budget exhausted")
	// ErrActionExecutionFailed means the browser can no longer be driven at all.
	ErrActionExecutionFailed = errors.New("action execution failed")
)

// Observation is what one step saw. Image is nil when capture failed.
type Observation struct {
	Image     []byte
	URL       string
	Title     string
	StepIndex int
}

// StepResult is everything observed and decided during one step.
type StepResult struct {
	Index     int                    `json:"index"`
	URL       string                 `json:"url"`
	Title     string                 `json:"title"`
	Image     []byte                 `json:"-"`
	Heuristic state.Resolution       `json:"heuristic"`
	Vision    *vision.Classification `json:"vision"`
	Previous  state.PageState        `json:"previous"`
	State     state.PageState        `json:"state"`
	Intent    ActionIntent           `json:"intent"`
	Terminal  bool                   `json:"terminal"`
	Reasons   []string               `json:"reasons"`
	Elapsed   time.Duration          `json:"elapsed_ns"`
}

func (r *StepResult) addReason(code record.ErrorCode, err error) {
	reason := string(code)
	if err != nil {
		reason += ": " + err.Error()
	}
	r.Reasons = append(r.Reasons, reason)
}

// StepSink receives each StepResult as soon as the step completes.
type StepSink interface {
	RecordStep(step StepResult) error
}

// TerminalHandle describes the page the loop stopped on.
type TerminalHandle struct {
	State state.PageState `json:"state"`
	URL   string          `json:"url"`
	Title string          `json:"title"`
	Steps int             `json:"steps"`
}

// Navigator drives one browser towards a plan's terminal page.
type Navigator struct {
	exec     browser.ActionExecutor
	observer vision.Observer
	resolver state.Resolver
	cfg      config.NavigatorConfig
	limiter  *rate.Limiter
	sink     StepSink
	logger   *zap.Logger
}

// New creates a navigator. sink may be nil.
func New(exec browser.ActionExecutor, observer vision.Observer, cfg config.NavigatorConfig, sink StepSink, logger *zap.Logger) *Navigator {
	limit := rate.Inf
	if cfg.ActionDelay > 0 {
		limit = rate.Every(cfg.ActionDelay)
	}
	return &Navigator{
		exec:     exec,
		observer: observer,
		resolver: state.NewResolver(cfg.Host),
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		sink:     sink,
		logger:   logger.Named("navigator"),
	}
}

// Run navigates to the start URL once and then steps until the goal's
// terminal category is reached or the budget is spent.
func (n *Navigator) Run(ctx context.Context, p plan.Plan) (TerminalHandle, error) {
	terminal := p.Goal.Behavior().Terminal
	n.logger.Info("Starting navigation.",
		zap.String("start_url", n.cfg.StartURL),
		zap.String("target", p.Target),
		zap.String("terminal", string(terminal)),
		zap.Int("max_steps", n.cfg.MaxSteps))

	if err := n.exec.Navigate(ctx, n.cfg.StartURL); err != nil {
		if ctx.Err() != nil {
			return TerminalHandle{}, fmt.Errorf("navigation cancelled: %w", ctx.Err())
		}
		return TerminalHandle{}, fmt.Errorf("%w: could not open %s: %w", ErrActionExecutionFailed, n.cfg.StartURL, err)
	}

	previous := state.Initial
	var last StepResult
	for i := 0; i < n.cfg.MaxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return TerminalHandle{State: previous, Steps: i}, fmt.Errorf("navigation cancelled: %w", err)
		}

		start := time.Now()
		current, res, err := n.step(ctx, p, previous)
		res.Index = i
		res.Elapsed = time.Since(start)
		n.emit(res)

		if err != nil {
			return TerminalHandle{State: current, URL: res.URL, Title: res.Title, Steps: i + 1}, err
		}
		if res.Terminal {
			n.logger.Info("Reached terminal page.",
				zap.Int("step", i),
				zap.String("url", res.URL),
				zap.String("provenance", string(current.Provenance)))
			return TerminalHandle{State: current, URL: res.URL, Title: res.Title, Steps: i + 1}, nil
		}
		previous = current
		last = res
	}

	n.logger.Warn("Step budget exhausted.", zap.Int("max_steps", n.cfg.MaxSteps), zap.String("last_url", last.URL))
	return TerminalHandle{State: previous, URL: last.URL, Title: last.Title, Steps: n.cfg.MaxSteps},
		fmt.Errorf("%w: terminal page %s not reached after %d steps", ErrNavigationExhausted, terminal, n.cfg.MaxSteps)
}

// step performs one observe, classify, reconcile, decide, act cycle. The
// returned state is carried into the next step.
func (n *Navigator) step(ctx context.Context, p plan.Plan, previous state.PageState) (state.PageState, StepResult, error) {
	res := StepResult{Previous: previous, Intent: Noop()}

	obs, err := n.observe(ctx, &res)
	if err != nil {
		return previous, res, err
	}
	res.URL, res.Title, res.Image = obs.URL, obs.Title, obs.Image

	res.Heuristic = n.resolver.Classify(obs.URL, obs.Title)
	if obs.Image != nil {
		cls, err := n.observer.ClassifyState(ctx, obs.Image, p)
		switch {
		case ctx.Err() != nil:
			return previous, res, fmt.Errorf("navigation cancelled: %w", ctx.Err())
		case err != nil:
			n.logger.Warn("Classification failed, using URL heuristics.", zap.Error(err))
			res.addReason(record.ErrCodeClassificationFailure, err)
		default:
			res.Vision = &cls
		}
	}

	current, suggestion := Reconcile(res.Heuristic, res.Vision, n.cfg.MinConfidence)
	res.State = current
	if current.Category != previous.Category {
		n.logger.Debug("Page state changed.",
			zap.String("from", string(previous.Category)),
			zap.String("to", string(current.Category)),
			zap.String("provenance", string(current.Provenance)),
			zap.Float64("confidence", current.Confidence))
	}

	if current.Category == p.Goal.Behavior().Terminal {
		res.Terminal = true
		res.Intent = Done()
		return current, res, nil
	}

	res.Intent = Decide(p, current, suggestion)
	if err := n.act(ctx, res.Intent); err != nil {
		switch {
		case ctx.Err() != nil:
			return current, res, fmt.Errorf("navigation cancelled: %w", ctx.Err())
		case errors.Is(err, browser.ErrExecutorClosed):
			res.addReason(record.ErrCodeActionExecutionFailed, err)
			return current, res, fmt.Errorf("%w: %w", ErrActionExecutionFailed, err)
		default:
			n.logger.Warn("Action unavailable, continuing.", zap.String("intent", string(res.Intent.Kind)), zap.Error(err))
			res.addReason(record.ErrCodeActionUnavailable, err)
		}
	}
	return current, res, nil
}

// observe captures a viewport screenshot plus url and title. A failed capture
// yields an imageless observation rather than an error.
func (n *Navigator) observe(ctx context.Context, res *StepResult) (Observation, error) {
	var obs Observation

	shotCtx, cancel := context.WithTimeout(ctx, n.cfg.ScreenshotTimeout)
	img, err := n.exec.Screenshot(shotCtx, true)
	cancel()
	if err := n.fatal(ctx, err); err != nil {
		return obs, err
	}
	if err != nil {
		n.logger.Warn("Screenshot failed, classifying from URL only.", zap.Error(err))
		res.addReason(record.ErrCodeObservationTimeout, err)
		img = nil
	}
	obs.Image = img

	url, err := n.exec.URL(ctx)
	if err := n.fatal(ctx, err); err != nil {
		return obs, err
	}
	obs.URL = url

	title, err := n.exec.Title(ctx)
	if err := n.fatal(ctx, err); err != nil {
		return obs, err
	}
	obs.Title = title
	return obs, nil
}

// fatal reports whether err must stop the loop: cancellation or a dead browser.
func (n *Navigator) fatal(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("navigation cancelled: %w", ctx.Err())
	}
	if errors.Is(err, browser.ErrExecutorClosed) {
		return fmt.Errorf("%w: %w", ErrActionExecutionFailed, err)
	}
	return nil
}

func (n *Navigator) act(ctx context.Context, intent ActionIntent) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	n.logger.Info("Acting.", zap.String("intent", string(intent.Kind)), zap.String("query", intent.Query), zap.String("text", intent.Text))

	switch intent.Kind {
	case IntentSearch:
		return n.exec.SubmitSearch(ctx, intent.Query)
	case IntentClickRole:
		return n.exec.ClickByRole(ctx, intent.Role, intent.Text)
	case IntentClickText:
		return n.exec.ClickByText(ctx, intent.Text)
	case IntentScroll:
		return n.exec.Scroll(ctx, browser.ScrollDown)
	default:
		return nil
	}
}

func (n *Navigator) emit(res StepResult) {
	if n.sink == nil {
		return
	}
	if err := n.sink.RecordStep(res); err != nil {
		n.logger.Warn("Failed to record step.", zap.Int("step", res.Index), zap.Error(err))
	}
}

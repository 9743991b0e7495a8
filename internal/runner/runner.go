// Package runner wires the browser, the vision observer, the navigator, the
// extraction pipeline and the run recorder into one run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/browser"
	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/extract"
	"github.com/xkilldash9x/relscout/internal/navigator"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
	"github.com/xkilldash9x/relscout/internal/runlog"
	"github.com/xkilldash9x/relscout/internal/vision"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownTimeout = 10 * time.Second

// ExecutorFactory opens the browser behind a run.
type ExecutorFactory func(ctx context.Context, cfg config.BrowserConfig, host string, logger *zap.Logger) (browser.ActionExecutor, error)

// ObserverFactory builds the vision observer for a run.
type ObserverFactory func(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (vision.Observer, error)

// Runner executes plans. Each call to Run uses a fresh browser.
type Runner struct {
	cfg         *config.Config
	logger      *zap.Logger
	out         io.Writer
	newExecutor ExecutorFactory
	newObserver ObserverFactory
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutorFactory replaces browser.NewExecutor.
func WithExecutorFactory(f ExecutorFactory) Option {
	return func(r *Runner) { r.newExecutor = f }
}

// WithObserverFactory replaces vision.NewObserver.
func WithObserverFactory(f ObserverFactory) Option {
	return func(r *Runner) { r.newObserver = f }
}

// WithOutput sets where the final record is printed. A nil writer disables printing.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithClock overrides the clock used to name run directories.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a runner for cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:         cfg,
		logger:      logger.Named("runner"),
		newExecutor: browser.NewExecutor,
		newObserver: vision.NewObserver,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run navigates to the plan's terminal page and extracts a record from it.
// A record is always returned and always flushed. The error is non-nil when
// navigation failed or the run was cancelled.
func (r *Runner) Run(ctx context.Context, p plan.Plan) (record.Record, error) {
	rec := minimalRecord(p)

	recorder := r.openRecorder(p)

	observer, err := r.newObserver(ctx, r.cfg.Vision, r.logger)
	if err != nil {
		rec.Diagnostics.AddReason(record.ErrCodeAllExtractionFailed, err.Error())
		r.flush(rec, recorder)
		return rec, fmt.Errorf("failed to initialize vision observer: %w", err)
	}

	exec, err := r.newExecutor(ctx, r.cfg.Browser, r.cfg.Navigator.Host, r.logger)
	if err != nil {
		code := record.ErrCodeActionExecutionFailed
		if ctx.Err() != nil {
			code = record.ErrCodeCancelled
		}
		rec.Diagnostics.AddReason(code, err.Error())
		r.flush(rec, recorder)
		return rec, fmt.Errorf("%w: failed to start browser: %w", navigator.ErrActionExecutionFailed, err)
	}
	defer r.closeExecutor(ctx, exec)

	var sink navigator.StepSink
	var images extract.ImageSink
	if recorder != nil {
		sink, images = recorder, recorder
	}

	handle, err := navigator.New(exec, observer, r.cfg.Navigator, sink, r.logger).Run(ctx, p)
	if err != nil {
		rec.Diagnostics.AddReason(navigationCode(ctx, err), err.Error())
		r.flush(rec, recorder)
		return rec, err
	}

	rec = extract.New(exec, observer, r.cfg.Extract, images, r.logger).Extract(ctx, p, handle)
	r.flush(rec, recorder)
	if err := ctx.Err(); err != nil {
		return rec, fmt.Errorf("run cancelled during extraction: %w", err)
	}
	return rec, nil
}

func minimalRecord(p plan.Plan) record.Record {
	if p.Goal.Behavior().Mode == plan.ModeStructured {
		return record.NewFixedRelease(p.Target)
	}
	return record.NewFlexibleResult(p.Target)
}

func navigationCode(ctx context.Context, err error) record.ErrorCode {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return record.ErrCodeCancelled
	case errors.Is(err, navigator.ErrNavigationExhausted):
		return record.ErrCodeNavigationExhausted
	default:
		return record.ErrCodeActionExecutionFailed
	}
}

// openRecorder returns nil when the run log is disabled or unusable.
func (r *Runner) openRecorder(p plan.Plan) *runlog.Recorder {
	if !r.cfg.RunLog.Enabled {
		return nil
	}
	recorder, err := runlog.New(r.cfg.RunLog, r.now(), r.logger)
	if err != nil {
		r.logger.Warn("Run log disabled for this run.", zap.Error(err))
		return nil
	}
	if err := recorder.RecordPlan(p); err != nil {
		r.logger.Warn("Failed to record plan.", zap.Error(err))
	}
	return recorder
}

func (r *Runner) flush(rec record.Record, recorder *runlog.Recorder) {
	if recorder != nil {
		if err := recorder.RecordResult(rec); err != nil {
			r.logger.Warn("Failed to record result.", zap.Error(err))
		}
	}
	if r.out == nil {
		return
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		r.logger.Error("Failed to encode result.", zap.Error(err))
		return
	}
	if _, err := fmt.Fprintln(r.out, string(data)); err != nil {
		r.logger.Warn("Failed to print result.", zap.Error(err))
	}
}

// closeExecutor shuts the browser down even when ctx is already cancelled.
func (r *Runner) closeExecutor(ctx context.Context, exec browser.ActionExecutor) {
	closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), shutdownTimeout)
	defer cancel()
	if err := exec.Close(closeCtx); err != nil {
		r.logger.Warn("Error during browser shutdown.", zap.Error(err))
	}
}

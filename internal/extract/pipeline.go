// Package extract turns the page the navigator stopped on into a record.
//
// Structured goals run a gated chain (widen, locate, scope text, parse) and
// fall back to a single vision call when any gate fails. Flexible goals ask
// the model the user's question about a full-page capture. Extract never
// returns an error: every failure is a reason code on the record.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/browser"
	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/llmutil"
	"github.com/xkilldash9x/relscout/internal/navigator"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
	"github.com/xkilldash9x/relscout/internal/vision"
)

// ImageSink receives the image the extraction was based on.
type ImageSink interface {
	RecordExtractImage(image []byte) error
}

// stageError tags a failed gate with the reason code it reports.
type stageError struct {
	code record.ErrorCode
	err  error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.code, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func fail(code record.ErrorCode, format string, args ...any) error {
	return &stageError{code: code, err: fmt.Errorf(format, args...)}
}

// Pipeline extracts a record from the current page.
type Pipeline struct {
	exec     browser.ActionExecutor
	observer vision.Observer
	cfg      config.ExtractConfig
	sink     ImageSink
	logger   *zap.Logger
}

// New creates a pipeline. sink may be nil.
func New(exec browser.ActionExecutor, observer vision.Observer, cfg config.ExtractConfig, sink ImageSink, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		exec:     exec,
		observer: observer,
		cfg:      cfg,
		sink:     sink,
		logger:   logger.Named("extract"),
	}
}

// Extract dispatches on the plan's extraction mode.
func (p *Pipeline) Extract(ctx context.Context, pl plan.Plan, handle navigator.TerminalHandle) record.Record {
	mode := pl.Goal.Behavior().Mode
	p.logger.Info("Starting extraction.",
		zap.String("target", pl.Target),
		zap.String("mode", string(mode)),
		zap.String("url", handle.URL))

	var rec record.Record
	if mode == plan.ModeStructured {
		rec = p.structured(ctx, pl)
	} else {
		rec = p.flexible(ctx, pl)
	}

	p.logger.Info("Extraction finished.",
		zap.String("strategy", string(rec.Diagnostics.Strategy)),
		zap.Bool("fallback_used", rec.Diagnostics.FallbackUsed),
		zap.Strings("reasons", rec.Diagnostics.Reasons))
	return rec
}

func (p *Pipeline) structured(ctx context.Context, pl plan.Plan) record.Record {
	rec := record.NewFixedRelease(pl.Target)

	rel, err := p.scoped(ctx, pl)
	if err == nil {
		rec.Release = rel
		rec.Diagnostics.Strategy = record.StrategyScoped
		return rec
	}
	if p.noteFailure(&rec, err) {
		return rec
	}

	if zerr := p.exec.Zoom(ctx, 1.0); zerr != nil {
		p.logger.Debug("Failed to restore zoom.", zap.Error(zerr))
	}

	rec.Diagnostics.FallbackUsed = true
	rel, err = p.oneShot(ctx, pl)
	if err != nil {
		p.noteFailure(&rec, err)
		return rec
	}
	rec.Release = rel
	rec.Diagnostics.Strategy = record.StrategyOneShot
	return rec
}

// scoped runs the widen, locate, scope text and parse gates in order.
func (p *Pipeline) scoped(ctx context.Context, pl plan.Plan) (record.Release, error) {
	image, height, err := p.widen(ctx)
	if err != nil {
		return record.Release{}, err
	}

	region, err := p.locate(ctx, image, height)
	if err != nil {
		return record.Release{}, err
	}

	text, err := p.scopeText(ctx, region)
	if err != nil {
		return record.Release{}, err
	}

	return p.parse(ctx, text, pl.Target)
}

// widen primes lazily rendered content, zooms out and captures the whole page.
func (p *Pipeline) widen(ctx context.Context) ([]byte, int, error) {
	for _, dir := range []browser.Direction{browser.ScrollTop, browser.ScrollBottom, browser.ScrollTop} {
		if err := checkpoint(ctx); err != nil {
			return nil, 0, err
		}
		if err := p.exec.Scroll(ctx, dir); err != nil {
			p.logger.Debug("Priming scroll failed.", zap.String("direction", string(dir)), zap.Error(err))
		}
	}

	if err := p.exec.Zoom(ctx, p.cfg.ZoomOut); err != nil {
		p.logger.Debug("Zoom out failed, capturing at current zoom.", zap.Error(err))
	}
	if err := checkpoint(ctx); err != nil {
		return nil, 0, err
	}

	image, err := p.exec.Screenshot(ctx, false)
	if err != nil {
		return nil, 0, p.interrupted(ctx, fail(record.ErrCodeRegionLocateFailure, "full-page capture: %w", err))
	}
	p.saveImage(image)

	height, err := p.exec.PageHeight(ctx)
	if err != nil {
		p.logger.Debug("Page height unavailable.", zap.Error(err))
		height = 0
	}
	return image, height, nil
}

func (p *Pipeline) locate(ctx context.Context, image []byte, height int) (vision.Region, error) {
	if err := checkpoint(ctx); err != nil {
		return vision.Region{}, err
	}
	region, err := p.observer.LocateRegion(ctx, image, height)
	if err != nil {
		return region, p.interrupted(ctx, fail(record.ErrCodeRegionLocateFailure, "%w", err))
	}
	if region.Confidence < p.cfg.LocateMinConfidence {
		return region, fail(record.ErrCodeRegionLocateFailure, "confidence %.2f below %.2f", region.Confidence, p.cfg.LocateMinConfidence)
	}
	if !validBounds(region) {
		return region, fail(record.ErrCodeRegionLocateFailure, "invalid bounds [%.1f, %.1f]", region.TopPct, region.BottomPct)
	}
	p.logger.Debug("Located region.",
		zap.Float64("top_percent", region.TopPct),
		zap.Float64("bottom_percent", region.BottomPct),
		zap.Float64("confidence", region.Confidence))
	return region, nil
}

func validBounds(r vision.Region) bool {
	if math.IsNaN(r.TopPct) || math.IsNaN(r.BottomPct) {
		return false
	}
	return r.TopPct >= 0 && r.BottomPct <= 100 && r.TopPct < r.BottomPct
}

func (p *Pipeline) scopeText(ctx context.Context, region vision.Region) (string, error) {
	if err := checkpoint(ctx); err != nil {
		return "", err
	}
	text, err := p.exec.TextInRegion(ctx, region.TopPct, region.BottomPct)
	if err != nil {
		return "", p.interrupted(ctx, fail(record.ErrCodeRegionTextEmpty, "%w", err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fail(record.ErrCodeRegionTextEmpty, "no visible text in band")
	}
	return text, nil
}

func (p *Pipeline) parse(ctx context.Context, text, target string) (record.Release, error) {
	if err := checkpoint(ctx); err != nil {
		return record.Release{}, err
	}
	text = llmutil.Clip(text, p.cfg.MaxTextChars)
	rel, err := p.observer.ParseText(ctx, text, target)
	if err != nil {
		return record.Release{}, p.interrupted(ctx, fail(record.ErrCodeTextParseFailure, "%w", err))
	}
	if rel.IsEmpty() {
		return record.Release{}, fail(record.ErrCodeTextParseFailure, "neither version nor tag found")
	}
	return rel.Normalized(), nil
}

// oneShot asks the model for the whole release from a viewport capture.
func (p *Pipeline) oneShot(ctx context.Context, pl plan.Plan) (record.Release, error) {
	if err := checkpoint(ctx); err != nil {
		return record.Release{}, err
	}
	if err := p.exec.Scroll(ctx, browser.ScrollTop); err != nil {
		p.logger.Debug("Scroll to top failed.", zap.Error(err))
	}

	image, err := p.exec.Screenshot(ctx, true)
	if err != nil {
		return record.Release{}, p.interrupted(ctx, fail(record.ErrCodeAllExtractionFailed, "viewport capture: %w", err))
	}
	p.saveImage(image)

	rel, err := p.observer.ExtractOneShot(ctx, image, pl.Target, pl.RawPrompt)
	if err != nil {
		return record.Release{}, p.interrupted(ctx, fail(record.ErrCodeAllExtractionFailed, "%w", err))
	}
	return rel.Normalized(), nil
}

func (p *Pipeline) flexible(ctx context.Context, pl plan.Plan) record.Record {
	rec := record.NewFlexibleResult(pl.Target)
	if err := checkpoint(ctx); err != nil {
		p.noteFailure(&rec, err)
		return rec
	}

	question := pl.RawPrompt
	if question == "" {
		question = p.cfg.DefaultQuestion
	}

	image, err := p.exec.Screenshot(ctx, false)
	if err != nil {
		p.noteFailure(&rec, p.interrupted(ctx, fail(record.ErrCodeAllExtractionFailed, "full-page capture: %w", err)))
		return rec
	}
	p.saveImage(image)

	result, err := p.observer.AnswerPrompt(ctx, image, pl.Target, question)
	if err != nil {
		p.noteFailure(&rec, p.interrupted(ctx, fail(record.ErrCodeAllExtractionFailed, "%w", err)))
		return rec
	}
	rec.Result = result
	rec.Diagnostics.Strategy = record.StrategyPrompt
	return rec
}

// noteFailure records err on rec and reports whether the run was cancelled.
func (p *Pipeline) noteFailure(rec *record.Record, err error) bool {
	var se *stageError
	if !errors.As(err, &se) {
		se = &stageError{code: record.ErrCodeAllExtractionFailed, err: err}
	}
	p.logger.Warn("Extraction stage failed.", zap.String("code", string(se.code)), zap.Error(se.err))
	rec.Diagnostics.AddReason(se.code, se.err.Error())
	return se.code == record.ErrCodeCancelled
}

// interrupted replaces a stage failure with CANCELLED when the context is done.
func (p *Pipeline) interrupted(ctx context.Context, err error) error {
	if cerr := checkpoint(ctx); cerr != nil {
		return cerr
	}
	return err
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &stageError{code: record.ErrCodeCancelled, err: err}
	}
	return nil
}

func (p *Pipeline) saveImage(image []byte) {
	if p.sink == nil || len(image) == 0 {
		return
	}
	if err := p.sink.RecordExtractImage(image); err != nil {
		p.logger.Warn("Failed to record extraction image.", zap.Error(err))
	}
}

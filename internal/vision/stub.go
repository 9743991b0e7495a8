package vision

import (
	"context"

	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
)

// StubObserver fails every call. It lets a run proceed on URL heuristics alone.
type StubObserver struct{}

var _ Observer = StubObserver{}

func (StubObserver) ClassifyState(context.Context, []byte, plan.Plan) (Classification, error) {
	return Classification{}, ErrVisionUnavailable
}

func (StubObserver) LocateRegion(context.Context, []byte, int) (Region, error) {
	return Region{}, ErrVisionUnavailable
}

func (StubObserver) ParseText(context.Context, string, string) (record.Release, error) {
	return record.Release{}, ErrVisionUnavailable
}

func (StubObserver) ExtractOneShot(context.Context, []byte, string, string) (record.Release, error) {
	return record.Release{}, ErrVisionUnavailable
}

func (StubObserver) AnswerPrompt(context.Context, []byte, string, string) (any, error) {
	return nil, ErrVisionUnavailable
}

// Package vision asks a multimodal model about screenshots and page text.
package vision

import (
	"context"
	"errors"

	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
	"github.com/xkilldash9x/relscout/internal/state"
)

// ErrVisionUnavailable is returned by observers that cannot answer at all.
var ErrVisionUnavailable = errors.New("vision model unavailable")

// SuggestionKind is the action a model proposes for the current page.
type SuggestionKind string

const (
	SuggestSearch SuggestionKind = "type_search"
	SuggestClick  SuggestionKind = "click"
	SuggestScroll SuggestionKind = "scroll"
	SuggestDone   SuggestionKind = "done"
	SuggestNone   SuggestionKind = "none"
)

// Suggestion is a proposed next action with its free-text argument.
type Suggestion struct {
	Kind   SuggestionKind `json:"kind"`
	Target string         `json:"target"`
}

// Classification is the model's reading of a screenshot.
type Classification struct {
	Category      state.Category `json:"category"`
	Confidence    float64        `json:"confidence"`
	Suggestion    Suggestion     `json:"suggestion"`
	FoundEntities []string       `json:"found_entities"`
	Notes         string         `json:"notes"`
}

// Region is a vertical band of the full page, in percent of page height.
type Region struct {
	TopPct     float64 `json:"top_percent"`
	BottomPct  float64 `json:"bottom_percent"`
	Confidence float64 `json:"confidence"`
}

// Observer is the set of questions the navigator and extractor ask a model.
// Every method either answers or fails; none of them retry.
type Observer interface {
	ClassifyState(ctx context.Context, image []byte, p plan.Plan) (Classification, error)
	LocateRegion(ctx context.Context, image []byte, pageHeight int) (Region, error)
	ParseText(ctx context.Context, text, target string) (record.Release, error)
	ExtractOneShot(ctx context.Context, image []byte, target, prompt string) (record.Release, error)
	AnswerPrompt(ctx context.Context, image []byte, target, question string) (any, error)
}

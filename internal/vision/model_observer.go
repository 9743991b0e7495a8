package vision

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/llmclient"
	"github.com/xkilldash9x/relscout/internal/llmutil"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
	"github.com/xkilldash9x/relscout/internal/state"
)

// ModelObserver answers Observer questions with a single model call each.
type ModelObserver struct {
	client llmclient.Client
	logger *zap.Logger
}

var _ Observer = (*ModelObserver)(nil)

// NewModelObserver wraps a provider client.
func NewModelObserver(client llmclient.Client, logger *zap.Logger) *ModelObserver {
	return &ModelObserver{client: client, logger: logger.Named("vision")}
}

type classifyResponse struct {
	State         string   `json:"state"`
	Confidence    float64  `json:"confidence"`
	FoundEntities []string `json:"found_entities"`
	Action        string   `json:"action"`
	Target        string   `json:"target"`
	Notes         string   `json:"notes"`
}

type releaseResponse struct {
	Version     string         `json:"version"`
	Tag         string         `json:"tag"`
	Author      string         `json:"author"`
	PublishedAt string         `json:"published_at"`
	Notes       string         `json:"notes"`
	Assets      []record.Asset `json:"assets"`
	// Some models nest the payload despite the instructions.
	LatestRelease *releaseResponse `json:"latest_release"`
}

type answerResponse struct {
	Result any `json:"result"`
}

func (o *ModelObserver) ClassifyState(ctx context.Context, image []byte, p plan.Plan) (Classification, error) {
	if len(image) == 0 {
		return Classification{}, fmt.Errorf("classify state: no image")
	}
	resp, err := generate[classifyResponse](ctx, o, classifyPrompt(p), image)
	if err != nil {
		return Classification{}, fmt.Errorf("classify state: %w", err)
	}

	c := Classification{
		Category:      state.ParseCategory(strings.ToLower(strings.TrimSpace(resp.State))),
		Confidence:    clamp(resp.Confidence, 0, 1),
		Suggestion:    Suggestion{Kind: parseSuggestion(resp.Action), Target: strings.TrimSpace(resp.Target)},
		FoundEntities: resp.FoundEntities,
		Notes:         resp.Notes,
	}
	o.logger.Debug("Page classified",
		zap.String("category", string(c.Category)),
		zap.Float64("confidence", c.Confidence),
		zap.String("suggestion", string(c.Suggestion.Kind)),
		zap.String("suggestion_target", c.Suggestion.Target))
	return c, nil
}

func (o *ModelObserver) LocateRegion(ctx context.Context, image []byte, pageHeight int) (Region, error) {
	if len(image) == 0 {
		return Region{}, fmt.Errorf("locate region: no image")
	}
	resp, err := generate[Region](ctx, o, locatePrompt(pageHeight), image)
	if err != nil {
		return Region{}, fmt.Errorf("locate region: %w", err)
	}
	resp.Confidence = clamp(resp.Confidence, 0, 1)
	return *resp, nil
}

func (o *ModelObserver) ParseText(ctx context.Context, text, target string) (record.Release, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return record.Release{}, fmt.Errorf("parse text: empty input")
	}
	resp, err := generate[releaseResponse](ctx, o, parseTextPrompt(text, target), nil)
	if err != nil {
		return record.Release{}, fmt.Errorf("parse text: %w", err)
	}
	return resp.release(), nil
}

func (o *ModelObserver) ExtractOneShot(ctx context.Context, image []byte, target, prompt string) (record.Release, error) {
	if len(image) == 0 {
		return record.Release{}, fmt.Errorf("one-shot extract: no image")
	}
	resp, err := generate[releaseResponse](ctx, o, oneShotPrompt(target, prompt), image)
	if err != nil {
		return record.Release{}, fmt.Errorf("one-shot extract: %w", err)
	}
	return resp.release(), nil
}

func (o *ModelObserver) AnswerPrompt(ctx context.Context, image []byte, target, question string) (any, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("answer prompt: no image")
	}
	resp, err := generate[answerResponse](ctx, o, answerPrompt(target, question), image)
	if err != nil {
		return nil, fmt.Errorf("answer prompt: %w", err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("answer prompt: response has no result")
	}
	return resp.Result, nil
}

// generate performs one JSON-mode call and decodes the reply into T.
func generate[T any](ctx context.Context, o *ModelObserver, userPrompt string, image []byte) (*T, error) {
	raw, err := o.client.Generate(ctx, llmclient.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Image:        llmclient.PNG(image),
		Options:      llmclient.GenerationOptions{ForceJSONFormat: true},
	})
	if err != nil {
		return nil, err
	}
	return llmutil.ParseJSONResponse[T](raw)
}

func (r *releaseResponse) release() record.Release {
	src := r
	if r.LatestRelease != nil && r.Version == "" && r.Tag == "" {
		src = r.LatestRelease
	}
	return record.Release{
		Version:     src.Version,
		Tag:         src.Tag,
		Author:      src.Author,
		PublishedAt: src.PublishedAt,
		Notes:       src.Notes,
		Assets:      src.Assets,
	}.Normalized()
}

func parseSuggestion(action string) SuggestionKind {
	switch SuggestionKind(strings.ToLower(strings.TrimSpace(action))) {
	case SuggestSearch:
		return SuggestSearch
	case SuggestClick:
		return SuggestClick
	case SuggestScroll:
		return SuggestScroll
	case SuggestDone:
		return SuggestDone
	default:
		return SuggestNone
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

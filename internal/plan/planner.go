package plan

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/llmclient"
)

// ErrUnresolvedTarget is returned when neither the request nor the prompt name a repository.
var ErrUnresolvedTarget = errors.New("unable to resolve target; pass --repo owner/name or include it in --prompt")

const inferSystemPrompt = `From the user's message, figure out which GitHub repository they mean (reply as owner/name) and what they want:
latest_release (versions, releases, changelog), code (source or root code), or custom (features, docs, anything else).
Reply in one line: repo: owner/name goal: <one of latest_release, code, custom>`

var (
	inferredRepoRe = regexp.MustCompile(`(?i)repo:\s*([A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+)`)
	inferredGoalRe = regexp.MustCompile(`(?i)goal:\s*(\w+)`)
	slugRe         = regexp.MustCompile(`[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+`)
	wordRe         = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9_.-]{1,40}\b`)
)

// Words that describe the request rather than name the repository.
var stopWords = map[string]struct{}{
	"latest": {}, "release": {}, "releases": {}, "find": {}, "the": {}, "and": {}, "its": {},
	"key": {}, "features": {}, "list": {}, "get": {}, "search": {}, "for": {}, "current": {},
	"related": {}, "tags": {}, "of": {}, "in": {}, "on": {}, "to": {}, "me": {}, "is": {},
	"what": {}, "show": {}, "please": {}, "repo": {}, "repository": {}, "github": {},
}

// Request carries the raw user inputs a Plan is derived from.
type Request struct {
	Repo   string
	Prompt string
	// Goal overrides the inferred goal when set.
	Goal   string
	Fields []string
}

// Planner turns a Request into a Plan. The model client is optional.
type Planner struct {
	client llmclient.Client
	logger *zap.Logger
}

// NewPlanner creates a planner. A nil client disables model-assisted inference.
func NewPlanner(client llmclient.Client, logger *zap.Logger) *Planner {
	return &Planner{client: client, logger: logger.Named("planner")}
}

// Plan resolves the target and goal. An explicit repo always means
// latest_release unless Goal overrides it.
func (p *Planner) Plan(ctx context.Context, req Request) (Plan, error) {
	repo := strings.TrimSpace(req.Repo)
	prompt := strings.TrimSpace(req.Prompt)
	goal := GoalLatestRelease

	if repo == "" && prompt != "" {
		inferredRepo, inferredGoal := p.infer(ctx, prompt)
		goal = inferredGoal
		repo = inferredRepo
		if repo == "" {
			repo = extractRepo(prompt)
		}
	}
	if repo == "" {
		return Plan{}, ErrUnresolvedTarget
	}

	if req.Goal != "" {
		g, err := ParseGoal(req.Goal)
		if err != nil {
			return Plan{}, err
		}
		goal = g
	}

	pl, err := New(goal, repo, prompt, req.Fields)
	if err != nil {
		return Plan{}, err
	}
	p.logger.Info("Plan resolved",
		zap.String("target", pl.Target),
		zap.String("goal", string(pl.Goal)),
		zap.String("search_query", pl.SearchQuery))
	return pl, nil
}

// infer asks the model for a repo and goal. Any failure degrades to
// (no repo, latest_release) so the regex path can take over.
func (p *Planner) infer(ctx context.Context, prompt string) (string, Goal) {
	if p.client == nil {
		return "", GoalLatestRelease
	}
	reply, err := p.client.Generate(ctx, llmclient.GenerationRequest{
		SystemPrompt: inferSystemPrompt,
		UserPrompt:   prompt,
		Options:      llmclient.GenerationOptions{MaxTokens: 80},
	})
	if err != nil {
		p.logger.Warn("Model-assisted plan inference failed, using heuristics.", zap.Error(err))
		return "", GoalLatestRelease
	}
	return parseInference(reply)
}

func parseInference(reply string) (string, Goal) {
	repo := ""
	if m := inferredRepoRe.FindStringSubmatch(reply); m != nil {
		repo = strings.TrimSpace(m[1])
	}
	goal := GoalLatestRelease
	if m := inferredGoalRe.FindStringSubmatch(reply); m != nil {
		if g, err := ParseGoal(m[1]); err == nil {
			goal = g
		}
	}
	return repo, goal
}

// extractRepo finds an owner/name slug in free text. Failing that, the first
// word that is not a stop word is used as both owner and name.
func extractRepo(text string) string {
	if m := slugRe.FindString(text); m != "" {
		return m
	}
	for _, w := range wordRe.FindAllString(text, -1) {
		if _, skip := stopWords[strings.ToLower(w)]; !skip {
			return w + "/" + w
		}
	}
	return ""
}

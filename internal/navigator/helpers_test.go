package navigator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/mocks"
	"github.com/xkilldash9x/relscout/internal/navigator"
	"github.com/xkilldash9x/relscout/internal/observability"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/state"
	"github.com/xkilldash9x/relscout/internal/vision"
)

const (
	homeURL     = "https://github.com/"
	searchURL   = "https://github.com/search?q=openclaw&type=repositories"
	repoURL     = "https://github.com/openclaw/openclaw"
	releasesURL = "https://github.com/openclaw/openclaw/releases"
)

var screenshot = []byte{0x89, 'P', 'N', 'G'}

// site is a MockExecutor whose URL follows the actions taken on it.
type site struct {
	*mocks.MockExecutor
	mu  sync.Mutex
	url string
}

func newSite() *site {
	return &site{MockExecutor: new(mocks.MockExecutor)}
}

func (s *site) URL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *site) Title(context.Context) (string, error) { return "", nil }

func (s *site) goTo(u string) func(mock.Arguments) {
	return func(mock.Arguments) {
		s.mu.Lock()
		s.url = u
		s.mu.Unlock()
	}
}

// github wires the happy-path transitions of the real site.
func (s *site) github() *site {
	s.On("Navigate", mock.Anything, homeURL).Return(nil).Run(s.goTo(homeURL))
	s.On("Screenshot", mock.Anything, true).Return(screenshot, nil)
	s.On("SubmitSearch", mock.Anything, "openclaw").Return(nil).Run(s.goTo(searchURL))
	s.On("ClickByRole", mock.Anything, "link", "openclaw/openclaw").Return(nil).Run(s.goTo(repoURL))
	s.On("ClickByText", mock.Anything, "Releases").Return(nil).Run(s.goTo(releasesURL))
	return s
}

type sinkRecorder struct {
	mu    sync.Mutex
	steps []navigator.StepResult
}

func (r *sinkRecorder) RecordStep(step navigator.StepResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
	return nil
}

func (r *sinkRecorder) intents() []navigator.IntentKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]navigator.IntentKind, 0, len(r.steps))
	for _, s := range r.steps {
		out = append(out, s.Intent.Kind)
	}
	return out
}

func navConfig(maxSteps int) config.NavigatorConfig {
	return config.NavigatorConfig{
		StartURL:          homeURL,
		Host:              "github.com",
		MaxSteps:          maxSteps,
		MinConfidence:     0.5,
		ActionDelay:       time.Millisecond,
		ScreenshotTimeout: time.Second,
	}
}

func newPlan(t *testing.T, goal plan.Goal) plan.Plan {
	t.Helper()
	p, err := plan.New(goal, "openclaw/openclaw", "", nil)
	require.NoError(t, err)
	return p
}

func newNavigator(exec *site, obs vision.Observer, maxSteps int, sink navigator.StepSink) *navigator.Navigator {
	return navigator.New(exec, obs, navConfig(maxSteps), sink, observability.GetLogger())
}

func classification(c state.Category, conf float64, kind vision.SuggestionKind, target string) vision.Classification {
	return vision.Classification{Category: c, Confidence: conf, Suggestion: vision.Suggestion{Kind: kind, Target: target}}
}

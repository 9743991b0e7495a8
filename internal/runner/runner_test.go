package runner_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/relscout/internal/browser"
	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/mocks"
	"github.com/xkilldash9x/relscout/internal/navigator"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
	"github.com/xkilldash9x/relscout/internal/runner"
	"github.com/xkilldash9x/relscout/internal/vision"
)

var shot = []byte{0x89, 'P', 'N', 'G'}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Vision.Provider = config.ProviderStub
	cfg.Navigator.ActionDelay = time.Millisecond
	cfg.Navigator.ScreenshotTimeout = time.Second
	cfg.RunLog.Dir = t.TempDir()
	return cfg
}

func newPlan(t *testing.T, goal plan.Goal) plan.Plan {
	t.Helper()
	p, err := plan.New(goal, "openclaw/openclaw", "", nil)
	require.NoError(t, err)
	return p
}

func executorFactory(exec browser.ActionExecutor, err error) runner.ExecutorFactory {
	return func(context.Context, config.BrowserConfig, string, *zap.Logger) (browser.ActionExecutor, error) {
		return exec, err
	}
}

func stubObserver(context.Context, config.VisionConfig, *zap.Logger) (vision.Observer, error) {
	return vision.StubObserver{}, nil
}

// githubSession walks home, search results, repo and releases, one URL per step.
func githubSession() *mocks.MockExecutor {
	exec := new(mocks.MockExecutor)
	exec.On("Navigate", mock.Anything, "https://github.com").Return(nil)
	exec.On("Screenshot", mock.Anything, mock.Anything).Return(shot, nil)
	exec.On("URL", mock.Anything).Return("https://github.com/", nil).Once()
	exec.On("URL", mock.Anything).Return("https://github.com/search?q=openclaw&type=repositories", nil).Once()
	exec.On("URL", mock.Anything).Return("https://github.com/openclaw/openclaw", nil).Once()
	exec.On("URL", mock.Anything).Return("https://github.com/openclaw/openclaw/releases", nil)
	exec.On("Title", mock.Anything).Return("", nil)
	exec.On("SubmitSearch", mock.Anything, "openclaw").Return(nil)
	exec.On("ClickByRole", mock.Anything, "link", "openclaw/openclaw").Return(nil)
	exec.On("ClickByText", mock.Anything, "Releases").Return(nil)
	exec.On("Scroll", mock.Anything, mock.Anything).Return(nil)
	exec.On("Zoom", mock.Anything, mock.Anything).Return(nil)
	exec.On("PageHeight", mock.Anything).Return(3000, nil)
	exec.On("Close", mock.Anything).Return(nil)
	return exec
}

func runDir(t *testing.T, root string) string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return filepath.Join(root, entries[0].Name())
}

func TestRun_HeuristicOnlyEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	exec := githubSession()
	var out bytes.Buffer
	r := runner.New(cfg, zaptest.NewLogger(t),
		runner.WithExecutorFactory(executorFactory(exec, nil)),
		runner.WithObserverFactory(stubObserver),
		runner.WithOutput(&out))

	rec, err := r.Run(context.Background(), newPlan(t, plan.GoalLatestRelease))
	require.NoError(t, err)

	assert.Equal(t, "openclaw/openclaw", rec.Target)
	assert.True(t, rec.Release.IsEmpty())
	assert.True(t, rec.Diagnostics.FallbackUsed)
	assert.Contains(t, out.String(), `"target": "openclaw/openclaw"`)
	assert.Contains(t, out.String(), `"latest_release"`)

	dir := runDir(t, cfg.RunLog.Dir)
	for _, name := range []string{"plan.json", "step_00.json", "step_03.json", "step_03.png", "result.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, "step_04.json"))
	exec.AssertCalled(t, "Close", mock.Anything)
}

func TestRun_ExhaustionFlushesMinimalRecord(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	cfg.Navigator.MaxSteps = 2
	exec := new(mocks.MockExecutor)
	exec.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	exec.On("Screenshot", mock.Anything, true).Return(shot, nil)
	exec.On("URL", mock.Anything).Return("https://github.com/", nil)
	exec.On("Title", mock.Anything).Return("GitHub", nil)
	exec.On("SubmitSearch", mock.Anything, "openclaw").Return(browser.ErrActionUnavailable)
	exec.On("Close", mock.Anything).Return(nil)

	var out bytes.Buffer
	rec, err := runner.New(cfg, zaptest.NewLogger(t),
		runner.WithExecutorFactory(executorFactory(exec, nil)),
		runner.WithObserverFactory(stubObserver),
		runner.WithOutput(&out)).
		Run(context.Background(), newPlan(t, plan.GoalLatestRelease))

	require.ErrorIs(t, err, navigator.ErrNavigationExhausted)
	require.Len(t, rec.Diagnostics.Reasons, 1)
	assert.Contains(t, rec.Diagnostics.Reasons[0], "NAVIGATION_EXHAUSTED")
	assert.Contains(t, out.String(), "NAVIGATION_EXHAUSTED")
	assert.FileExists(t, filepath.Join(runDir(t, cfg.RunLog.Dir), "result.json"))
	exec.AssertNotCalled(t, "Zoom", mock.Anything, mock.Anything)
	exec.AssertCalled(t, "Close", mock.Anything)
}

func TestRun_BrowserStartFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	var out bytes.Buffer
	rec, err := runner.New(cfg, zaptest.NewLogger(t),
		runner.WithExecutorFactory(executorFactory(nil, errors.New("chrome not found"))),
		runner.WithObserverFactory(stubObserver),
		runner.WithOutput(&out)).
		Run(context.Background(), newPlan(t, plan.GoalCode))

	require.ErrorIs(t, err, navigator.ErrActionExecutionFailed)
	assert.Equal(t, record.KindFlexibleResult, rec.Kind)
	assert.Equal(t, []string{"ACTION_EXECUTION_FAILED: chrome not found"}, rec.Diagnostics.Reasons)
	assert.Contains(t, out.String(), `"result": ""`)
}

func TestRun_ObserverFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	cfg.RunLog.Enabled = false
	failing := func(context.Context, config.VisionConfig, *zap.Logger) (vision.Observer, error) {
		return nil, errors.New("missing key")
	}
	exec := new(mocks.MockExecutor)

	rec, err := runner.New(cfg, zaptest.NewLogger(t),
		runner.WithExecutorFactory(executorFactory(exec, nil)),
		runner.WithObserverFactory(failing)).
		Run(context.Background(), newPlan(t, plan.GoalLatestRelease))

	require.Error(t, err)
	assert.Equal(t, "openclaw/openclaw", rec.Target)
	exec.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything)
	entries, err := os.ReadDir(cfg.RunLog.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_CancelledBeforeFirstStep(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(t)
	exec := new(mocks.MockExecutor)
	exec.On("Navigate", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) { cancel() })
	exec.On("Close", mock.Anything).Return(nil)

	rec, err := runner.New(cfg, zaptest.NewLogger(t),
		runner.WithExecutorFactory(executorFactory(exec, nil)),
		runner.WithObserverFactory(stubObserver)).
		Run(ctx, newPlan(t, plan.GoalLatestRelease))

	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, rec.Diagnostics.Reasons, 1)
	assert.Contains(t, rec.Diagnostics.Reasons[0], "CANCELLED")
	assert.FileExists(t, filepath.Join(runDir(t, cfg.RunLog.Dir), "result.json"))

	// Shutdown runs on a detached context so the browser still closes.
	exec.AssertCalled(t, "Close", mock.Anything)
}

package navigator_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/relscout/internal/browser"
	"github.com/xkilldash9x/relscout/internal/mocks"
	"github.com/xkilldash9x/relscout/internal/navigator"
	"github.com/xkilldash9x/relscout/internal/observability"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/state"
	"github.com/xkilldash9x/relscout/internal/vision"
)

func TestRun_VisionGuidedReachesReleases(t *testing.T) {
	exec := newSite().github()
	obs := new(mocks.MockObserver)
	obs.On("ClassifyState", mock.Anything, screenshot, mock.Anything).
		Return(classification(state.Home, 0.9, vision.SuggestSearch, "openclaw"), nil).Once()
	obs.On("ClassifyState", mock.Anything, screenshot, mock.Anything).
		Return(classification(state.SearchResults, 0.9, vision.SuggestClick, "openclaw/openclaw"), nil).Once()
	obs.On("ClassifyState", mock.Anything, screenshot, mock.Anything).
		Return(classification(state.TargetEntity, 0.8, vision.SuggestClick, "Releases"), nil).Once()
	obs.On("ClassifyState", mock.Anything, screenshot, mock.Anything).
		Return(classification(state.TargetSection, 0.95, vision.SuggestDone, ""), nil).Once()

	sink := &sinkRecorder{}
	handle, err := newNavigator(exec, obs, 15, sink).Run(context.Background(), newPlan(t, plan.GoalLatestRelease))
	require.NoError(t, err)

	assert.Equal(t, state.TargetSection, handle.State.Category)
	assert.Equal(t, state.FromVision, handle.State.Provenance)
	assert.Equal(t, releasesURL, handle.URL)
	assert.Equal(t, 4, handle.Steps)
	assert.Equal(t, []navigator.IntentKind{
		navigator.IntentSearch, navigator.IntentClickRole, navigator.IntentClickText, navigator.IntentDone,
	}, sink.intents())
	assert.True(t, sink.steps[3].Terminal)
	for i, s := range sink.steps {
		assert.Equal(t, i, s.Index)
	}
	exec.AssertNumberOfCalls(t, "Navigate", 1)
	obs.AssertExpectations(t)
}

func TestRun_CodeGoalStopsAtEntity(t *testing.T) {
	exec := newSite().github()
	obs := new(mocks.MockObserver)
	obs.On("ClassifyState", mock.Anything, mock.Anything, mock.Anything).
		Return(vision.Classification{}, vision.ErrVisionUnavailable)

	handle, err := newNavigator(exec, obs, 15, nil).Run(context.Background(), newPlan(t, plan.GoalCode))
	require.NoError(t, err)

	assert.Equal(t, state.TargetEntity, handle.State.Category)
	assert.Equal(t, 3, handle.Steps)
	exec.AssertNotCalled(t, "ClickByText", mock.Anything, mock.Anything)
}

func TestRun_HeuristicOnlyWhenVisionFails(t *testing.T) {
	exec := newSite().github()
	obs := new(mocks.MockObserver)
	obs.On("ClassifyState", mock.Anything, mock.Anything, mock.Anything).
		Return(vision.Classification{}, vision.ErrVisionUnavailable)

	sink := &sinkRecorder{}
	handle, err := newNavigator(exec, obs, 15, sink).Run(context.Background(), newPlan(t, plan.GoalLatestRelease))
	require.NoError(t, err)

	assert.Equal(t, state.TargetSection, handle.State.Category)
	assert.Equal(t, state.FromHeuristic, handle.State.Provenance)
	assert.Equal(t, 1.0, handle.State.Confidence)
	require.Len(t, sink.steps, 4)
	for _, s := range sink.steps {
		require.Len(t, s.Reasons, 1)
		assert.Contains(t, s.Reasons[0], "CLASSIFICATION_FAILURE")
	}
}

func TestRun_DefinitiveHeuristicOverridesVision(t *testing.T) {
	exec := newSite().github()
	exec.On("SubmitSearch", mock.Anything, "something else").Return(nil).Run(exec.goTo(searchURL))
	obs := new(mocks.MockObserver)
	// The model keeps insisting this is the landing page.
	obs.On("ClassifyState", mock.Anything, mock.Anything, mock.Anything).
		Return(classification(state.Home, 0.99, vision.SuggestSearch, "something else"), nil)

	sink := &sinkRecorder{}
	handle, err := newNavigator(exec, obs, 15, sink).Run(context.Background(), newPlan(t, plan.GoalLatestRelease))
	require.NoError(t, err)

	assert.Equal(t, state.FromOverride, handle.State.Provenance)
	// Step 0 is genuinely Home, so vision's own query is adopted there.
	exec.AssertCalled(t, "SubmitSearch", mock.Anything, "something else")
	assert.Equal(t, state.FromVision, sink.steps[0].State.Provenance)
	assert.Equal(t, state.FromOverride, sink.steps[1].State.Provenance)
}

func TestRun_ExhaustsBudgetWhenActionsFail(t *testing.T) {
	exec := newSite()
	exec.On("Navigate", mock.Anything, homeURL).Return(nil).Run(exec.goTo(homeURL))
	exec.On("Screenshot", mock.Anything, true).Return(screenshot, nil)
	exec.On("SubmitSearch", mock.Anything, "openclaw").
		Return(fmt.Errorf("submit search: %w", browser.ErrActionUnavailable))
	obs := new(mocks.MockObserver)
	obs.On("ClassifyState", mock.Anything, mock.Anything, mock.Anything).
		Return(classification(state.Home, 0.9, vision.SuggestNone, ""), nil)

	sink := &sinkRecorder{}
	handle, err := newNavigator(exec, obs, 3, sink).Run(context.Background(), newPlan(t, plan.GoalLatestRelease))
	require.Error(t, err)
	assert.ErrorIs(t, err, navigator.ErrNavigationExhausted)
	assert.Equal(t, 3, handle.Steps)
	assert.Equal(t, state.Home, handle.State.Category)
	exec.AssertNumberOfCalls(t, "SubmitSearch", 3)
	for _, s := range sink.steps {
		assert.Contains(t, s.Reasons, "ACTION_UNAVAILABLE: submit search: browser action unavailable")
	}
}

func TestRun_NoopConsumesBudget(t *testing.T) {
	exec := newSite()
	// An entity goal that lands on the section page has no policy action.
	exec.On("Navigate", mock.Anything, homeURL).Return(nil).Run(exec.goTo(releasesURL))
	exec.On("Screenshot", mock.Anything, true).Return(screenshot, nil)
	obs := new(mocks.MockObserver)
	obs.On("ClassifyState", mock.Anything, mock.Anything, mock.Anything).
		Return(vision.Classification{}, errors.New("model down"))

	sink := &sinkRecorder{}
	_, err := newNavigator(exec, obs, 2, sink).Run(context.Background(), newPlan(t, plan.GoalCode))
	assert.ErrorIs(t, err, navigator.ErrNavigationExhausted)
	assert.Equal(t, []navigator.IntentKind{navigator.IntentNoop, navigator.IntentNoop}, sink.intents())
	exec.AssertNotCalled(t, "ClickByRole", mock.Anything, mock.Anything, mock.Anything)
	exec.AssertNotCalled(t, "ClickByText", mock.Anything, mock.Anything)
	exec.AssertNotCalled(t, "Navigate", mock.Anything, repoURL)
}

func TestRun_ScreenshotFailureDegradesToHeuristic(t *testing.T) {
	exec := newSite()
	exec.On("Navigate", mock.Anything, homeURL).Return(nil).Run(exec.goTo(repoURL))
	exec.On("Screenshot", mock.Anything, true).Return(nil, context.DeadlineExceeded)
	obs := new(mocks.MockObserver)

	sink := &sinkRecorder{}
	handle, err := newNavigator(exec, obs, 5, sink).Run(context.Background(), newPlan(t, plan.GoalCode))
	require.NoError(t, err)
	assert.Equal(t, state.TargetEntity, handle.State.Category)
	obs.AssertNotCalled(t, "ClassifyState", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, sink.steps, 1)
	assert.Nil(t, sink.steps[0].Image)
	assert.Contains(t, sink.steps[0].Reasons[0], "OBSERVATION_TIMEOUT")
}

func TestRun_ScreenshotTimeoutBoundsHungCapture(t *testing.T) {
	exec := newSite()
	exec.On("Navigate", mock.Anything, homeURL).Return(nil).Run(exec.goTo(repoURL))
	var hasDeadline bool
	exec.On("Screenshot", mock.Anything, true).Return(nil, context.DeadlineExceeded).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, hasDeadline = ctx.Deadline()
		<-ctx.Done()
	})
	obs := new(mocks.MockObserver)

	cfg := navConfig(5)
	cfg.ScreenshotTimeout = 50 * time.Millisecond
	sink := &sinkRecorder{}
	nav := navigator.New(exec, obs, cfg, sink, observability.GetLogger())

	start := time.Now()
	handle, err := nav.Run(context.Background(), newPlan(t, plan.GoalCode))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, hasDeadline)
	assert.Equal(t, state.TargetEntity, handle.State.Category)
	require.Len(t, sink.steps, 1)
	assert.Contains(t, sink.steps[0].Reasons[0], "OBSERVATION_TIMEOUT")
}

func TestRun_StartNavigationFailure(t *testing.T) {
	exec := newSite()
	exec.On("Navigate", mock.Anything, homeURL).Return(errors.New("net::ERR_NAME_NOT_RESOLVED"))
	obs := new(mocks.MockObserver)

	_, err := newNavigator(exec, obs, 5, nil).Run(context.Background(), newPlan(t, plan.GoalLatestRelease))
	assert.ErrorIs(t, err, navigator.ErrActionExecutionFailed)
	exec.AssertNotCalled(t, "Screenshot", mock.Anything, mock.Anything)
}

func TestRun_ClosedExecutorIsFatal(t *testing.T) {
	exec := newSite()
	exec.On("Navigate", mock.Anything, homeURL).Return(nil).Run(exec.goTo(homeURL))
	exec.On("Screenshot", mock.Anything, true).Return(screenshot, nil)
	exec.On("SubmitSearch", mock.Anything, "openclaw").Return(fmt.Errorf("submit search: %w", browser.ErrExecutorClosed))
	obs := new(mocks.MockObserver)
	obs.On("ClassifyState", mock.Anything, mock.Anything, mock.Anything).
		Return(classification(state.Home, 0.9, vision.SuggestNone, ""), nil)

	handle, err := newNavigator(exec, obs, 5, nil).Run(context.Background(), newPlan(t, plan.GoalLatestRelease))
	assert.ErrorIs(t, err, navigator.ErrActionExecutionFailed)
	assert.ErrorIs(t, err, browser.ErrExecutorClosed)
	assert.Equal(t, 1, handle.Steps)
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := newSite()
	exec.On("Navigate", mock.Anything, homeURL).Return(nil).Run(exec.goTo(homeURL))
	exec.On("Screenshot", mock.Anything, true).Return(screenshot, nil)
	exec.On("SubmitSearch", mock.Anything, "openclaw").Return(nil).Run(func(mock.Arguments) { cancel() })
	obs := new(mocks.MockObserver)
	obs.On("ClassifyState", mock.Anything, mock.Anything, mock.Anything).
		Return(classification(state.Home, 0.9, vision.SuggestNone, ""), nil)

	_, err := newNavigator(exec, obs, 15, nil).Run(ctx, newPlan(t, plan.GoalLatestRelease))
	assert.ErrorIs(t, err, context.Canceled)
	exec.AssertNumberOfCalls(t, "Screenshot", 1)
}

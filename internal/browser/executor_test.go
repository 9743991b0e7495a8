package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/relscout/internal/config"
)

func TestClampZoom(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{0.1, MinZoom},
		{0, MinZoom},
		{-3, MinZoom},
		{1, 1},
		{2, 2},
		{5, MaxZoom},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampZoom(tt.in), "ClampZoom(%v)", tt.in)
	}
}

func TestScripts(t *testing.T) {
	t.Run("ZoomIsClamped", func(t *testing.T) {
		assert.Contains(t, zoomScript(0.5), `zoom = '0.5'`)
		assert.Contains(t, zoomScript(10), `zoom = '2'`)
		assert.Contains(t, zoomScript(0.01), `zoom = '0.25'`)
	})

	t.Run("TextInRegionEmbedsBounds", func(t *testing.T) {
		s := textInRegionScript(12.5, 40)
		assert.Contains(t, s, "})(12.5, 40)")
		assert.Contains(t, s, "offsetParent === null")
		assert.Contains(t, s, "window.scrollY")
	})

	t.Run("ScrollDirections", func(t *testing.T) {
		assert.Contains(t, scrollScript(ScrollDown), "scrollBy(0, window.innerHeight)")
		assert.Contains(t, scrollScript(ScrollUp), "scrollBy(0, -window.innerHeight)")
		assert.Contains(t, scrollScript(ScrollTop), "scrollTo(0, 0)")
		assert.Contains(t, scrollScript(ScrollBottom), "document.body.scrollHeight")
		assert.Equal(t, scrollScript(ScrollDown), scrollScript(Direction("sideways")))
	})

	t.Run("ClickByRoleQuotesInput", func(t *testing.T) {
		s := clickByRoleScript("link", `openclaw/"openclaw"`)
		assert.Contains(t, s, `"openclaw/\"openclaw\""`)
		assert.Contains(t, s, `"a[href], [role=\"link\"]"`)
	})

	t.Run("ClickByRoleUnknownRoleUsesAttribute", func(t *testing.T) {
		s := clickByRoleScript("menuitem", "Settings")
		assert.Contains(t, s, `[role=\"menuitem\"]`)
	})

	t.Run("ClickByTextQuotesInput", func(t *testing.T) {
		s := clickByTextScript("Releases\n")
		assert.Contains(t, s, `"Releases\n"`)
	})
}

func TestOnHost(t *testing.T) {
	tests := []struct {
		url, host string
		want      bool
	}{
		{"https://github.com/", "github.com", true},
		{"https://www.github.com/search?q=x", "github.com", true},
		{"https://GitHub.com/openclaw", "github.com", true},
		{"https://gist.github.com/", "github.com", false},
		{"https://example.com/", "github.com", false},
		{"https://github.com/", "", false},
		{"::not a url", "github.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, onHost(tt.url, tt.host), tt.url)
	}
}

func TestBuildAllocatorOptions(t *testing.T) {
	base := config.BrowserConfig{Headless: true, ViewportWidth: 1440, ViewportHeight: 900}
	opts := buildAllocatorOptions(base)
	assert.Greater(t, len(opts), len(chromedp.DefaultExecAllocatorOptions))

	withArgs := base
	withArgs.Args = []string{"--lang=en-US", "--mute-audio"}
	assert.Len(t, buildAllocatorOptions(withArgs), len(opts)+2)
}

func TestBlockPatterns(t *testing.T) {
	patterns := blockPatterns()
	require.Len(t, patterns, len(blockedResourceTypes))
	for i, p := range patterns {
		assert.Equal(t, "*", p.URLPattern)
		assert.Equal(t, blockedResourceTypes[i], p.ResourceType)
		assert.Equal(t, fetch.RequestStageRequest, p.RequestStage)
	}
	assert.True(t, blockedPlaywrightTypes["image"])
	assert.True(t, blockedPlaywrightTypes["font"])
	assert.True(t, blockedPlaywrightTypes["media"])
	assert.False(t, blockedPlaywrightTypes["document"])
	assert.False(t, blockedPlaywrightTypes["stylesheet"])
}

func TestNewExecutor_UnsupportedDriver(t *testing.T) {
	_, err := NewExecutor(context.Background(), config.BrowserConfig{Driver: "selenium"}, "github.com", zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported browser driver")
}

func TestUnavailableWrapsBoth(t *testing.T) {
	cause := errors.New("boom")
	err := unavailable("click", cause)
	assert.ErrorIs(t, err, ErrActionUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, isUnavailable(err))
	assert.False(t, isUnavailable(ErrExecutorClosed))
}

func TestCDPExecutor_ClosedRejectsActions(t *testing.T) {
	tabCtx, cancel := context.WithCancel(context.Background())
	e := &CDPExecutor{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: func() {},
		cfg:         config.BrowserConfig{ActionTimeout: time.Second},
		logger:      zaptest.NewLogger(t),
	}
	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()), "second close is a no-op")

	_, err := e.URL(context.Background())
	assert.ErrorIs(t, err, ErrExecutorClosed)
	_, err = e.Screenshot(context.Background(), true)
	assert.ErrorIs(t, err, ErrExecutorClosed)
}

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		ctx1 := context.WithValue(context.Background(), key, "tab")
		combined, cancel := CombineContext(ctx1, context.Background())
		defer cancel()
		assert.Equal(t, "tab", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("CancelledBySecondary", func(t *testing.T) {
		ctx2, cancel2 := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), ctx2)
		defer cancel()
		cancel2()
		assert.Eventually(t, func() bool { return combined.Err() != nil }, 100*time.Millisecond, 5*time.Millisecond)
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		ctx1, cancel1 := context.WithCancel(context.Background())
		combined, cancel := CombineContext(ctx1, context.Background())
		defer cancel()
		cancel1()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), ctxKey("k"), "v"), time.Millisecond)
	cancel()

	d := Detach(parent)
	assert.NoError(t, d.Err())
	assert.Nil(t, d.Done())
	_, ok := d.Deadline()
	assert.False(t, ok)
	assert.Equal(t, "v", d.Value(ctxKey("k")))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, sleep(ctx, time.Minute), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}

type fakeKeyboard struct {
	keys  []string
	typed []string
}

func (k *fakeKeyboard) Press(key string, _ ...playwright.KeyboardPressOptions) error {
	k.keys = append(k.keys, key)
	return nil
}

func (k *fakeKeyboard) Type(text string, _ ...playwright.KeyboardTypeOptions) error {
	k.typed = append(k.typed, text)
	return nil
}

func TestTypeSearch(t *testing.T) {
	t.Run("FullSequence", func(t *testing.T) {
		kbd := &fakeKeyboard{}
		require.NoError(t, typeSearch(context.Background(), kbd, "openclaw"))
		assert.Equal(t, []string{"/", "Enter"}, kbd.keys)
		assert.Equal(t, []string{"openclaw"}, kbd.typed)
	})

	t.Run("CancelledStopsBetweenKeystrokes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		kbd := &fakeKeyboard{}

		start := time.Now()
		err := typeSearch(ctx, kbd, "openclaw")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), settleDelay)
		assert.Equal(t, []string{"/"}, kbd.keys)
		assert.Empty(t, kbd.typed)
	})
}

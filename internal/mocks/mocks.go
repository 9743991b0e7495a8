// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/relscout/internal/browser"
	"github.com/xkilldash9x/relscout/internal/llmclient"
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/record"
	"github.com/xkilldash9x/relscout/internal/vision"
)

// -- LLM Client Mock --

// MockLLMClient mocks the llmclient.Client interface.
type MockLLMClient struct {
	mock.Mock
}

var _ llmclient.Client = (*MockLLMClient)(nil)

// Generate provides a mock function for model calls.
func (m *MockLLMClient) Generate(ctx context.Context, req llmclient.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// -- Vision Observer Mock --

// MockObserver mocks the vision.Observer interface.
type MockObserver struct {
	mock.Mock
}

var _ vision.Observer = (*MockObserver)(nil)

func (m *MockObserver) ClassifyState(ctx context.Context, image []byte, p plan.Plan) (vision.Classification, error) {
	args := m.Called(ctx, image, p)
	return args.Get(0).(vision.Classification), args.Error(1)
}

func (m *MockObserver) LocateRegion(ctx context.Context, image []byte, pageHeight int) (vision.Region, error) {
	args := m.Called(ctx, image, pageHeight)
	return args.Get(0).(vision.Region), args.Error(1)
}

func (m *MockObserver) ParseText(ctx context.Context, text, target string) (record.Release, error) {
	args := m.Called(ctx, text, target)
	return args.Get(0).(record.Release), args.Error(1)
}

func (m *MockObserver) ExtractOneShot(ctx context.Context, image []byte, target, prompt string) (record.Release, error) {
	args := m.Called(ctx, image, target, prompt)
	return args.Get(0).(record.Release), args.Error(1)
}

func (m *MockObserver) AnswerPrompt(ctx context.Context, image []byte, target, question string) (any, error) {
	args := m.Called(ctx, image, target, question)
	return args.Get(0), args.Error(1)
}

// -- Browser Executor Mock --

// MockExecutor mocks the browser.ActionExecutor interface.
type MockExecutor struct {
	mock.Mock
}

var _ browser.ActionExecutor = (*MockExecutor)(nil)

func (m *MockExecutor) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockExecutor) Screenshot(ctx context.Context, viewportOnly bool) ([]byte, error) {
	args := m.Called(ctx, viewportOnly)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Error(1)
}

func (m *MockExecutor) Scroll(ctx context.Context, dir browser.Direction) error {
	return m.Called(ctx, dir).Error(0)
}

func (m *MockExecutor) Zoom(ctx context.Context, factor float64) error {
	return m.Called(ctx, factor).Error(0)
}

func (m *MockExecutor) PageHeight(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockExecutor) TextInRegion(ctx context.Context, topPct, bottomPct float64) (string, error) {
	args := m.Called(ctx, topPct, bottomPct)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) ClickByRole(ctx context.Context, role, text string) error {
	return m.Called(ctx, role, text).Error(0)
}

func (m *MockExecutor) ClickByText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockExecutor) SubmitSearch(ctx context.Context, query string) error {
	return m.Called(ctx, query).Error(0)
}

func (m *MockExecutor) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

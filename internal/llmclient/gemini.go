// internal/llmclient/gemini.go
package llmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/relscout/internal/config"
)

// GeminiClient implements Client on top of the Google Gen AI SDK.
type GeminiClient struct {
	client *genai.Client
	config config.VisionConfig
	logger *zap.Logger
}

// NewGeminiClient initializes the SDK client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: cfg,
		logger: logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends one request. There is no retry; a failure is returned as-is.
func (c *GeminiClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config)
	defer cancel()

	contents, genConfig := c.buildRequest(req)

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(start))}
	if resp.UsageMetadata != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	c.logger.Debug("Model generation complete (Gemini)", fields...)
	return text, nil
}

func (c *GeminiClient) buildRequest(req GenerationRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	opts := resolveOptions(req.Options, c.config)

	parts := []*genai.Part{genai.NewPartFromText(req.UserPrompt)}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](opts.Temperature),
		MaxOutputTokens: int32(opts.MaxTokens),
	}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if opts.ForceJSONFormat {
		genConfig.ResponseMIMEType = "application/json"
	}

	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, genConfig
}

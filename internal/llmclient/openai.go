package llmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
)

// OpenAIClient implements Client with the Chat Completions API.
type OpenAIClient struct {
	client openai.Client
	config config.VisionConfig
	logger *zap.Logger
}

// NewOpenAIClient creates the client. SDK retries are disabled.
func NewOpenAIClient(cfg config.VisionConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		config: cfg,
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends one chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, c.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}

	c.logger.Debug("Model generation complete (OpenAI)",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) buildParams(req GenerationRequest) openai.ChatCompletionNewParams {
	opts := resolveOptions(req.Options, c.config)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	if req.Image != nil {
		messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.UserPrompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    req.Image.DataURL(),
				Detail: "high",
			}),
		}))
	} else {
		messages = append(messages, openai.UserMessage(req.UserPrompt))
	}

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.config.Model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(opts.MaxTokens)),
		Temperature:         openai.Float(float64(opts.Temperature)),
	}
	if opts.ForceJSONFormat {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

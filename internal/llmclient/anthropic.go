package llmclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
)

// jsonOnlyInstruction stands in for a JSON response mode, which the Messages API lacks.
const jsonOnlyInstruction = "Respond with a single JSON object and nothing else."

// AnthropicClient implements Client with the Messages API.
type AnthropicClient struct {
	client anthropic.Client
	config config.VisionConfig
	logger *zap.Logger
}

// NewAnthropicClient creates the client. SDK retries are disabled.
func NewAnthropicClient(cfg config.VisionConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API Key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		config: cfg,
		logger: logger.Named("llm_client.anthropic"),
	}, nil
}

// Generate sends one message and concatenates the text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("anthropic messages request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}

	c.logger.Debug("Model generation complete (Anthropic)",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return text, nil
}

func (c *AnthropicClient) buildParams(req GenerationRequest) anthropic.MessageNewParams {
	opts := resolveOptions(req.Options, c.config)

	var blocks []anthropic.ContentBlockParamUnion
	if req.Image != nil {
		blocks = append(blocks, anthropic.NewImageBlockBase64(req.Image.MIMEType, base64.StdEncoding.EncodeToString(req.Image.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.UserPrompt))

	system := req.SystemPrompt
	if opts.ForceJSONFormat {
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(opts.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(float64(opts.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

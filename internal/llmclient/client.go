// Package llmclient adapts the multimodal model SDKs to one request/response shape.
package llmclient

import (
	"context"
	"encoding/base64"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Image is an encoded picture attached to a request.
type Image struct {
	Data     []byte
	MIMEType string
}

// PNG wraps raw PNG bytes. A nil or empty slice yields nil.
func PNG(data []byte) *Image {
	if len(data) == 0 {
		return nil
	}
	return &Image{Data: data, MIMEType: "image/png"}
}

// DataURL renders the image as an RFC 2397 data URL.
func (i *Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// GenerationOptions controls sampling and output format.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest is a single-turn prompt with an optional image.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Image        *Image            `json:"-"`
	Options      GenerationOptions `json:"options"`
}

// Client is implemented by every provider adapter.
type Client interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

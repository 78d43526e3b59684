// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// Boothflow uses it for one thing: turning a guest photo prompt into a
// generated image for the ai-transform step.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNoImageReturned indicates the API response carried no image data.
var ErrNoImageReturned = errors.New("no image returned")

// DefaultOutputSize is used when a transform step does not specify one.
const DefaultOutputSize = "1024x1024"

// Generator produces an image from a fully interpolated prompt and returns a
// URL where the result can be fetched.
type Generator interface {
	GenerateImage(ctx context.Context, prompt, outputSize string) (string, error)
}

// imageService defines the minimal interface for image generation, satisfied
// by *openai.ImageService.
type imageService interface {
	Generate(ctx context.Context, params openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// Client wraps the OpenAI Images service.
type Client struct {
	images imageService
	model  openai.ImageModel
}

var _ Generator = (*Client)(nil)

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ImageModel
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the image model.
func WithModel(model openai.ImageModel) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// NewClient initializes a GenAI client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: openai.ImageModelGPTImage1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{images: &cli.Images, model: cfg.Model}, nil
}

// GenerateImage generates an image for the given prompt and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, prompt, outputSize string) (string, error) {
	if outputSize == "" {
		outputSize = DefaultOutputSize
	}
	slog.Debug("GenerateImage starting", "model", c.model, "size", outputSize, "promptLength", len(prompt))

	resp, err := c.images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  c.model,
		Size:   openai.ImageGenerateParamsSize(outputSize),
		N:      openai.Int(1),
	})
	if err != nil {
		slog.Error("GenerateImage failed", "error", err)
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return "", ErrNoImageReturned
	}
	url := resp.Data[0].URL
	if url == "" {
		return "", ErrNoImageReturned
	}
	slog.Debug("GenerateImage succeeded", "url", url)
	return url, nil
}

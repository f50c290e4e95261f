// Package imagegen requests an illustration for an article headline.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = openai.CreateImageModelDallE3
	DefaultSize    = openai.CreateImageSize1024x1024
	DefaultTimeout = 90 * time.Second

	promptTemplate = "An editorial illustration for a news article titled %q. No text, no letters, no numbers."
)

// ErrNoImage is returned when the service answers without image data.
var ErrNoImage = errors.New("no image in response")

// Generator produces image bytes for a title.
type Generator interface {
	Generate(ctx context.Context, title string) ([]byte, error)
}

// ImageClient is the subset of the go-openai client used here.
type ImageClient interface {
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Timeout time.Duration
}

// OpenAI generates images through an OpenAI-compatible images endpoint.
type OpenAI struct {
	client ImageClient
	cfg    Config
}

func New(cfg Config) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return NewWithClient(openai.NewClientWithConfig(oc), cfg)
}

func NewWithClient(client ImageClient, cfg Config) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Size == "" {
		cfg.Size = DefaultSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OpenAI{client: client, cfg: cfg}
}

func (g *OpenAI) Generate(ctx context.Context, title string) ([]byte, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("empty title")
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         fmt.Sprintf(promptTemplate, title),
		Model:          g.cfg.Model,
		N:              1,
		Size:           g.cfg.Size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrNoImage
	}

	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

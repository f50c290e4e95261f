package summarize

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL       = "https://api.groq.com/openai/v1"
	DefaultModel         = "llama-3.3-70b-versatile"
	DefaultTemperature   = 0.1
	DefaultMaxTokens     = 1800
	DefaultMaxInputChars = 14000
	DefaultTimeout       = 60 * time.Second

	systemPrompt = "You are a data journalist. From the supplied data, write a short factual news article. " +
		"Only state facts present in the data; do not speculate. " +
		"First line: a headline of at most 15 words. Then a blank line, then the article in 3 to 5 short paragraphs."
)

// ChatClient is the subset of the go-openai client used here.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMConfig configures an OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float32
	MaxTokens     int
	MaxInputChars int
	Timeout       time.Duration
}

func (c *LLMConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = DefaultMaxInputChars
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// LLMSummarizer asks a chat model for a headline and article. When a fallback
// is set, any model failure is answered by the fallback with Degraded set.
type LLMSummarizer struct {
	client   ChatClient
	cfg      LLMConfig
	fallback Summarizer
}

// NewLLM creates a summarizer backed by go-openai. fallback may be nil.
func NewLLM(cfg LLMConfig, fallback Summarizer) *LLMSummarizer {
	cfg.applyDefaults()
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return NewLLMWithClient(openai.NewClientWithConfig(oc), cfg, fallback)
}

// NewLLMWithClient uses an existing chat client.
func NewLLMWithClient(client ChatClient, cfg LLMConfig, fallback Summarizer) *LLMSummarizer {
	cfg.applyDefaults()
	return &LLMSummarizer{client: client, cfg: cfg, fallback: fallback}
}

func (l *LLMSummarizer) Summarize(ctx context.Context, req Request) (Article, error) {
	article, err := l.callAPI(ctx, req)
	if err == nil {
		return article, nil
	}
	if l.fallback == nil {
		return Article{}, err
	}
	fb, fbErr := l.fallback.Summarize(ctx, req)
	if fbErr != nil {
		return Article{}, fmt.Errorf("%w (fallback: %v)", err, fbErr)
	}
	fb.Degraded = true
	return fb, nil
}

func (l *LLMSummarizer) callAPI(ctx context.Context, req Request) (Article, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	user := fmt.Sprintf("Source: %s\n\nData:\n%s", req.Source, firstNRunes(req.Text, l.cfg.MaxInputChars))
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	})
	if err != nil {
		return Article{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Article{}, ErrEmptyResponse
	}
	return parseArticle(resp.Choices[0].Message.Content)
}

var (
	titleLabelRe = regexp.MustCompile(`(?i)^(title|headline)\s*:\s*`)
	bodyLabelRe  = regexp.MustCompile(`(?i)^(article|body)\s*:\s*`)
)

// parseArticle splits model output into a headline (first non-empty line,
// markdown and label noise removed) and the remaining body.
func parseArticle(content string) (Article, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i == len(lines) {
		return Article{}, ErrEmptyResponse
	}

	title := cleanTitle(lines[i])
	rest := lines[i+1:]
	for len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
		rest = rest[1:]
	}
	if len(rest) > 0 {
		rest[0] = bodyLabelRe.ReplaceAllString(strings.TrimSpace(rest[0]), "")
	}
	body := strings.TrimSpace(strings.Join(rest, "\n"))

	if title == "" || body == "" {
		return Article{}, ErrEmptyResponse
	}
	return Article{Title: title, Body: body}, nil
}

func cleanTitle(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "# ")
	line = titleLabelRe.ReplaceAllString(line, "")
	line = strings.Trim(line, "*_\"“” ")
	return strings.TrimSpace(line)
}

func firstNRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Package assistant streams JokeBot replies from an OpenAI-compatible chat
// completion API.
//
// StreamReply never fails from the caller's point of view. Without an API
// key it yields a single fixed message; when the API errors it yields a
// fallback joke word by word. Either way the sequence ends normally.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTypingDelay = 100 * time.Millisecond

	// NotConfiguredText is the whole reply when no API key is set.
	NotConfiguredText = "Error: Open AI API key not configured."
	// FallbackText is streamed word by word when the API call fails.
	FallbackText = "Sorry, I couldn't generate a response. Here's a joke instead: Why did the tomato turn red? It saw the salad dressing! 😎"

	systemPrompt = "You are JokeBot, a humorous chatbot. Respond playfully and include a joke if appropriate. Personalize replies with the user's name: %s."
)

// Config configures a Client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // empty means the SDK default
	// TypingDelay is the pause after each fragment. Zero disables it.
	TypingDelay time.Duration
	HTTPClient  *http.Client
}

// Client produces streamed assistant replies.
type Client struct {
	api        openai.Client
	configured bool
	model      string
	delay      time.Duration
	logger     *slog.Logger
}

// New creates a Client. A missing API key is not an error.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The fallback joke is the retry policy.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	if cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, assistant replies are disabled")
	}

	return &Client{
		api:        openai.NewClient(opts...),
		configured: cfg.APIKey != "",
		model:      cfg.Model,
		delay:      cfg.TypingDelay,
		logger:     logger,
	}
}

// StreamReply streams the reply to message, personalised for displayName.
//
// Each call opens a new request when iterated. The sequence stops early when
// the consumer breaks out of the loop or ctx is cancelled.
func (c *Client) StreamReply(ctx context.Context, message, displayName string) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		if !c.configured {
			c.logger.Error("assistant called without API key")
			yield(Fragment{Kind: KindText, Text: NotConfiguredText})
			return
		}

		err := c.stream(ctx, message, displayName, yield)
		if err == nil || errors.Is(err, errStopped) || ctx.Err() != nil {
			return
		}

		c.logger.Error("assistant stream failed, sending fallback",
			slog.String("model", c.model),
			slog.String("error", err.Error()),
		)
		c.fallback(ctx, yield)
	}
}

// errStopped signals that the consumer stopped iterating.
var errStopped = errors.New("assistant: consumer stopped")

func (c *Client) stream(ctx context.Context, message, displayName string, yield func(Fragment) bool) error {
	c.logger.Debug("calling assistant API", slog.String("model", c.model))

	stream := c.api.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt, displayName)),
			openai.UserMessage(message),
		},
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if !yield(Fragment{Kind: KindText, Text: content}) {
			return errStopped
		}
		if !c.pause(ctx) {
			return errStopped
		}
	}

	return stream.Err()
}

// fallback yields FallbackText one word at a time. Every word after the
// first carries its leading space, so the fragments join back to the
// exact text.
func (c *Client) fallback(ctx context.Context, yield func(Fragment) bool) {
	for i, word := range strings.Fields(FallbackText) {
		if i > 0 {
			word = " " + word
		}
		if !yield(Fragment{Kind: KindText, Text: word}) {
			return
		}
		if !c.pause(ctx) {
			return
		}
	}
}

// pause waits for the typing delay. It returns false if ctx ended first.
func (c *Client) pause(ctx context.Context) bool {
	if c.delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"xhiqi-bot/internal/domain"
	"xhiqi-bot/internal/gateway"
)

const defaultMaxTokens = 1024

// Config controls an Anthropic client.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
}

// Client calls the Anthropic Messages API.
type Client struct {
	client anthropic.Client
}

// New constructs an Anthropic client from config.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{client: anthropic.NewClient(opts...)}, nil
}

// Complete implements gateway.Completer. System turns become the system
// prompt; user turns carry their speaker as a content label.
func (c *Client) Complete(ctx context.Context, req gateway.Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("anthropic: model must not be empty")
	}

	system, messages := splitTurns(req.Messages)
	if len(messages) == 0 {
		return "", errors.New("anthropic: no user message to answer")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &gateway.Error{Model: req.Model, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("anthropic: %w", err)
	}
	return parseResponse(msg), nil
}

// splitTurns joins system turns into one prompt and converts the rest.
// Leading assistant turns are dropped because the API requires the
// conversation to open with a user message.
func splitTurns(turns []domain.Turn) (string, []anthropic.MessageParam) {
	var system []string
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		switch t.Role {
		case domain.RoleSystem:
			system = append(system, content)
		case domain.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(gateway.LabeledContent(t))))
		case domain.RoleAssistant:
			if len(messages) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return strings.Join(system, "\n\n"), messages
}

func parseResponse(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var reply strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply.WriteString(variant.Text)
		}
	}
	return strings.TrimSpace(reply.String())
}

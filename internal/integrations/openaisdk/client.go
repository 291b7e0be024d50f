// Package openaisdk is the completion backend built on the official OpenAI
// Go SDK. Project-scoped keys pass their project id through the SDK's
// project option.
package openaisdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"xhiqi-bot/internal/domain"
	"xhiqi-bot/internal/gateway"
)

// Config controls an SDK client.
type Config struct {
	APIKey     string
	Project    string
	BaseURL    string
	HTTPClient *http.Client
	// MaxRetries is handed to the SDK as is; zero disables SDK retries and
	// leaves recovery to the model fallback.
	MaxRetries int
}

// Client calls the Chat Completions API through the SDK.
type Client struct {
	client openai.Client
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openaisdk: api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if project := strings.TrimSpace(cfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("openaisdk: invalid base URL %q", baseURL)
		}
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{client: openai.NewClient(opts...)}, nil
}

// Complete implements gateway.Completer.
func (c *Client) Complete(ctx context.Context, req gateway.Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("openaisdk: model must not be empty")
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &gateway.Error{Model: req.Model, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("openaisdk: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("openaisdk: no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toMessages(turns []domain.Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(t.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(t.Content))
		case domain.RoleUser:
			out = append(out, userMessage(t))
		}
	}
	return out
}

func userMessage(t domain.Turn) openai.ChatCompletionMessageParamUnion {
	if t.Name == "" {
		return openai.UserMessage(t.Content)
	}
	name, ok := gateway.WireName(t.Name)
	if !ok {
		return openai.UserMessage(gateway.LabeledContent(t))
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(t.Content),
			},
			Name: openai.String(name),
		},
	}
}

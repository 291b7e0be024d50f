// Package app wires configuration into a ready TalkService. Both binaries
// share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"xhiqi-bot/internal/config"
	"xhiqi-bot/internal/gateway"
	"xhiqi-bot/internal/history"
	"xhiqi-bot/internal/integrations/anthropic"
	"xhiqi-bot/internal/integrations/openai"
	"xhiqi-bot/internal/integrations/openaisdk"
	"xhiqi-bot/internal/integrations/paramstore"
	"xhiqi-bot/internal/persona"
	"xhiqi-bot/internal/usecase"
)

// App is the assembled core shared by the inbound adapters.
type App struct {
	Talk    *usecase.TalkService
	Backend gateway.Backend
	History history.Store
	Persona persona.Persona
}

type buildOptions struct {
	params paramstore.Getter
	random usecase.Random
}

type Option func(*buildOptions)

// WithParamStore lets the OpenAI key be read from the parameter store when
// it is not set in the environment.
func WithParamStore(g paramstore.Getter) Option {
	return func(o *buildOptions) {
		o.params = g
	}
}

// WithRandom overrides the aside random source.
func WithRandom(r usecase.Random) Option {
	return func(o *buildOptions) {
		o.random = r
	}
}

func Build(ctx context.Context, logger *slog.Logger, cfg config.Config, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	apiKey, err := resolveOpenAIKey(ctx, cfg, o.params)
	if err != nil {
		return nil, err
	}
	cfg.OpenAIAPIKey = apiKey

	completer, backend, err := gateway.Select(logger, cfg.Backend, Candidates(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	completer = gateway.WithTimeout(completer, cfg.CompletionTimeout)

	p, fromFile, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	logger.Info("persona loaded", "name", p.Name, "from_file", fromFile, "path", cfg.PersonaFile)

	store := history.New(cfg.HistoryScope, cfg.HistorySize)

	svcOpts := []usecase.Option{usecase.WithLogger(logger)}
	if o.random != nil {
		svcOpts = append(svcOpts, usecase.WithRandom(o.random))
	}
	talk, err := usecase.NewTalkService(completer, store, cfg.Policy(), p, cfg.TalkConfig(), svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	logger.Info("talk service ready",
		"backend", backend,
		"primary_model", cfg.PrimaryModel,
		"fallback_model", cfg.FallbackModel,
		"history_scope", cfg.HistoryScope,
		"history_size", cfg.HistorySize,
	)
	return &App{Talk: talk, Backend: backend, History: store, Persona: p}, nil
}

// Candidates lists every completion backend cfg can describe. Opening one
// only validates its settings; no request is sent.
func Candidates(cfg config.Config) []gateway.Candidate {
	return []gateway.Candidate{
		{
			Backend: gateway.BackendSDK,
			Open: func() (gateway.Completer, error) {
				return openaisdk.New(openaisdk.Config{
					APIKey:  cfg.OpenAIAPIKey,
					Project: cfg.OpenAIProjectID,
					BaseURL: cfg.OpenAIBaseURL,
				})
			},
		},
		{
			Backend: gateway.BackendHTTP,
			Open: func() (gateway.Completer, error) {
				opts := []openai.Option{openai.WithOrganization(cfg.OpenAIProjectID)}
				if cfg.OpenAIBaseURL != "" {
					opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
				}
				return openai.NewClient(cfg.OpenAIAPIKey, opts...)
			},
		},
		{
			Backend: gateway.BackendAnthropic,
			Open: func() (gateway.Completer, error) {
				return anthropic.New(anthropic.Config{APIKey: cfg.AnthropicAPIKey})
			},
		},
	}
}

func resolveOpenAIKey(ctx context.Context, cfg config.Config, params paramstore.Getter) (string, error) {
	if cfg.OpenAIAPIKey != "" || cfg.ParamPrefix == "" {
		return cfg.OpenAIAPIKey, nil
	}
	if params == nil {
		return "", errors.New("app: PARAM_PREFIX is set but no parameter store is configured")
	}
	key, err := paramstore.FetchToken(ctx, params, paramstore.TokenName(cfg.ParamPrefix))
	if err != nil {
		return "", fmt.Errorf("app: resolve openai key: %w", err)
	}
	return key, nil
}

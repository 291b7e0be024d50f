package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"xhiqi-bot/internal/budget"
	"xhiqi-bot/internal/domain"
	"xhiqi-bot/internal/gateway"
	"xhiqi-bot/internal/history"
	"xhiqi-bot/internal/persona"
)

const (
	DefaultPrimaryModel     = "gpt-4o-mini"
	DefaultFallbackModel    = "gpt-3.5-turbo"
	DefaultAsideProbability = 0.15
	DefaultAsideMaxTokens   = 100
	DefaultMaxMessageLength = 2000
)

// Random is the source for the aside roll. Implementations used from
// several goroutines must be safe for concurrent use.
type Random interface {
	Float64() float64
}

var errEmptyReply = errors.New("empty completion")

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

// Config holds the tunables of TalkService. Zero values take the defaults,
// except AsideProbability where zero disables asides.
type Config struct {
	PrimaryModel     string
	FallbackModel    string
	Temperature      float64
	AsideProbability float64
	AsideMaxTokens   int
	MaxMessageLength int
}

type TalkService struct {
	llm     gateway.Completer
	history history.Store
	policy  budget.Policy
	persona persona.Persona
	cfg     Config
	random  Random
	logger  *slog.Logger
}

type Option func(*TalkService)

// WithRandom replaces the aside random source.
func WithRandom(r Random) Option {
	return func(s *TalkService) {
		if r != nil {
			s.random = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *TalkService) {
		if l != nil {
			s.logger = l
		}
	}
}

type TalkInput struct {
	Speaker string
	Text    string
	// Scope partitions history when the store is partitioned, e.g. a
	// channel id. Shared stores ignore it.
	Scope     string
	RequestID string
}

type TalkOutput struct {
	Reply    string
	Model    string
	Fallback bool
	Failed   bool
	Aside    bool
}

func NewTalkService(llm gateway.Completer, h history.Store, policy budget.Policy, p persona.Persona, cfg Config, opts ...Option) (*TalkService, error) {
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if h == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if strings.TrimSpace(p.Apology) == "" {
		return nil, errors.New("usecase: persona apology must not be empty")
	}
	if policy.Trigger() == "" {
		policy = budget.DefaultPolicy()
	}
	if cfg.PrimaryModel == "" {
		cfg.PrimaryModel = DefaultPrimaryModel
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = DefaultFallbackModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = gateway.DefaultTemperature
	}
	if cfg.AsideProbability < 0 {
		cfg.AsideProbability = 0
	}
	if cfg.AsideMaxTokens <= 0 {
		cfg.AsideMaxTokens = DefaultAsideMaxTokens
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}

	s := &TalkService{
		llm:     llm,
		history: h,
		policy:  policy,
		persona: p,
		cfg:     cfg,
		random:  globalRandom{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Reply turns one inbound message into the text to send back. Completion
// failures are absorbed: when both models fail the persona's apology is
// returned with Failed set. The only errors are *Error for rejected input.
func (s *TalkService) Reply(ctx context.Context, in TalkInput) (TalkOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return TalkOutput{}, newError(ErrorInvalidInput, ReasonEmptyMessage, nil)
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return TalkOutput{}, newError(ErrorInvalidInput, ReasonMessageTooLong, nil)
	}
	logger := s.logger.With("request_id", in.RequestID, "scope", in.Scope)

	decision := s.policy.Decide(text)

	s.history.Append(in.Scope, domain.UserTurn(strings.TrimSpace(in.Speaker), text))
	messages := append(
		[]domain.Turn{domain.SystemTurn(buildSystemPrompt(s.persona, decision))},
		s.history.Snapshot(in.Scope)...,
	)

	raw, model, fallback, err := s.completeWithFallback(ctx, logger, messages, decision.Tokens)
	if err != nil {
		return TalkOutput{Reply: s.persona.Apology, Failed: true}, nil
	}

	reply := shorten(raw, decision.Chars)
	s.history.Append(in.Scope, domain.AssistantTurn(reply))

	out := TalkOutput{
		Reply:    reply,
		Model:    model,
		Fallback: fallback,
	}
	if !decision.Expanded && s.rollAside() {
		if withAside, ok := s.addAside(ctx, logger, reply, decision.Chars); ok {
			out.Reply = withAside
			out.Aside = true
		}
	}

	logger.Info("reply delivered",
		"model", out.Model,
		"fallback", out.Fallback,
		"aside", out.Aside,
		"expanded", decision.Expanded,
		"chars", visibleLen(out.Reply),
	)
	return out, nil
}

func (s *TalkService) completeWithFallback(ctx context.Context, logger *slog.Logger, messages []domain.Turn, maxTokens int) (string, string, bool, error) {
	req := gateway.Request{
		Model:       s.cfg.PrimaryModel,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: s.cfg.Temperature,
	}
	reply, err := s.complete(ctx, req)
	if err == nil {
		return reply, req.Model, false, nil
	}
	logger.Warn("primary completion failed", "model", req.Model, "err", err)

	req.Model = s.cfg.FallbackModel
	reply, err = s.complete(ctx, req)
	if err == nil {
		return reply, req.Model, true, nil
	}
	logger.Error("fallback completion failed", "model", req.Model, "err", err)
	return "", "", false, err
}

// complete treats a blank reply like any other gateway failure.
func (s *TalkService) complete(ctx context.Context, req gateway.Request) (string, error) {
	reply, err := s.llm.Complete(ctx, req)
	if err != nil {
		return "", gateway.AsError(req.Model, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", gateway.AsError(req.Model, errEmptyReply)
	}
	return reply, nil
}

func (s *TalkService) rollAside() bool {
	return s.cfg.AsideProbability > 0 && s.random.Float64() < s.cfg.AsideProbability
}

// addAside runs the best-effort secondary completion. Its failure is only
// logged.
func (s *TalkService) addAside(ctx context.Context, logger *slog.Logger, reply string, width int) (string, bool) {
	aside, err := s.complete(ctx, gateway.Request{
		Model:       s.cfg.PrimaryModel,
		Messages:    buildAsideMessages(s.persona),
		MaxTokens:   s.cfg.AsideMaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		logger.Warn("aside completion failed", "model", s.cfg.PrimaryModel, "err", err)
		return reply, false
	}
	return appendAside(reply, aside, width)
}

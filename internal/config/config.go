// Package config reads the process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"xhiqi-bot/internal/budget"
	"xhiqi-bot/internal/gateway"
	"xhiqi-bot/internal/history"
	"xhiqi-bot/internal/usecase"
)

const (
	DefaultCompletionTimeout = 30 * time.Second
	DefaultPersonaFile       = "persona.yaml"
	DefaultHealthAddr        = ":8080"
)

type Config struct {
	DiscordToken string
	GuildID      string

	OpenAIAPIKey    string
	OpenAIProjectID string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	ParamPrefix     string

	Backend           gateway.Backend
	PrimaryModel      string
	FallbackModel     string
	CompletionTimeout time.Duration
	Temperature       float64

	TriggerKeyword string
	Normal         budget.Limits
	Expanded       budget.Limits

	HistorySize  int
	HistoryScope history.Scope

	AsideProbability float64
	AsideMaxTokens   int
	MaxMessageLength int

	PersonaFile string
	HealthAddr  string
	LogLevel    slog.Level
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) (bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("config: load %s: %w", path, err)
	}
	return true, nil
}

// FromEnv reads every setting, applying defaults for unset variables. All
// malformed values are reported together.
func FromEnv() (Config, error) {
	r := &reader{}
	cfg := Config{
		DiscordToken:    r.str("DISCORD_TOKEN", ""),
		GuildID:         r.str("GUILD_ID", ""),
		OpenAIAPIKey:    r.str("OPENAI_API_KEY", ""),
		OpenAIProjectID: r.str("OPENAI_PROJECT_ID", ""),
		OpenAIBaseURL:   r.str("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: r.str("ANTHROPIC_API_KEY", ""),
		ParamPrefix:     r.str("PARAM_PREFIX", ""),

		PrimaryModel:      r.str("PRIMARY_MODEL", usecase.DefaultPrimaryModel),
		FallbackModel:     r.str("FALLBACK_MODEL", usecase.DefaultFallbackModel),
		CompletionTimeout: r.duration("COMPLETION_TIMEOUT", DefaultCompletionTimeout),
		Temperature:       r.float("TEMPERATURE", gateway.DefaultTemperature),

		TriggerKeyword: r.str("TRIGGER_KEYWORD", budget.DefaultTrigger),
		Normal: budget.Limits{
			Chars:  r.positiveInt("BUDGET_DEFAULT_CHARS", budget.DefaultChars),
			Tokens: r.positiveInt("BUDGET_DEFAULT_TOKENS", budget.DefaultTokens),
		},
		Expanded: budget.Limits{
			Chars:  r.positiveInt("BUDGET_EXPANDED_CHARS", budget.DefaultExpandedChars),
			Tokens: r.positiveInt("BUDGET_EXPANDED_TOKENS", budget.DefaultExpandedTokens),
		},

		HistorySize: r.positiveInt("HISTORY_SIZE", history.DefaultSize),

		AsideProbability: r.float("ASIDE_PROBABILITY", usecase.DefaultAsideProbability),
		AsideMaxTokens:   r.positiveInt("ASIDE_MAX_TOKENS", usecase.DefaultAsideMaxTokens),
		MaxMessageLength: r.positiveInt("MAX_MESSAGE_LENGTH", usecase.DefaultMaxMessageLength),

		PersonaFile: r.str("PERSONA_FILE", DefaultPersonaFile),
		HealthAddr:  r.str("HEALTH_ADDR", DefaultHealthAddr),
	}

	backend, err := gateway.ParseBackend(os.Getenv("COMPLETION_BACKEND"))
	r.add(err)
	cfg.Backend = backend

	switch scope := history.Scope(strings.ToLower(r.str("HISTORY_SCOPE", string(history.ScopeGlobal)))); scope {
	case history.ScopeGlobal, history.ScopeChannel:
		cfg.HistoryScope = scope
	default:
		r.add(fmt.Errorf("HISTORY_SCOPE: unknown scope %q", scope))
	}

	if p := cfg.AsideProbability; p < 0 || p > 1 {
		r.add(fmt.Errorf("ASIDE_PROBABILITY: %v is outside [0, 1]", p))
	}
	if t := cfg.Temperature; t < 0 || t > 2 {
		r.add(fmt.Errorf("TEMPERATURE: %v is outside [0, 2]", t))
	}

	if lvl := r.str("LOG_LEVEL", ""); lvl != "" {
		r.add(cfg.LogLevel.UnmarshalText([]byte(lvl)))
	}

	if err := r.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireDiscord reports whether the settings needed by the bot binary are
// present.
func (c Config) RequireDiscord() error {
	if c.DiscordToken == "" {
		return errors.New("config: DISCORD_TOKEN is required")
	}
	return nil
}

// Policy builds the budget policy from the configured limits.
func (c Config) Policy() budget.Policy {
	return budget.NewPolicy(c.TriggerKeyword, c.Normal, c.Expanded)
}

// TalkConfig projects the orchestrator settings.
func (c Config) TalkConfig() usecase.Config {
	return usecase.Config{
		PrimaryModel:     c.PrimaryModel,
		FallbackModel:    c.FallbackModel,
		Temperature:      c.Temperature,
		AsideProbability: c.AsideProbability,
		AsideMaxTokens:   c.AsideMaxTokens,
		MaxMessageLength: c.MaxMessageLength,
	}
}

type reader struct {
	errs []error
}

func (r *reader) add(err error) {
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *reader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(r.errs...))
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) positiveInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.add(fmt.Errorf("%s: want a positive integer, got %q", key, v))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.add(fmt.Errorf("%s: want a number, got %q", key, v))
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.add(fmt.Errorf("%s: want a positive duration, got %q", key, v))
		return def
	}
	return d
}

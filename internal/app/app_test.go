package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xhiqi-bot/internal/config"
	"xhiqi-bot/internal/gateway"
	"xhiqi-bot/internal/history"
	"xhiqi-bot/internal/usecase"
)

type fakeParams struct {
	values map[string]string
	asked  []string
}

func (f *fakeParams) GetParameter(_ context.Context, name string) (string, error) {
	f.asked = append(f.asked, name)
	v, ok := f.values[name]
	if !ok {
		return "", errors.New("parameter not found")
	}
	return v, nil
}

type noAside struct{}

func (noAside) Float64() float64 { return 0.99 }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Backend:           gateway.BackendAuto,
		PrimaryModel:      "gpt-4o-mini",
		FallbackModel:     "gpt-3.5-turbo",
		CompletionTimeout: 5 * time.Second,
		HistorySize:       20,
		HistoryScope:      history.ScopeGlobal,
		PersonaFile:       filepath.Join(t.TempDir(), "persona.yaml"),
	}
}

func TestBuild_HTTPBackendWithParamStoreKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "hi there"}}},
		})
	}))
	defer srv.Close()

	cfg := baseConfig(t)
	cfg.Backend = gateway.BackendHTTP
	cfg.OpenAIBaseURL = srv.URL
	cfg.ParamPrefix = "/xhiqi/"
	params := &fakeParams{values: map[string]string{"/xhiqi/open-ai-token": `{"token":"sk-ssm"}`}}

	a, err := Build(context.Background(), quietLogger(), cfg, WithParamStore(params), WithRandom(noAside{}))
	require.NoError(t, err)
	require.Equal(t, gateway.BackendHTTP, a.Backend)
	require.Equal(t, []string{"/xhiqi/open-ai-token"}, params.asked)

	out, err := a.Talk.Reply(context.Background(), usecase.TalkInput{Speaker: "alice", Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, "hi there", out.Reply)
	require.Equal(t, "Bearer sk-ssm", gotAuth)
	require.Len(t, a.History.Snapshot(""), 2)
}

func TestBuild_AutoPrefersSDK(t *testing.T) {
	cfg := baseConfig(t)
	cfg.OpenAIAPIKey = "sk-env"

	a, err := Build(context.Background(), quietLogger(), cfg)
	require.NoError(t, err)
	require.Equal(t, gateway.BackendSDK, a.Backend)
}

func TestBuild_ChannelScopedHistory(t *testing.T) {
	cfg := baseConfig(t)
	cfg.OpenAIAPIKey = "sk-env"
	cfg.HistoryScope = history.ScopeChannel

	a, err := Build(context.Background(), quietLogger(), cfg)
	require.NoError(t, err)
	_, ok := a.History.(*history.Partitioned)
	require.True(t, ok)
}

func TestBuild_NoUsableBackend(t *testing.T) {
	_, err := Build(context.Background(), quietLogger(), baseConfig(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no usable backend")
}

func TestBuild_ParamPrefixWithoutStore(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ParamPrefix = "/xhiqi"

	_, err := Build(context.Background(), quietLogger(), cfg)
	require.Error(t, err)
}

func TestBuild_EnvKeySkipsParamStore(t *testing.T) {
	cfg := baseConfig(t)
	cfg.OpenAIAPIKey = "sk-env"
	cfg.ParamPrefix = "/xhiqi"
	params := &fakeParams{}

	_, err := Build(context.Background(), quietLogger(), cfg, WithParamStore(params))
	require.NoError(t, err)
	require.Empty(t, params.asked)
}

func TestBuild_BadPersonaFile(t *testing.T) {
	cfg := baseConfig(t)
	cfg.OpenAIAPIKey = "sk-env"
	require.NoError(t, os.WriteFile(cfg.PersonaFile, []byte("name: [oops"), 0o600))

	_, err := Build(context.Background(), quietLogger(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "persona")
}

func TestCandidates_AnthropicNeedsItsOwnKey(t *testing.T) {
	cfg := baseConfig(t)
	cfg.OpenAIAPIKey = "sk-env"

	_, _, err := gateway.Select(quietLogger(), gateway.BackendAnthropic, Candidates(cfg)...)
	require.Error(t, err)

	cfg.AnthropicAPIKey = "sk-ant"
	_, backend, err := gateway.Select(quietLogger(), gateway.BackendAnthropic, Candidates(cfg)...)
	require.NoError(t, err)
	require.Equal(t, gateway.BackendAnthropic, backend)
}

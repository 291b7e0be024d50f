package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/require"

	"xhiqi-bot/internal/domain"
	"xhiqi-bot/internal/gateway"
)

const messageBody = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-mock",
	"content": [{"type": "text", "text": " こんにちは、しきです。 "}],
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 10, "output_tokens": 5}
}`

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		APIKey:     "sk-ant-test",
		BaseURL:    srv.URL + "/",
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{APIKey: " "})
	require.Error(t, err)
}

func TestComplete_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			System    []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		require.Equal(t, "claude-mock", body.Model)
		require.Equal(t, 200, body.MaxTokens)
		require.Len(t, body.System, 1)
		require.Equal(t, "persona", body.System[0].Text)
		require.Len(t, body.Messages, 1)
		require.Equal(t, "user", body.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.Complete(context.Background(), gateway.Request{
		Model:       "claude-mock",
		Messages:    []domain.Turn{domain.SystemTurn("persona"), domain.UserTurn("alice", "hi")},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	require.Equal(t, "こんにちは、しきです。", out)
}

func TestComplete_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), gateway.Request{
		Model:    "claude-mock",
		Messages: []domain.Turn{domain.UserTurn("", "hi")},
	})
	var gwErr *gateway.Error
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
}

func TestComplete_RequiresUserMessage(t *testing.T) {
	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), gateway.Request{Model: "m", Messages: []domain.Turn{domain.SystemTurn("only system")}})
	require.Error(t, err)

	_, err = c.Complete(context.Background(), gateway.Request{})
	require.Error(t, err)
}

func TestSplitTurns(t *testing.T) {
	system, msgs := splitTurns([]domain.Turn{
		domain.SystemTurn("a"),
		domain.AssistantTurn("stale reply"),
		domain.UserTurn("しき", "hello"),
		domain.AssistantTurn("hi"),
		domain.SystemTurn("b"),
		domain.UserTurn("", " "),
	})
	require.Equal(t, "a\n\nb", system)
	require.Len(t, msgs, 2)
	require.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	require.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)

	raw, err := json.Marshal(msgs[0])
	require.NoError(t, err)
	require.Contains(t, string(raw), "しき: hello")
}

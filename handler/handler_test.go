package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"xhiqi-bot/internal/usecase"
)

type stubTalker struct {
	out usecase.TalkOutput
	err error
	in  usecase.TalkInput
}

func (s *stubTalker) Reply(_ context.Context, in usecase.TalkInput) (usecase.TalkOutput, error) {
	s.in = in
	return s.out, s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/talk",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, talk Talker) *Handler {
	t.Helper()
	h, err := NewHandler(talk, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	talk := &stubTalker{out: usecase.TalkOutput{Reply: "hello", Model: "gpt-4o-mini", Aside: true}}
	h := newTestHandler(t, talk)

	resp, err := h.Handle(context.Background(), makeEvent(`{"message":"こんにちは","speaker":"alice","channel":"c1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, "こんにちは", talk.in.Text)
	require.Equal(t, "alice", talk.in.Speaker)
	require.Equal(t, "c1", talk.in.Scope)
	require.NotEmpty(t, talk.in.RequestID)
	require.Equal(t, talk.in.RequestID, resp.Headers["X-Correlation-Id"])

	out := parseBody[talkResponse](t, resp.Body)
	require.Equal(t, talkResponse{Reply: "hello", Model: "gpt-4o-mini", Aside: true}, out)
}

func TestHandle_ApologyIsStillOK(t *testing.T) {
	talk := &stubTalker{out: usecase.TalkOutput{Reply: "sorry", Failed: true}}
	h := newTestHandler(t, talk)

	resp, err := h.Handle(context.Background(), makeEvent(`{"message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, parseBody[talkResponse](t, resp.Body).Failed)
}

func TestHandle_InvalidBody(t *testing.T) {
	talk := &stubTalker{}
	h := newTestHandler(t, talk)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Empty(t, talk.in.Text)
}

func TestHandle_Base64Body(t *testing.T) {
	talk := &stubTalker{out: usecase.TalkOutput{Reply: "ok"}}
	h := newTestHandler(t, talk)

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(`{"message":"encoded"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "encoded", talk.in.Text)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "empty", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: usecase.ReasonEmptyMessage}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "too long", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: usecase.ReasonMessageTooLong}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubTalker{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(`{"message":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	talk := &stubTalker{out: usecase.TalkOutput{Reply: "ok"}}
	h := newTestHandler(t, talk)

	event := makeEvent(`{"message":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
	require.Equal(t, "corr-123", talk.in.RequestID)
}

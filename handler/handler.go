// Package handler exposes the talk use case as an API Gateway Lambda
// function.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"xhiqi-bot/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type Talker interface {
	Reply(ctx context.Context, in usecase.TalkInput) (usecase.TalkOutput, error)
}

type talkRequest struct {
	Message string `json:"message"`
	Speaker string `json:"speaker"`
	Channel string `json:"channel"`
}

type talkResponse struct {
	Reply    string `json:"reply"`
	Model    string `json:"model,omitempty"`
	Fallback bool   `json:"fallback"`
	Failed   bool   `json:"failed"`
	Aside    bool   `json:"aside"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type Handler struct {
	talk   Talker
	logger *slog.Logger
	newID  func() string
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(talk Talker, opts ...Option) (*Handler, error) {
	if talk == nil {
		return nil, errors.New("handler: talker must not be nil")
	}
	h := &Handler{talk: talk, logger: slog.Default(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves POST /talk with a JSON body {"message", "speaker", "channel"}.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = h.newID()
	}
	logger := h.logger.With("correlation_id", correlationID, "path", req.Path)

	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return h.fail(correlationID, http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_body"), nil
		}
		body = string(raw)
	}

	var in talkRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		logger.Warn("invalid request body", "err", err)
		return h.fail(correlationID, http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_body"), nil
	}

	out, err := h.talk.Reply(ctx, usecase.TalkInput{
		Speaker:   in.Speaker,
		Text:      in.Message,
		Scope:     in.Channel,
		RequestID: correlationID,
	})
	if err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) {
			logger.Warn("talk rejected", "code", ucErr.Code, "reason", ucErr.Reason)
			return h.fail(correlationID, statusFor(ucErr.Code), string(ucErr.Code), ucErr.Reason), nil
		}
		logger.Error("talk failed", "err", err)
		return h.fail(correlationID, http.StatusInternalServerError, string(usecase.ErrorInternal), ""), nil
	}

	return h.respond(correlationID, http.StatusOK, talkResponse{
		Reply:    out.Reply,
		Model:    out.Model,
		Fallback: out.Fallback,
		Failed:   out.Failed,
		Aside:    out.Aside,
	}), nil
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(correlationID string, status int, code, reason string) events.APIGatewayProxyResponse {
	return h.respond(correlationID, status, errorResponse{Error: code, Reason: reason})
}

func (h *Handler) respond(correlationID string, status int, v any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(b),
	}
}

// header looks key up case-insensitively; API Gateway passes headers as sent.
func header(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

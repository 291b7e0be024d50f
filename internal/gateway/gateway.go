// Package gateway is the boundary between the bot and a chat completion API.
// Backends live under internal/integrations; this package owns the contract,
// the error type, and startup-time backend selection.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"xhiqi-bot/internal/domain"
)

const DefaultTemperature = 0.7

// Request is a single chat completion call.
type Request struct {
	Model       string
	Messages    []domain.Turn
	MaxTokens   int
	Temperature float64
}

// Completer runs a chat completion and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// httpStatusCoder is implemented by backend errors that carry an upstream
// HTTP status.
type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Error is any failure of a completion call: transport, auth, quota,
// malformed request, unknown model, or deadline.
type Error struct {
	Model      string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Timeout:
		return fmt.Sprintf("gateway: %s: timed out: %v", e.Model, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway: %s: status %d: %v", e.Model, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("gateway: %s: %v", e.Model, e.Err)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) HTTPStatusCode() int {
	return e.StatusCode
}

// AsError wraps err as *Error unless it already is one.
func AsError(model string, err error) *Error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	out := &Error{
		Model:   model,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
	var status httpStatusCoder
	if errors.As(err, &status) {
		out.StatusCode = status.HTTPStatusCode()
	}
	return out
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds every call to next by timeout and normalizes failures
// to *Error. Empty replies are failures too. A non-positive timeout only
// normalizes errors.
func WithTimeout(next Completer, timeout time.Duration) Completer {
	return &timeoutCompleter{next: next, timeout: timeout}
}

func (c *timeoutCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.next.Complete(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return "", AsError(req.Model, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", AsError(req.Model, errors.New("empty completion"))
	}
	return out, nil
}

package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Backend names a concrete Completer implementation.
type Backend string

const (
	BackendAuto      Backend = "auto"
	BackendSDK       Backend = "sdk"
	BackendHTTP      Backend = "http"
	BackendAnthropic Backend = "anthropic"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendSDK, BackendHTTP, BackendAnthropic:
		return b, nil
	default:
		return "", fmt.Errorf("gateway: unknown backend %q", s)
	}
}

// Candidate is a backend that may be opened at startup.
type Candidate struct {
	Backend Backend
	Open    func() (Completer, error)
}

// autoOrder is the preference order for BackendAuto: the SDK client first,
// the raw HTTP client if the SDK client cannot be built.
var autoOrder = []Backend{BackendSDK, BackendHTTP}

// Select opens one backend and returns it with its name. With BackendAuto
// the candidates are tried in autoOrder and the first that opens wins;
// any other value opens exactly that candidate.
func Select(logger *slog.Logger, want Backend, candidates ...Candidate) (Completer, Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[Backend]Candidate, len(candidates))
	for _, c := range candidates {
		if c.Open != nil {
			byName[c.Backend] = c
		}
	}

	order := []Backend{want}
	if want == BackendAuto || want == "" {
		order = autoOrder
	}

	var errs []error
	for _, name := range order {
		c, ok := byName[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: not available", name))
			continue
		}
		completer, err := c.Open()
		if err != nil {
			logger.Warn("completion backend unavailable", "backend", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if completer == nil {
			errs = append(errs, fmt.Errorf("%s: opened nil completer", name))
			continue
		}
		logger.Info("completion backend selected", "backend", name)
		return completer, name, nil
	}
	return nil, "", fmt.Errorf("gateway: no usable backend: %w", errors.Join(errs...))
}

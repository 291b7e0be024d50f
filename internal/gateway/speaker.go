package gateway

import (
	"strings"

	"xhiqi-bot/internal/domain"
)

const maxNameLen = 64

// WireName returns name in the form chat completion APIs accept for the
// per-message name field, or false if nothing usable survives.
func WireName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return "", false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return "", false
		}
	}
	return name, true
}

// LabeledContent prefixes a user turn's content with its speaker so the
// speaker survives backends (or names) that have no name field.
func LabeledContent(turn domain.Turn) string {
	name := strings.TrimSpace(turn.Name)
	if turn.Role != domain.RoleUser || name == "" {
		return turn.Content
	}
	return name + ": " + turn.Content
}

package usecase

import (
	"strconv"
	"strings"

	"github.com/rivo/uniseg"

	"xhiqi-bot/internal/budget"
	"xhiqi-bot/internal/domain"
	"xhiqi-bot/internal/persona"
)

const ellipsis = "…"

// buildSystemPrompt renders the persona and the reply budget into the
// system turn prepended to every primary and fallback call.
func buildSystemPrompt(p persona.Persona, d budget.Decision) string {
	style := p.Concise
	if d.Expanded {
		style = p.Detailed
	}
	return joinNonEmpty(
		"あなたの名前は"+strings.TrimSpace(p.Name)+"。",
		strings.TrimSpace(p.Personality),
		withBudget(style, d.Chars),
	)
}

func buildAsideMessages(p persona.Persona) []domain.Turn {
	return []domain.Turn{
		domain.SystemTurn(p.Aside.System),
		domain.UserTurn("", p.Aside.Prompt),
	}
}

// withBudget substitutes %d in style with chars, or appends the limit when
// the style has no placeholder.
func withBudget(style string, chars int) string {
	style = strings.TrimSpace(style)
	n := strconv.Itoa(chars)
	if strings.Contains(style, "%d") {
		return strings.ReplaceAll(style, "%d", n)
	}
	return joinNonEmpty(style, n+" 文字以内で答えてください。")
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

// visibleLen counts user-perceived characters.
func visibleLen(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// shorten collapses whitespace and cuts text to at most width visible
// characters, ending in an ellipsis when anything was dropped. A cut inside
// an ASCII word backs off to the preceding space.
func shorten(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if width <= 0 {
		return ""
	}
	if visibleLen(text) <= width {
		return text
	}

	room := width - visibleLen(ellipsis)
	if room <= 0 {
		return takeGraphemes(text, width)
	}
	head := takeGraphemes(text, room)
	rest := text[len(head):]
	if midWord(head, rest) {
		if i := strings.LastIndexByte(head, ' '); i > 0 {
			head = head[:i]
		}
	}
	return strings.TrimRight(head, " ") + ellipsis
}

// takeGraphemes returns the prefix of s holding its first n grapheme
// clusters.
func takeGraphemes(s string, n int) string {
	g := uniseg.NewGraphemes(s)
	end := 0
	for i := 0; i < n && g.Next(); i++ {
		_, end = g.Positions()
	}
	return s[:end]
}

func midWord(head, rest string) bool {
	if head == "" || rest == "" {
		return false
	}
	return isASCIIWordByte(head[len(head)-1]) && isASCIIWordByte(rest[0])
}

func isASCIIWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// appendAside attaches aside to reply in parentheses, shortening the aside
// so the result stays within width. It reports false when no room is left.
func appendAside(reply, aside string, width int) (string, bool) {
	aside = strings.Trim(strings.Join(strings.Fields(aside), " "), "()（）「」 ")
	if aside == "" {
		return reply, false
	}
	const open, closing = " （", "）"
	room := width - visibleLen(reply) - visibleLen(open) - visibleLen(closing)
	if room < 2 {
		return reply, false
	}
	return reply + open + shorten(aside, room) + closing, true
}

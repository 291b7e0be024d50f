// Package persona loads the bot's character: its name, the personality text
// injected into every system prompt, and the fixed strings used for asides
// and apologies.
package persona

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is read once at startup and never mutated.
type Persona struct {
	Name        string `yaml:"name"`
	Personality string `yaml:"personality"`
	// Concise and Detailed are the answer-style instructions; %d in either
	// is replaced by the character budget.
	Concise  string `yaml:"concise"`
	Detailed string `yaml:"detailed"`
	Aside    Aside  `yaml:"aside"`
	Apology  string `yaml:"apology"`
}

// Aside holds the prompts for the occasional one-line remark.
type Aside struct {
	System string `yaml:"system"`
	Prompt string `yaml:"prompt"`
}

// Default is the built-in persona used when no file is configured.
func Default() Persona {
	return Persona{
		Name:        "しき（xhiqi）",
		Personality: "穏やかで丁寧な話し方をします。",
		Concise:     "%d 文字以内で日本語で簡潔に答えてください。",
		Detailed:    "%d 文字以内で日本語で、省略せず網羅的に詳しく答えてください。",
		Aside: Aside{
			System: "あなたはしき（xhiqi）の心の声です。本音を20文字以内の短いひとことで呟いてください。",
			Prompt: "いまの気分をひとことでどうぞ。",
		},
		Apology: "OpenAI API エラーで返答できませんでした…",
	}
}

// Load reads a YAML persona from path. A missing file yields Default; any
// field the file leaves empty keeps its default.
func Load(path string) (Persona, bool, error) {
	p := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return p, false, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, false, nil
		}
		return Persona{}, false, fmt.Errorf("persona: read %s: %w", path, err)
	}

	var fromFile Persona
	if err := yaml.Unmarshal(b, &fromFile); err != nil {
		return Persona{}, false, fmt.Errorf("persona: parse %s: %w", path, err)
	}
	p.merge(fromFile)
	return p, true, nil
}

func (p *Persona) merge(o Persona) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&p.Name, o.Name)
	set(&p.Personality, o.Personality)
	set(&p.Concise, o.Concise)
	set(&p.Detailed, o.Detailed)
	set(&p.Aside.System, o.Aside.System)
	set(&p.Aside.Prompt, o.Aside.Prompt)
	set(&p.Apology, o.Apology)
}

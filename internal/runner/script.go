package runner

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// scriptHeader starts every rendered script. set -e gives the script the
// same fail-fast behavior as Runner.Run.
const scriptHeader = "#!/bin/sh\nset -e\n"

// inlineSeparator joins the steps of an inline script.
const inlineSeparator = "; "

// Quote returns word quoted for a POSIX shell. Words that need no quoting
// are returned unchanged.
func Quote(word string) (string, error) {
	q, err := syntax.Quote(word, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("cannot quote %q for a POSIX shell: %w", word, err)
	}
	return q, nil
}

// QuoteCommand renders cmd as a single POSIX shell line. Extra environment
// variables become leading assignments, and a working directory other than
// "." runs the command in a subshell after cd so later lines are unaffected.
func QuoteCommand(cmd model.Command) (string, error) {
	parts := make([]string, 0, len(cmd.Env)+len(cmd.Args)+1)

	for _, kv := range cmd.Env {
		name, value, _ := strings.Cut(kv, "=")
		q, err := Quote(value)
		if err != nil {
			return "", err
		}
		parts = append(parts, name+"="+q)
	}

	for _, word := range cmd.Argv() {
		q, err := Quote(word)
		if err != nil {
			return "", err
		}
		parts = append(parts, q)
	}

	line := strings.Join(parts, " ")
	if cmd.Dir == "" || cmd.Dir == "." {
		return line, nil
	}

	dir, err := Quote(cmd.Dir)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(cd %s && %s)", dir, line), nil
}

// Lines renders each step of the plan as one shell line, in order.
func (p *Plan) Lines() ([]string, error) {
	lines := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		line, err := QuoteCommand(s)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Step, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Script renders the plan as a standalone POSIX shell script. Equal plans
// render to byte-identical scripts.
func (p *Plan) Script() (string, error) {
	lines, err := p.Lines()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(scriptHeader)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Inline renders the plan as a single shell line, "set -e; step; step",
// suitable as the argument of sh -c. The result has no newlines, so it
// quotes as one POSIX word inside an outer script.
func (p *Plan) Inline() (string, error) {
	lines, err := p.Lines()
	if err != nil {
		return "", err
	}
	return strings.Join(append([]string{"set -e"}, lines...), inlineSeparator), nil
}

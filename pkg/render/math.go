package render

import (
	"errors"
	"html"
)

// MathRenderer turns a TeX expression into markup.
type MathRenderer interface {
	RenderMath(tex string, display bool) (string, error)
}

// ErrUnbalanced is returned for TeX with mismatched braces.
var ErrUnbalanced = errors.New("unbalanced braces")

// ErrEmpty is returned for an empty expression.
var ErrEmpty = errors.New("empty expression")

// KaTeX emits markup for the KaTeX auto-render extension: the expression is
// escaped and wrapped in \( \) or \[ \] inside a span the client renders.
type KaTeX struct{}

// RenderMath implements MathRenderer.
func (KaTeX) RenderMath(tex string, display bool) (string, error) {
	if err := checkTeX(tex); err != nil {
		return "", err
	}
	if display {
		return `<span class="math math-display">\[` + html.EscapeString(tex) + `\]</span>`, nil
	}
	return `<span class="math math-inline">\(` + html.EscapeString(tex) + `\)</span>`, nil
}

func checkTeX(tex string) error {
	depth := 0
	empty := true
	escaped := false
	for _, r := range tex {
		if r != ' ' && r != '\t' && r != '\n' {
			empty = false
		}
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return ErrUnbalanced
			}
		}
	}
	if empty {
		return ErrEmpty
	}
	if depth != 0 {
		return ErrUnbalanced
	}
	return nil
}

// Package render converts raw answer text (markdown subset plus TeX) into
// HTML for display.
package render

import (
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/jajabor-ai/tutor/pkg/logging"
)

var (
	mathRe      = regexp.MustCompile(`\$\$([^$]+?)\$\$|\\\[([\s\S]+?)\\\]|\\\(([\s\S]+?)\\\)|\$([^$\n]+?)\$`)
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe    = regexp.MustCompile(`\*(.+?)\*`)
	orderedRe   = regexp.MustCompile(`^([০-৯]+|[0-9]+)\. (.*)$`)
	unorderedRe = regexp.MustCompile(`^[-*+] (.*)$`)
)

const slot = "\x00"

type mathSpan struct {
	source  string
	tex     string
	display bool
}

// Pipeline renders answers. It holds no per-call state and is safe for
// concurrent use.
type Pipeline struct {
	math   MathRenderer
	logger *slog.Logger
}

// New creates a Pipeline. A nil MathRenderer uses KaTeX.
func New(m MathRenderer, logger *slog.Logger) *Pipeline {
	if m == nil {
		m = KaTeX{}
	}
	return &Pipeline{math: m, logger: logging.OrDiscard(logger).With("component", "render")}
}

// Render converts raw to HTML. The output depends only on raw.
func (p *Pipeline) Render(raw string) string {
	if raw == "" {
		return ""
	}
	raw = strings.ReplaceAll(raw, slot, "")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	text, spans := liftMath(raw)
	out := blocks(html.EscapeString(text))
	if len(spans) == 0 {
		return out
	}
	return p.substitute(out, spans)
}

// liftMath replaces every math span with a numbered slot so escaping and
// markdown never touch TeX.
func liftMath(raw string) (string, []mathSpan) {
	var spans []mathSpan
	text := mathRe.ReplaceAllStringFunc(raw, func(m string) string {
		sub := mathRe.FindStringSubmatch(m)
		span := mathSpan{source: m}
		switch {
		case sub[1] != "":
			span.tex, span.display = sub[1], true
		case sub[2] != "":
			span.tex, span.display = sub[2], true
		case sub[3] != "":
			span.tex = sub[3]
		default:
			span.tex = sub[4]
		}
		spans = append(spans, span)
		return slot + strconv.Itoa(len(spans)-1) + slot
	})
	return text, spans
}

func (p *Pipeline) substitute(out string, spans []mathSpan) string {
	var b strings.Builder
	for {
		i := strings.Index(out, slot)
		if i < 0 {
			b.WriteString(out)
			return b.String()
		}
		j := strings.Index(out[i+1:], slot)
		if j < 0 {
			b.WriteString(out)
			return b.String()
		}
		b.WriteString(out[:i])
		n, err := strconv.Atoi(out[i+1 : i+1+j])
		if err == nil && n < len(spans) {
			b.WriteString(p.renderSpan(spans[n]))
		}
		out = out[i+1+j+1:]
	}
}

func (p *Pipeline) renderSpan(s mathSpan) string {
	markup, err := p.math.RenderMath(s.tex, s.display)
	if err != nil {
		p.logger.Debug("math render failed", "tex", s.tex, "err", err)
		return `<span class="math-placeholder">` + html.EscapeString(s.source) + `</span>`
	}
	return markup
}

func inline(s string) string {
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	return italicRe.ReplaceAllString(s, "<em>$1</em>")
}

// blocks groups list items into <ol>/<ul> and joins the remaining lines
// with <br>.
func blocks(escaped string) string {
	lines := strings.Split(escaped, "\n")
	var b strings.Builder
	list := ""
	closeList := func() {
		if list != "" {
			b.WriteString("</" + list + ">")
			list = ""
		}
	}
	openList := func(tag string) {
		if list != tag {
			closeList()
			b.WriteString("<" + tag + ">")
			list = tag
		}
	}

	prevText := false
	for _, line := range lines {
		if m := orderedRe.FindStringSubmatch(line); m != nil {
			openList("ol")
			b.WriteString(`<li value="` + strconv.Itoa(parseDigits(m[1])) + `">` + inline(m[2]) + "</li>")
			prevText = false
			continue
		}
		if m := unorderedRe.FindStringSubmatch(line); m != nil {
			openList("ul")
			b.WriteString("<li>" + inline(m[1]) + "</li>")
			prevText = false
			continue
		}
		closeList()
		if prevText {
			b.WriteString("<br>")
		}
		b.WriteString(inline(line))
		prevText = true
	}
	closeList()
	return b.String()
}

// parseDigits reads ASCII or Bengali decimal digits.
func parseDigits(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int(r-'0')
		case r >= '০' && r <= '৯':
			n = n*10 + int(r-'০')
		}
	}
	return n
}

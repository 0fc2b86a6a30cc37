package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	p := New(nil, nil)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello", "hello"},
		{"escapes html", "a < b & <script>", "a &lt; b &amp; &lt;script&gt;"},
		{"bold and italic", "**সূত্ৰ** is *important*", "<strong>সূত্ৰ</strong> is <em>important</em>"},
		{"line breaks", "one\ntwo\n\nthree", "one<br>two<br><br>three"},
		{
			"unordered list",
			"Steps:\n- first\n* second\n+ third\ndone",
			"Steps:<ul><li>first</li><li>second</li><li>third</li></ul>done",
		},
		{
			"ordered ascii",
			"1. one\n2. **two**",
			`<ol><li value="1">one</li><li value="2"><strong>two</strong></li></ol>`,
		},
		{
			"ordered bengali",
			"১. প্ৰথম\n১০. দশম",
			`<ol><li value="1">প্ৰথম</li><li value="10">দশম</li></ol>`,
		},
		{
			"list kinds switch",
			"1. a\n- b",
			`<ol><li value="1">a</li></ol><ul><li>b</li></ul>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Render(tt.in))
		})
	}
}

func TestRenderMath(t *testing.T) {
	p := New(nil, nil)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"inline dollar", "area $\\pi r^2$ here", `area <span class="math math-inline">\(\pi r^2\)</span> here`},
		{"display dollar", "$$a*b*c$$", `<span class="math math-display">\[a*b*c\]</span>`},
		{"bracket", `\[x_1 + x_2\]`, `<span class="math math-display">\[x_1 + x_2\]</span>`},
		{"paren with parens", `\(f(x) = 2\)`, `<span class="math math-inline">\(f(x) = 2\)</span>`},
		{"escaped tex", "$a<b$", `<span class="math math-inline">\(a&lt;b\)</span>`},
		{"inside bold", "**$x$**", `<strong><span class="math math-inline">\(x\)</span></strong>`},
		{"unclosed stays text", "costs $5", "costs $5"},
		{"unbalanced placeholder", "$\\frac{1}{2$", `<span class="math-placeholder">$\frac{1}{2$</span>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Render(tt.in))
		})
	}
}

type failingMath struct{}

func (failingMath) RenderMath(string, bool) (string, error) {
	return "", errors.New("renderer unavailable")
}

func TestMathRendererFailureUsesPlaceholder(t *testing.T) {
	p := New(failingMath{}, nil)
	got := p.Render("root: $$\\sqrt{2}$$ and \\(x\\)")
	assert.Equal(t, `root: <span class="math-placeholder">$$\sqrt{2}$$</span> and <span class="math-placeholder">\(x\)</span>`, got)
}

func TestRenderIsDeterministic(t *testing.T) {
	p := New(nil, nil)
	in := "১. **প্ৰমাণ**: $\\sqrt{2}$ অমূলদ\n- step *one*\n\ntext < more"
	first := p.Render(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, p.Render(in))
	}
}

func TestRenderStripsSlotMarker(t *testing.T) {
	p := New(nil, nil)
	got := p.Render("a\x000\x00b $x$")
	assert.False(t, strings.Contains(got, "\x00"))
	assert.Equal(t, `a0b <span class="math math-inline">\(x\)</span>`, got)
}

func TestKaTeXRejects(t *testing.T) {
	var k KaTeX
	_, err := k.RenderMath("a}{", false)
	assert.ErrorIs(t, err, ErrUnbalanced)
	_, err = k.RenderMath("   ", true)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = k.RenderMath(`\{ x \}`, false)
	assert.NoError(t, err)
}

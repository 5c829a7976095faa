package richtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderKeepsPlainText(t *testing.T) {
	s := NewSanitizer()
	assert.Equal(t, "Hola", s.Render("  Hola "))
	assert.Equal(t, "Tom &amp; Jerry", s.Render("Tom & Jerry"))
	assert.Equal(t, "", s.Render("   "))
}

func TestRenderSanitizesHTML(t *testing.T) {
	s := NewSanitizer()
	out := s.Render(`<p>Revisado <script>alert(1)</script><strong>ok</strong></p>`)
	assert.Equal(t, "<p>Revisado <strong>ok</strong></p>", out)
}

func TestRenderConvertsMarkdown(t *testing.T) {
	s := NewSanitizer()
	out := s.Render("**Importante**\n\n- paso uno\n- paso dos")
	assert.Contains(t, out, "<strong>Importante</strong>")
	assert.Contains(t, out, "<li>paso uno</li>")
}

func TestStripHTMLAndPreview(t *testing.T) {
	assert.Equal(t, "Hola mundo", StripHTML("<p>Hola <em>mundo</em></p>"))
	assert.Equal(t, "abc…", Preview("<p>abcdef</p>", 3))
	assert.Equal(t, "a b", Preview("<p>a</p>\n<p>b</p>", 10))
}

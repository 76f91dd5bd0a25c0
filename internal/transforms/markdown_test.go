package transforms

import (
	"path/filepath"
	"testing"

	"github.com/inful/mdfp"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func TestMarkdown_RendersPage(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeSource(t, src, "pages/about.md", "---\ntitle: About us\n---\n# Hello\n\nSome *text*.\n")

	written, err := Markdown{Fingerprint: true}.Run(t.Context(), request(src, out, []string{"pages/**/*.md"}, "pages/about.md"))
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(out, "about.html")}, written)

	page := readOutput(t, written[0])
	require.Contains(t, page, "<title>About us</title>")
	require.Contains(t, page, `<h1 id="hello">Hello</h1>`)
	require.Contains(t, page, "<em>text</em>")
	require.Contains(t, page, `<meta name="`+mdfp.FingerprintField+`" content="`)
}

func TestMarkdown_TitleFallsBackToFileName(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeSource(t, src, "notes.md", "plain body\n")

	written, err := Markdown{}.Run(t.Context(), request(src, out, []string{"*.md"}, "notes.md"))
	require.NoError(t, err)
	page := readOutput(t, written[0])
	require.Contains(t, page, "<title>notes.md</title>")
	require.NotContains(t, page, `<meta name="`+mdfp.FingerprintField)
}

func TestMarkdown_BrokenFrontMatterIsTransformError(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "bad.md", "---\ntitle: x\nno closing\n")

	_, err := Markdown{}.Run(t.Context(), request(src, t.TempDir(), []string{"*.md"}, "bad.md"))
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryTransform))
}

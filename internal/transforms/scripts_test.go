package transforms

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func TestScripts_ConcatenatesInMatchOrder(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeSource(t, src, "js/b.js", "var b = 2;")
	writeSource(t, src, "js/a.js", "var a = 1;\n")

	written, err := Scripts{}.Run(t.Context(), request(src, out, []string{"js/*.js"}, "js/b.js", "js/a.js"))
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(out, DefaultBundleName)}, written)
	require.Equal(t, "// js/b.js\nvar b = 2;\n// js/a.js\nvar a = 1;\n", readOutput(t, written[0]))
}

func TestScripts_MinifyAndBundleName(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeSource(t, src, "app.js", "/*\n * header\n */\n// comment\n\n  function f() {\n    return 1; // trailing\n  }\n")

	written, err := Scripts{BundleName: "app.min.js", Minify: true}.Run(t.Context(), request(src, out, []string{"*.js"}, "app.js"))
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(out, "app.min.js")}, written)
	got := readOutput(t, written[0])
	require.Contains(t, got, "function f(){return 1}")
	require.NotContains(t, got, "header")
	require.NotContains(t, got, "comment")
	require.NotContains(t, got, "trailing")
}

func TestScripts_MinifyKeepsStringAndTemplateContents(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeSource(t, src, "app.js", "var url = \"http://example.com\";\nvar doc = `${url}\n// not a comment\n/* nor this */\n`;\nconsole.log(url, doc);\n")

	written, err := Scripts{Minify: true}.Run(t.Context(), request(src, out, []string{"*.js"}, "app.js"))
	require.NoError(t, err)
	got := readOutput(t, written[0])
	require.Contains(t, got, "http://example.com")
	require.Contains(t, got, "// not a comment")
	require.Contains(t, got, "/* nor this */")
}

func TestScripts_MinifySyntaxErrorIsTransformError(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writeSource(t, src, "bad.js", "function ( {\n")

	_, err := Scripts{Minify: true}.Run(t.Context(), request(src, out, []string{"*.js"}, "bad.js"))
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryTransform))
	require.NoFileExists(t, filepath.Join(out, DefaultBundleName))
}

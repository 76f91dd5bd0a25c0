package transforms

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// HTML minifies pages.
type HTML struct {
	CollapseWhitespace bool `yaml:"collapse_whitespace" toml:"collapse_whitespace"`
	RemoveComments     bool `yaml:"remove_comments" toml:"remove_comments"`
}

// Run parses every page, applies the enabled minifications and writes it to the
// output directory under its relative path.
func (h HTML) Run(ctx context.Context, req task.Request) ([]string, error) {
	var written []string
	for _, file := range req.Files {
		if err := checkContext(ctx); err != nil {
			return written, err
		}
		src, err := readSource(req, file)
		if err != nil {
			return written, err
		}
		out, err := h.Minify(src)
		if err != nil {
			return written, transformError("parse html", file, err)
		}
		dst := dest(req, file, "")
		if err := writeAtomic(dst, out); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

// Minify returns the document with comments and redundant whitespace removed
// according to the options. Text inside pre, textarea, script and style is kept.
func (h HTML) Minify(src []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	h.walk(doc, false)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h HTML) walk(n *html.Node, preserve bool) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Pre, atom.Textarea, atom.Script, atom.Style:
			preserve = true
		}
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode && h.RemoveComments && !isConditionalComment(c.Data):
			n.RemoveChild(c)
		case c.Type == html.TextNode && h.CollapseWhitespace && !preserve:
			c.Data = collapseSpaces(c.Data)
			if c.Data == "" {
				n.RemoveChild(c)
			}
		default:
			h.walk(c, preserve)
		}
		c = next
	}
}

func isConditionalComment(data string) bool {
	return strings.HasPrefix(strings.TrimSpace(data), "[if")
}

// collapseSpaces folds whitespace runs into one space. Text that is only
// whitespace between elements is dropped.
func collapseSpaces(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}

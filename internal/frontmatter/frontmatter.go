// Package frontmatter splits YAML front matter from markdown pages.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

// ErrUnterminated is returned when a page opens a front matter block but never closes it.
var ErrUnterminated = errors.New("front matter opened with --- but never closed")

// Page is a markdown document with its front matter decoded.
type Page struct {
	Fields map[string]any
	Raw    []byte
	Body   []byte
}

// Split separates the `---` delimited front matter from the body. A document
// without a leading delimiter yields empty Fields and the whole input as Body.
// CRLF line endings are accepted.
func Split(content []byte) (Page, error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}

	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return Page{Fields: map[string]any{}, Body: content}, nil
	}
	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return Page{Fields: map[string]any{}, Raw: []byte{}, Body: rest[len(open):]}, nil
	}

	end := bytes.Index(rest, []byte(nl+"---"+nl))
	if end < 0 {
		if bytes.HasSuffix(rest, []byte(nl+"---")) {
			end = len(rest) - len(nl+"---")
		} else {
			return Page{}, ErrUnterminated
		}
	}
	raw := rest[:end+len(nl)]
	body := []byte{}
	if tail := end + len(nl+"---"+nl); tail <= len(rest) {
		body = rest[tail:]
	}

	fields := map[string]any{}
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return Page{}, fmt.Errorf("decode front matter: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return Page{Fields: fields, Raw: raw, Body: body}, nil
}

// String returns a front matter value as a trimmed string, or "".
func (p Page) String(key string) string {
	switch v := p.Fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Title returns the "title" field.
func (p Page) Title() string { return p.String("title") }

// Fingerprint returns the content fingerprint of the page. Fields are hashed in
// key order with any existing fingerprint field excluded, so the value is stable
// across rebuilds of an unchanged page.
func (p Page) Fingerprint() (string, error) {
	fields := maps.Clone(p.Fields)
	delete(fields, mdfp.FingerprintField)

	var fm string
	if len(fields) > 0 {
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range slices.Sorted(maps.Keys(fields)) {
			var val yaml.Node
			if err := val.Encode(fields[k]); err != nil {
				return "", fmt.Errorf("encode front matter field %q: %w", k, err)
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &val)
		}
		out, err := yaml.Marshal(node)
		if err != nil {
			return "", fmt.Errorf("encode front matter: %w", err)
		}
		fm = strings.TrimSuffix(string(out), "\n")
	}
	return mdfp.CalculateFingerprintFromParts(fm, string(p.Body)), nil
}

package transforms

import (
	"bytes"
	"context"
	"html/template"
	"path"

	"github.com/inful/mdfp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/assetbuilder/internal/frontmatter"
	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// Markdown renders markdown pages to standalone HTML documents.
type Markdown struct {
	// Fingerprint adds a content fingerprint meta tag so clients can detect
	// changed pages without diffing.
	Fingerprint bool `yaml:"fingerprint" toml:"fingerprint"`
	// Unsafe passes raw HTML in the source through to the output.
	Unsafe bool `yaml:"unsafe" toml:"unsafe"`
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{- if .Fingerprint}}
<meta name="` + mdfp.FingerprintField + `" content="{{.Fingerprint}}">
{{- end}}
</head>
<body>
{{.Body}}
</body>
</html>
`))

type page struct {
	Title       string
	Fingerprint string
	Body        template.HTML
}

// Run renders each page into <out>/<rel>.html.
func (m Markdown) Run(ctx context.Context, req task.Request) ([]string, error) {
	md := m.engine()
	var written []string
	for _, file := range req.Files {
		if err := checkContext(ctx); err != nil {
			return written, err
		}
		src, err := readSource(req, file)
		if err != nil {
			return written, err
		}
		out, err := m.render(md, file, src)
		if err != nil {
			return written, err
		}
		dst := dest(req, file, ".html")
		if err := writeAtomic(dst, out); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

func (m Markdown) engine() goldmark.Markdown {
	var rendererOpts []goldmark.Option
	if m.Unsafe {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(html.WithUnsafe()))
	}
	return goldmark.New(append(rendererOpts,
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)...)
}

func (m Markdown) render(md goldmark.Markdown, file string, src []byte) ([]byte, error) {
	doc, err := frontmatter.Split(src)
	if err != nil {
		return nil, transformError("read front matter", file, err)
	}

	var body bytes.Buffer
	if err := md.Convert(doc.Body, &body); err != nil {
		return nil, transformError("render markdown", file, err)
	}

	p := page{Title: doc.Title(), Body: template.HTML(body.String())} //nolint:gosec // goldmark output
	if p.Title == "" {
		p.Title = path.Base(file)
	}
	if m.Fingerprint {
		if p.Fingerprint, err = doc.Fingerprint(); err != nil {
			return nil, transformError("fingerprint page", file, err)
		}
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, p); err != nil {
		return nil, transformError("render page", file, err)
	}
	return out.Bytes(), nil
}

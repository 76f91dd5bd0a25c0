package transforms

import (
	"bytes"
	"context"
	"path/filepath"

	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// DefaultBundleName is the bundle written when Scripts.BundleName is empty.
const DefaultBundleName = "main.js"

// Scripts concatenates sources, in match order, into one bundle.
type Scripts struct {
	BundleName string `yaml:"bundle_name" toml:"bundle_name"`
	// Minify runs each source through the JavaScript minifier before bundling.
	Minify bool `yaml:"minify" toml:"minify"`
}

// Run writes the bundle to <out>/<bundle_name>.
func (s Scripts) Run(ctx context.Context, req task.Request) ([]string, error) {
	var bundle bytes.Buffer
	for _, file := range req.Files {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		src, err := readSource(req, file)
		if err != nil {
			return nil, err
		}
		if s.Minify {
			if src, err = minifyJS(src); err != nil {
				return nil, transformError("minify", file, err)
			}
		} else {
			bundle.WriteString("// " + file + "\n")
		}
		bundle.Write(src)
		if len(src) > 0 && src[len(src)-1] != '\n' {
			bundle.WriteByte('\n')
		}
	}

	name := s.BundleName
	if name == "" {
		name = DefaultBundleName
	}
	dst := filepath.Join(req.OutputDir, filepath.FromSlash(name))
	if err := writeAtomic(dst, bundle.Bytes()); err != nil {
		return nil, err
	}
	return []string{dst}, nil
}

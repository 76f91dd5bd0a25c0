package transforms

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// Kind names a built-in transform in configuration.
type Kind string

const (
	KindHTML     Kind = "html"
	KindMarkdown Kind = "markdown"
	KindStyles   Kind = "styles"
	KindScripts  Kind = "scripts"
	KindImages   Kind = "images"
	KindCopy     Kind = "copy"
)

// Kinds lists every built-in transform kind.
func Kinds() []Kind {
	return []Kind{KindHTML, KindMarkdown, KindStyles, KindScripts, KindImages, KindCopy}
}

// Options holds the per-kind option records. Only the record matching the task's
// kind is consulted.
type Options struct {
	HTML     HTML     `yaml:"html,omitempty" toml:"html,omitempty"`
	Markdown Markdown `yaml:"markdown,omitempty" toml:"markdown,omitempty"`
	Styles   Styles   `yaml:"styles,omitempty" toml:"styles,omitempty"`
	Scripts  Scripts  `yaml:"scripts,omitempty" toml:"scripts,omitempty"`
	Images   Images   `yaml:"images,omitempty" toml:"images,omitempty"`
	Copy     Copy     `yaml:"copy,omitempty" toml:"copy,omitempty"`
}

// New returns the transform function for kind bound to its options.
func New(kind Kind, opts Options) (task.TransformFunc, error) {
	switch kind {
	case KindHTML:
		return opts.HTML.Run, nil
	case KindMarkdown:
		return opts.Markdown.Run, nil
	case KindStyles:
		return opts.Styles.Run, nil
	case KindScripts:
		return opts.Scripts.Run, nil
	case KindImages:
		return opts.Images.Run, nil
	case KindCopy:
		return opts.Copy.Run, nil
	default:
		return nil, ferrors.ConfigError("unknown transform kind").
			WithContext("kind", string(kind)).
			Build()
	}
}

// relOutput returns file's path relative to the static base of the first
// pattern that matches it.
func relOutput(file string, patterns []string) string {
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			continue
		}
		p = strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
		if ok, _ := doublestar.Match(p, file); !ok {
			continue
		}
		base, _ := doublestar.SplitPattern(p)
		if base == "." {
			return file
		}
		if rel, ok := strings.CutPrefix(file, base+"/"); ok {
			return rel
		}
		return path.Base(file)
	}
	return path.Base(file)
}

// dest maps a source file to its output path, optionally replacing the extension.
func dest(req task.Request, file, ext string) string {
	rel := relOutput(file, req.Patterns)
	if ext != "" {
		rel = strings.TrimSuffix(rel, path.Ext(rel)) + ext
	}
	return filepath.Join(req.OutputDir, filepath.FromSlash(rel))
}

func sourcePath(req task.Request, file string) string {
	return filepath.Join(req.SourceRoot, filepath.FromSlash(file))
}

func readSource(req task.Request, file string) ([]byte, error) {
	data, err := os.ReadFile(sourcePath(req, file))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read source file").
			WithContext("file", file).
			NextChange().
			Build()
	}
	return data, nil
}

// writeAtomic writes data to dst through a temporary file in the same directory.
func writeAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeError(err, dst)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return writeError(err, dst)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return writeError(err, dst)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return writeError(err, dst)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return writeError(err, dst)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return writeError(err, dst)
	}
	return nil
}

func writeError(err error, dst string) error {
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write output file").
		WithContext("output", dst).
		NextChange().
		Build()
}

// upToDate reports whether dst exists and is at least as new as src.
func upToDate(src, dst string) bool {
	ds, err := os.Stat(dst)
	if err != nil {
		return false
	}
	ss, err := os.Stat(src)
	if err != nil {
		return false
	}
	return !ds.ModTime().Before(ss.ModTime())
}

func transformError(msg, file string, cause error) error {
	b := ferrors.TransformError(msg).WithContext("file", file)
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b.Build()
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "transform canceled").Build()
	}
	return nil
}

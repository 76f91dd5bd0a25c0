package transforms

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// Styles turns .scss and .css sources into stylesheets. Top-level $variables are
// substituted; nesting and mixins are not supported. Partials (_name.scss) only
// provide variables to the files that follow them and are not written.
type Styles struct {
	Compress  bool `yaml:"compress" toml:"compress"`
	SourceMap bool `yaml:"source_map" toml:"source_map"`
}

var styleVar = regexp.MustCompile(`(?m)^\s*\$([A-Za-z_][\w-]*)\s*:\s*([^;]+);[ \t]*\r?\n?`)

// Run writes one .css file per non-partial source and, when enabled, a .css.map next to it.
func (s Styles) Run(ctx context.Context, req task.Request) ([]string, error) {
	vars := map[string]string{}
	var written []string
	for _, file := range req.Files {
		if err := checkContext(ctx); err != nil {
			return written, err
		}
		src, err := readSource(req, file)
		if err != nil {
			return written, err
		}
		if err := checkBraces(string(src)); err != nil {
			return written, transformError("unbalanced braces", file, err)
		}
		css := extractVars(string(src), vars)
		css, err = substituteVars(css, vars)
		if err != nil {
			return written, transformError("undefined variable", file, err)
		}
		if strings.HasPrefix(path.Base(file), "_") {
			continue
		}
		if s.Compress {
			if css, err = compressCSS(css); err != nil {
				return written, transformError("compress", file, err)
			}
		}

		dst := dest(req, file, ".css")
		if s.SourceMap {
			mapName := filepath.Base(dst) + ".map"
			sm, err := sourceMap(filepath.Base(dst), file)
			if err != nil {
				return written, transformError("encode source map", file, err)
			}
			if err := writeAtomic(dst+".map", sm); err != nil {
				return written, err
			}
			written = append(written, dst+".map")
			css = strings.TrimRight(css, "\n") + "\n/*# sourceMappingURL=" + mapName + " */\n"
		}
		if err := writeAtomic(dst, []byte(css)); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

// checkBraces reports the line of the first unmatched brace.
func checkBraces(src string) error {
	var open []int
	line := 1
	inComment, inString := false, byte(0)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\n':
			line++
		case inComment:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				inComment = false
				i++
			}
		case inString != 0:
			if c == '\\' {
				i++
			} else if c == inString {
				inString = 0
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			inComment = true
			i++
		case c == '"' || c == '\'':
			inString = c
		case c == '{':
			open = append(open, line)
		case c == '}':
			if len(open) == 0 {
				return fmt.Errorf("line %d: unexpected }", line)
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("line %d: unclosed {", open[len(open)-1])
	}
	return nil
}

func extractVars(src string, vars map[string]string) string {
	return styleVar.ReplaceAllStringFunc(src, func(decl string) string {
		m := styleVar.FindStringSubmatch(decl)
		value, _ := substituteVars(strings.TrimSpace(m[2]), vars)
		vars[m[1]] = value
		return ""
	})
}

var varRef = regexp.MustCompile(`\$([A-Za-z_][\w-]*)`)

func substituteVars(src string, vars map[string]string) (string, error) {
	var missing string
	out := varRef.ReplaceAllStringFunc(src, func(ref string) string {
		v, ok := vars[ref[1:]]
		if !ok {
			if missing == "" {
				missing = ref
			}
			return ref
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("%s is not defined", missing)
	}
	return out, nil
}

// sourceMap returns a v3 map that names the source file. Mappings are empty
// because the output is not tracked per token.
func sourceMap(outName, source string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"version":  3,
		"file":     outName,
		"sources":  []string{source},
		"names":    []string{},
		"mappings": "",
	})
}

package transforms

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

const (
	mediaCSS = "text/css"
	mediaJS  = "application/javascript"
)

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc(mediaCSS, css.Minify)
	m.AddFunc(mediaJS, js.Minify)
	return m
}

// compressCSS minifies a stylesheet. Strings and selectors are tokenized, not pattern matched.
func compressCSS(src string) (string, error) {
	out, err := minifier.String(mediaCSS, src)
	if err != nil {
		return "", err
	}
	return out + "\n", nil
}

func minifyJS(src []byte) ([]byte, error) {
	return minifier.Bytes(mediaJS, src)
}

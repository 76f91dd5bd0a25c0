package livereload

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const (
	// EventsPath is where the SSE endpoint is mounted.
	EventsPath = "/livereload"
	// ScriptPath is where the client script is served.
	ScriptPath = "/livereload.js"

	maxInjectSize = 512 * 1024
)

// Script reloads the page on every event. When every changed path is a
// stylesheet, linked stylesheets are refreshed in place instead.
const Script = `(() => {
  if (window.__ASSETBUILDER_LR__) return;
  window.__ASSETBUILDER_LR__ = true;
  function refreshCSS() {
    document.querySelectorAll('link[rel="stylesheet"]').forEach((l) => {
      const u = new URL(l.href);
      u.searchParams.set('lr', Date.now());
      l.href = u.toString();
    });
  }
  function connect() {
    const es = new EventSource('` + EventsPath + `');
    es.addEventListener('reload', (e) => {
      let paths = [];
      try { paths = JSON.parse(e.data).paths || []; } catch (_) {}
      if (paths.length > 0 && paths.every((p) => p.endsWith('.css') || p.endsWith('.css.map'))) {
        refreshCSS();
        return;
      }
      location.reload();
    });
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();`

// ScriptHandler serves Script.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = io.WriteString(w, Script)
	})
}

// Inject wraps next so HTML responses load the client script before </body>.
// Responses larger than 512KB and non-HTML responses pass through unchanged.
func Inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if !(p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html") || strings.HasSuffix(p, ".htm")) {
			next.ServeHTTP(w, r)
			return
		}
		iw := &injector{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(iw, r)
		iw.finish()
	})
}

type injector struct {
	http.ResponseWriter
	status      int
	buf         []byte
	wroteHeader bool
	passthrough bool
	decided     bool
}

func (i *injector) WriteHeader(code int) {
	i.status = code
	if i.passthrough {
		i.ResponseWriter.WriteHeader(code)
		i.wroteHeader = true
	}
}

func (i *injector) Write(data []byte) (int, error) {
	if !i.decided {
		i.decided = true
		ct := i.Header().Get("Content-Type")
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		if !strings.Contains(ct, "text/html") || i.status != http.StatusOK {
			i.startPassthrough()
		}
	}
	if i.passthrough {
		return i.ResponseWriter.Write(data)
	}
	if len(i.buf)+len(data) > maxInjectSize {
		i.startPassthrough()
		if _, err := i.ResponseWriter.Write(i.buf); err != nil {
			return 0, err
		}
		i.buf = nil
		return i.ResponseWriter.Write(data)
	}
	i.buf = append(i.buf, data...)
	return len(data), nil
}

func (i *injector) startPassthrough() {
	i.passthrough = true
	if !i.wroteHeader {
		i.ResponseWriter.WriteHeader(i.status)
		i.wroteHeader = true
	}
}

func (i *injector) finish() {
	if i.passthrough {
		return
	}
	if i.buf == nil {
		if !i.wroteHeader {
			i.ResponseWriter.WriteHeader(i.status)
		}
		return
	}
	out := InjectScript(i.buf)
	i.Header().Set("Content-Length", strconv.Itoa(len(out)))
	i.ResponseWriter.WriteHeader(i.status)
	_, _ = i.ResponseWriter.Write(out)
}

// InjectScript inserts the script tag before the document's last </body> end tag,
// or appends it when there is none.
func InjectScript(doc []byte) []byte {
	tag := []byte(`<script src="` + ScriptPath + `" async></script>`)
	at := -1
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				at = offset
			}
		}
		offset += raw
	}
	if at < 0 {
		return append(append(bytes.Clone(doc), '\n'), tag...)
	}
	out := make([]byte, 0, len(doc)+len(tag))
	out = append(out, doc[:at]...)
	out = append(out, tag...)
	return append(out, doc[at:]...)
}

package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTask       = "task"
	KeyNode       = "node"
	KeyMode       = "mode"
	KeyBinding    = "binding"
	KeyPath       = "path"
	KeyListener   = "listener"
	KeyFiles      = "files"
	KeyOutputs    = "outputs"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
	KeyEntry      = "entry"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyAddr       = "addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Task(name string) slog.Attr      { return slog.String(KeyTask, name) }
func Node(name string) slog.Attr      { return slog.String(KeyNode, name) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func Binding(name string) slog.Attr   { return slog.String(KeyBinding, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Listener(name string) slog.Attr  { return slog.String(KeyListener, name) }
func Files(n int) slog.Attr           { return slog.Int(KeyFiles, n) }
func Outputs(n int) slog.Attr         { return slog.Int(KeyOutputs, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Entry(name string) slog.Attr     { return slog.String(KeyEntry, name) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Addr(a string) slog.Attr         { return slog.String(KeyAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

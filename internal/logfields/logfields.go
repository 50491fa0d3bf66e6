package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyPattern    = "pattern"
	KeySource     = "source"
	KeyObject     = "object"
	KeyCompiler   = "compiler"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyCount      = "count"
	KeyError      = "error"
	KeyStatus     = "status"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Pattern(p string) slog.Attr      { return slog.String(KeyPattern, p) }
func Source(path string) slog.Attr    { return slog.String(KeySource, path) }
func Object(path string) slog.Attr    { return slog.String(KeyObject, path) }
func Compiler(name string) slog.Attr  { return slog.String(KeyCompiler, name) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID      = "job_id"
	KeyJobStatus  = "job_status"
	KeyPass       = "pass"
	KeyMaxPasses  = "max_passes"
	KeyEngine     = "engine"
	KeyWorkspace  = "workspace"
	KeyFilename   = "filename"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyKind       = "kind"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyUserAgent  = "user_agent"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func JobStatus(s string) slog.Attr    { return slog.String(KeyJobStatus, s) }
func Pass(n int) slog.Attr            { return slog.Int(KeyPass, n) }
func MaxPasses(n int) slog.Attr       { return slog.Int(KeyMaxPasses, n) }
func Engine(bin string) slog.Attr     { return slog.String(KeyEngine, bin) }
func Workspace(p string) slog.Attr    { return slog.String(KeyWorkspace, p) }
func Filename(name string) slog.Attr  { return slog.String(KeyFilename, name) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStep       = "step"
	KeyStatus     = "status"
	KeyOutcome    = "outcome"
	KeyEvent      = "event"
	KeyBranch     = "branch"
	KeyRef        = "ref"
	KeyRevision   = "revision"
	KeyRepo       = "repository"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyLine       = "line"
	KeyCommand    = "command"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyWorker     = "worker"
	KeyMethod     = "method"
	KeyRemoteAddr = "remote_addr"
	KeyForge      = "forge"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }
func Step(name string) slog.Attr         { return slog.String(KeyStep, name) }
func Status(s string) slog.Attr          { return slog.String(KeyStatus, s) }
func Outcome(o string) slog.Attr         { return slog.String(KeyOutcome, o) }
func Event(kind string) slog.Attr        { return slog.String(KeyEvent, kind) }
func Branch(b string) slog.Attr          { return slog.String(KeyBranch, b) }
func Ref(r string) slog.Attr             { return slog.String(KeyRef, r) }
func Revision(rev string) slog.Attr      { return slog.String(KeyRevision, rev) }
func Repository(r string) slog.Attr      { return slog.String(KeyRepo, r) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func File(f string) slog.Attr            { return slog.String(KeyFile, f) }
func Line(n int) slog.Attr               { return slog.Int(KeyLine, n) }
func Command(c string) slog.Attr         { return slog.String(KeyCommand, c) }
func ExitCode(code int) slog.Attr        { return slog.Int(KeyExitCode, code) }
func Worker(w string) slog.Attr          { return slog.String(KeyWorker, w) }
func Method(m string) slog.Attr          { return slog.String(KeyMethod, m) }
func RemoteAddr(a string) slog.Attr      { return slog.String(KeyRemoteAddr, a) }
func Forge(f string) slog.Attr           { return slog.String(KeyForge, f) }
func Duration(d time.Duration) slog.Attr { return slog.Int64(KeyDurationMS, d.Milliseconds()) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

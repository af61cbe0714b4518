package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // correlation id spanning a full reload cycle
	KeySpanID  = "span_id"  // correlation id for a single restart/reload request

	// ========================================================================
	// Session & Process
	// ========================================================================
	KeySessionID  = "session_id"  // client session identifier
	KeyGeneration = "generation"  // number of successful swaps this session has performed
	KeyChildPID   = "child_pid"   // pid of the supervised client process
	KeyExitCode   = "exit_code"   // exit code observed from the supervised child
	KeyRestarting = "restarting"  // whether a restart/reload is currently pending

	// ========================================================================
	// Artifact & Library
	// ========================================================================
	KeyArtifactPath = "artifact_path" // resolved library path on disk
	KeyLoadedPath   = "loaded_path"   // stable copy path the client actually loads
	KeyLibVersion   = "lib_version"   // ABI version tag reported by the library
	KeyAppVersion   = "app_version"   // user-defined application version tag
	KeyCompatible   = "compatible"    // result of the compatibility check between versions

	// ========================================================================
	// Watcher
	// ========================================================================
	KeyWatcherKind  = "watcher_kind"  // poll or notify
	KeyWatchedPath  = "watched_path"  // path under observation
	KeyEventKind    = "event_kind"    // created, changed, destroyed
	KeyPollInterval = "poll_interval" // configured poll interval

	// ========================================================================
	// Network & Protocol
	// ========================================================================
	KeyHost       = "host"        // control socket host
	KeyPort       = "port"        // control socket port
	KeyRemoteAddr = "remote_addr" // accepted connection's remote address
	KeyFrameLen   = "frame_len"   // length-prefixed protocol frame size
	KeyMsgKind    = "msg_kind"    // Start, GetState, Close, Restart, SetState

	// ========================================================================
	// State Transfer
	// ========================================================================
	KeyStateLen = "state_len" // length of serialized state bytes
	KeyHasState = "has_state" // whether a state payload was present

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyProfile    = "profile"     // build profile name (debug, release, ...)
	KeyHard       = "hard"        // whether a restart is hard (re-execs the server) or soft
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for the trace identifier.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for the span identifier.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Session & Process
// ----------------------------------------------------------------------------

// SessionID returns a slog.Attr for the client session identifier.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Generation returns a slog.Attr for the swap generation counter.
func Generation(n int) slog.Attr {
	return slog.Int(KeyGeneration, n)
}

// ChildPID returns a slog.Attr for the supervised child's pid.
func ChildPID(pid int) slog.Attr {
	return slog.Int(KeyChildPID, pid)
}

// ExitCode returns a slog.Attr for an observed child exit code.
func ExitCode(code int) slog.Attr {
	return slog.Int(KeyExitCode, code)
}

// Restarting returns a slog.Attr for the restarting latch.
func Restarting(b bool) slog.Attr {
	return slog.Bool(KeyRestarting, b)
}

// ----------------------------------------------------------------------------
// Artifact & Library
// ----------------------------------------------------------------------------

// ArtifactPath returns a slog.Attr for the resolved artifact path.
func ArtifactPath(path string) slog.Attr {
	return slog.String(KeyArtifactPath, path)
}

// LoadedPath returns a slog.Attr for the stable loaded-copy path.
func LoadedPath(path string) slog.Attr {
	return slog.String(KeyLoadedPath, path)
}

// LibVersion returns a slog.Attr for the ABI version tag.
func LibVersion(v uint32) slog.Attr {
	return slog.Uint64(KeyLibVersion, uint64(v))
}

// AppVersion returns a slog.Attr for the application-defined version tag.
func AppVersion(v string) slog.Attr {
	return slog.String(KeyAppVersion, v)
}

// Compatible returns a slog.Attr for a version-compatibility result.
func Compatible(ok bool) slog.Attr {
	return slog.Bool(KeyCompatible, ok)
}

// ----------------------------------------------------------------------------
// Watcher
// ----------------------------------------------------------------------------

// WatcherKind returns a slog.Attr for the watcher strategy in use.
func WatcherKind(kind string) slog.Attr {
	return slog.String(KeyWatcherKind, kind)
}

// WatchedPath returns a slog.Attr for the path under observation.
func WatchedPath(path string) slog.Attr {
	return slog.String(KeyWatchedPath, path)
}

// EventKind returns a slog.Attr for the observed watcher event kind.
func EventKind(kind string) slog.Attr {
	return slog.String(KeyEventKind, kind)
}

// PollInterval returns a slog.Attr for the configured poll interval.
func PollInterval(d string) slog.Attr {
	return slog.String(KeyPollInterval, d)
}

// ----------------------------------------------------------------------------
// Network & Protocol
// ----------------------------------------------------------------------------

// Host returns a slog.Attr for the control socket host.
func Host(h string) slog.Attr {
	return slog.String(KeyHost, h)
}

// Port returns a slog.Attr for the control socket port.
func Port(p string) slog.Attr {
	return slog.String(KeyPort, p)
}

// RemoteAddr returns a slog.Attr for an accepted connection's remote address.
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// FrameLen returns a slog.Attr for a protocol frame's length.
func FrameLen(n int) slog.Attr {
	return slog.Int(KeyFrameLen, n)
}

// MsgKind returns a slog.Attr for a protocol message kind.
func MsgKind(kind string) slog.Attr {
	return slog.String(KeyMsgKind, kind)
}

// ----------------------------------------------------------------------------
// State Transfer
// ----------------------------------------------------------------------------

// StateLen returns a slog.Attr for the serialized state length.
func StateLen(n int) slog.Attr {
	return slog.Int(KeyStateLen, n)
}

// HasState returns a slog.Attr for whether a state payload was present.
func HasState(b bool) slog.Attr {
	return slog.Bool(KeyHasState, b)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// Err returns a slog.Attr for an error value's message. A nil error yields
// the empty Attr, which handlers omit from the output.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Profile returns a slog.Attr for the build profile name.
func Profile(p string) slog.Attr {
	return slog.String(KeyProfile, p)
}

// Hard returns a slog.Attr for whether a restart is hard.
func Hard(b bool) slog.Attr {
	return slog.Bool(KeyHard, b)
}

// Package server implements the long-lived supervisor half of the reload
// harness: it owns the filesystem watcher, the control socket, and the
// authoritative last_state buffer, and spawns the short-lived client
// process once per session.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/relohq/relo/internal/logger"
	"github.com/relohq/relo/internal/metrics"
	"github.com/relohq/relo/internal/session"
	"github.com/relohq/relo/internal/watcher"
	"github.com/relohq/relo/internal/wire"
)

// tickInterval bounds how long one inner-loop iteration idles when none of
// the three polled sources has anything ready.
const tickInterval = 10 * time.Millisecond

// acceptPollInterval bounds how long Accept blocks before the server
// re-checks whether the freshly spawned child has already died.
const acceptPollInterval = 50 * time.Millisecond

// SpawnFunc starts a client process connecting back to host:port and
// loading artifactPath. The default implementation execs the server's own
// binary with --client; tests substitute a fake that simulates a client
// over the real socket instead.
type SpawnFunc func(host string, port int, artifactPath string) (Child, error)

// Config configures one Server run.
type Config struct {
	Host string
	Port int

	// ArtifactPath is the resolved library path the watcher observes.
	ArtifactPath string
	// LoadedPath, if set, is the stable path the artifact is copied to
	// before each load, insulating a running client from concurrent
	// rebuilds of ArtifactPath.
	LoadedPath string

	WatcherKind  watcher.Kind
	PollInterval time.Duration

	// Executable is the binary to spawn for client sessions and to re-exec
	// on a hard restart. Defaults to os.Executable() if empty.
	Executable string
	// Args are passed through unchanged on a hard restart's re-exec.
	Args []string

	// ShutdownTimeout bounds how long Run waits for a killed client to
	// report its exit once ctx is canceled, before giving up and returning
	// anyway. A non-positive value falls back to defaultShutdownTimeout.
	ShutdownTimeout time.Duration

	Metrics *metrics.Metrics
}

// defaultShutdownTimeout is used when Config.ShutdownTimeout is unset.
const defaultShutdownTimeout = 5 * time.Second

// Server runs the outer/inner session loop described by the reload
// protocol until a fatal error occurs or a hard restart re-execs the
// process.
type Server struct {
	cfg      Config
	spawn    SpawnFunc
	watch    watcher.Watcher
	state    *session.ServerState
	listener net.Listener
}

// New builds a Server. spawn defaults to execing the configured Executable
// (or os.Executable()) with --client.
func New(cfg Config, spawn SpawnFunc) (*Server, error) {
	w, err := watcher.New(cfg.WatcherKind, cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	if spawn == nil {
		spawn = defaultSpawn(cfg.Executable)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Server{
		cfg:   cfg,
		spawn: spawn,
		watch: w,
		state: session.NewServerState(),
	}, nil
}

func defaultSpawn(executable string) SpawnFunc {
	return func(host string, port int, artifactPath string) (Child, error) {
		exe := executable
		if exe == "" {
			resolved, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("resolve executable: %w", err)
			}
			exe = resolved
		}
		args := []string{
			"--client",
			"--host", host,
			"--port", strconv.Itoa(port),
			"--file", artifactPath,
		}
		return startChild(exe, args)
	}
}

// Run binds the control socket, starts the watcher, and drives sessions
// until ctx is canceled or a fatal error occurs. A hard restart re-execs
// the process and, on success, never returns. Cancellation is a clean
// shutdown: Run returns nil.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	defer func() { _ = ln.Close() }()

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.cfg.Port = tcpAddr.Port
	}

	s.state.FileExists = fileExists(s.cfg.ArtifactPath)

	// Watcher.Run blocks for the watcher's lifetime, so it gets its own
	// goroutine; events is closed when it returns, which is fatal below.
	if info, err := os.Stat(s.cfg.ArtifactPath); err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("server: start watcher: %s is not a regular file", s.cfg.ArtifactPath)
	}
	events := make(chan watcher.Event, 32)
	go func() {
		if err := s.watch.Run(s.cfg.ArtifactPath, events); err != nil {
			logger.Error("watcher stopped", logger.Err(err))
		}
		close(events)
	}()
	defer func() { _ = s.watch.Stop() }()

	logger.Info("server listening", logger.Host(s.cfg.Host), logger.Port(strconv.Itoa(s.cfg.Port)), logger.ArtifactPath(s.cfg.ArtifactPath))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !s.state.FileExists {
			logger.Info("artifact missing, waiting for creation")
			stop, err := s.waitForCreated(ctx, events)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}

		hard, stop, err := s.runSession(ctx, events)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		if hard {
			return s.reexec()
		}
	}
}

// waitForCreated blocks until the watcher reports the artifact exists
// again, per spec: "suppresses respawn until Created returns."
func (s *Server) waitForCreated(ctx context.Context, events chan watcher.Event) (stop bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-events:
			if !ok {
				return false, errors.New("server: watcher channel closed")
			}
			s.cfg.Metrics.RecordWatcherEvent(ev.Kind.String())
			if ev.Kind == watcher.Created {
				s.state.FileExists = true
				return false, nil
			}
		}
	}
}

// runSession runs one outer-loop iteration: spawn a client, accept its
// connection, send Start, and drive the inner loop until a respawn is
// warranted. It returns hard=true only when the client requested a hard
// restart; err is non-nil only for fatal-to-process conditions.
func (s *Server) runSession(ctx context.Context, events chan watcher.Event) (hard, stop bool, err error) {
	s.promoteArtifact()

	libPath := s.cfg.ArtifactPath
	if s.cfg.LoadedPath != "" {
		libPath = s.cfg.LoadedPath
	}

	child, err := s.spawn(s.cfg.Host, s.cfg.Port, libPath)
	if err != nil {
		return false, false, fmt.Errorf("server: spawn client: %w", err)
	}
	s.cfg.Metrics.RecordRespawn()
	logger.Info("spawned client", logger.ChildPID(child.Pid()))

	conn, err := s.acceptWithTimeout(ctx, child)
	if err != nil {
		if ctx.Err() != nil {
			_ = child.Kill()
			return false, true, nil
		}
		logger.Warn("client failed to connect", logger.Err(err))
		return false, false, nil
	}
	defer func() { _ = conn.Close() }()

	lastState, hasState := s.state.SnapshotLastState()
	lastVersion, hasVersion := s.state.SnapshotLastVersion()
	start := wire.NewStart(lastState, hasState, lastVersion, hasVersion)
	if err := wire.WriteServerMessage(conn, start); err != nil {
		logger.Warn("failed to send start, killing client", logger.Err(err))
		_ = child.Kill()
		return false, false, nil
	}

	s.cfg.Metrics.SetSessionActive(true)
	defer s.cfg.Metrics.SetSessionActive(false)

	return s.innerLoop(ctx, conn, child, events)
}

// innerLoop polls watcher events, client messages, and child status each
// tick until a respawn (or hard restart) is warranted, or ctx is canceled.
func (s *Server) innerLoop(ctx context.Context, conn net.Conn, child Child, events chan watcher.Event) (hard, stop bool, err error) {
	restarting := false
	awaitingState := false
	hardRequested := false
	fr := wire.NewFrameReader(conn)

	for {
		select {
		case <-ctx.Done():
			_ = wire.WriteServerMessage(conn, wire.NewClose())
			_ = child.Kill()
			select {
			case <-child.Exited():
			case <-time.After(s.cfg.ShutdownTimeout):
				logger.Warn("client did not exit within shutdown timeout, giving up", logger.ChildPID(child.Pid()))
			}
			return false, true, nil
		default:
		}

		select {
		case ev, ok := <-events:
			if !ok {
				return false, false, errors.New("server: watcher channel closed")
			}
			s.cfg.Metrics.RecordWatcherEvent(ev.Kind.String())
			switch ev.Kind {
			case watcher.Created:
				s.state.FileExists = true
			case watcher.Destroyed:
				s.state.FileExists = false
			case watcher.Changed:
				s.state.FileExists = true
				if !restarting {
					if err := wire.WriteServerMessage(conn, wire.NewGetState()); err != nil {
						logger.Warn("failed to send get-state, killing client", logger.Err(err))
						_ = child.Kill()
						<-child.Exited()
						return false, false, nil
					}
					restarting = true
					awaitingState = true
				}
				// A Changed event observed while already restarting
				// collapses into the in-progress swap: no extra GetState.
			}
		default:
		}

		msg, readErr := fr.TryReadClientMessage()
		switch {
		case readErr == wire.ErrWouldBlock:
		case readErr != nil:
			logger.Warn("client I/O error, killing client", logger.Err(readErr))
			_ = child.Kill()
			<-child.Exited()
			return false, false, nil
		default:
			switch msg.Kind {
			case wire.ClientMsgRestart:
				restarting = true
				hardRequested = msg.Hard
				if err := wire.WriteServerMessage(conn, wire.NewClose()); err != nil {
					logger.Warn("failed to send close", logger.Err(err))
				}
			case wire.ClientMsgSetState:
				switch {
				case msg.HasState:
					s.state.SetLastState(session.StateBytes(msg.State), msg.Version, msg.HasVersion)
				case awaitingState:
					// An empty reply to GetState means no state is available;
					// last_state keeps its previous value.
				default:
					s.state.SetLastState(nil, nil, false)
				}
				awaitingState = false
				if restarting {
					if err := wire.WriteServerMessage(conn, wire.NewClose()); err != nil {
						logger.Warn("failed to send close", logger.Err(err))
					}
				}
			}
		}

		if restarting && !awaitingState && s.state.FileExists {
			_ = child.Kill()
			<-child.Exited()
			if hardRequested {
				s.state.ClearLastState()
			}
			return hardRequested, false, nil
		}

		select {
		case exitErr, ok := <-child.Exited():
			if !ok {
				return false, false, nil
			}
			if !restarting {
				s.cfg.Metrics.RecordCrash()
				logger.Warn("client exited unexpectedly", logger.Err(exitErr), logger.Restarting(false))
			}
			return false, false, nil
		default:
		}

		time.Sleep(tickInterval)
	}
}

// acceptWithTimeout accepts the client's connection, bailing out early if
// the child exits before connecting, or ctx is canceled, rather than
// blocking forever.
func (s *Server) acceptWithTimeout(ctx context.Context, child Child) (net.Conn, error) {
	deadliner, supportsDeadline := s.listener.(interface{ SetDeadline(time.Time) error })

	for {
		if supportsDeadline {
			_ = deadliner.SetDeadline(time.Now().Add(acceptPollInterval))
		}
		conn, err := s.listener.Accept()
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if !(errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("accept: %w", err)
		}
		select {
		case exitErr := <-child.Exited():
			return nil, fmt.Errorf("client exited before connecting: %v", exitErr)
		default:
		}
	}
}

// promoteArtifact copies ArtifactPath to LoadedPath via a rename, so a
// rebuild landing mid-load never truncates the file a client has open.
func (s *Server) promoteArtifact() {
	if s.cfg.LoadedPath == "" {
		return
	}
	if err := copyFileAtomic(s.cfg.ArtifactPath, s.cfg.LoadedPath); err != nil {
		logger.Error("failed to promote artifact to stable path", logger.ArtifactPath(s.cfg.LoadedPath), logger.Err(err))
	}
}

func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".relo-artifact-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, dst)
}

// reexec tears down the listener and execs the server's own binary in
// place, implementing a hard restart's "also re-execute the server"
// semantics. It returns only on failure; success replaces this process
// image entirely.
func (s *Server) reexec() error {
	exe := s.cfg.Executable
	if exe == "" {
		resolved, err := os.Executable()
		if err != nil {
			return fmt.Errorf("server: resolve executable for hard restart: %w", err)
		}
		exe = resolved
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}
	_ = s.watch.Stop()

	logger.Info("hard restart: re-executing server", logger.ArtifactPath(exe))

	args := append([]string{exe}, s.cfg.Args...)
	if err := syscall.Exec(exe, args, os.Environ()); err != nil {
		return fmt.Errorf("server: re-exec: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

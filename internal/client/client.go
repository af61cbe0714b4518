// Package client implements the client half of the reload protocol: a
// short-lived process that connects back to the server, waits for a
// Start directive, loads the reloadable library, and runs it behind a
// facade that forwards the library's restart requests over the socket.
// The client process always exits to effect a code swap.
package client

import (
	"fmt"
	"net"
	"os"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/google/uuid"

	"github.com/relohq/relo/internal/abi"
	"github.com/relohq/relo/internal/libhandle"
	"github.com/relohq/relo/internal/logger"
	"github.com/relohq/relo/internal/session"
	"github.com/relohq/relo/internal/wire"
)

// State enumerates the client's lifecycle states.
type State int

const (
	Waiting State = iota
	Loading
	Running
	Draining
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Loading:
		return "loading"
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Config configures a single client run.
type Config struct {
	// ServerAddr is the host:port of the server's control socket.
	ServerAddr string
	// LibraryPath is the resolved path to the reloadable library.
	LibraryPath string
}

// LoadFunc loads a reloadable library. Exposed so tests can substitute
// libhandle.Load with a Fake.
type LoadFunc func(path string) (libhandle.Handle, error)

// Client runs one session: connect, load, run, and react to server
// messages until the process is told to exit.
type Client struct {
	cfg     Config
	load    LoadFunc
	session *session.ClientState

	conn   net.Conn
	connMu sync.Mutex // serializes writes from the reader goroutine and the vtable facade

	mu     sync.RWMutex // protects handle/app/state against the vtable callbacks firing from user code
	handle libhandle.Handle
	app    uintptr
	state  uintptr

	restartFired bool
	done         chan struct{}
}

// New builds a Client for one session. load defaults to libhandle.Load if nil.
func New(cfg Config, load LoadFunc) *Client {
	if load == nil {
		load = libhandle.Load
	}
	return &Client{
		cfg:     cfg,
		load:    load,
		session: session.NewClientState(uuid.NewString()),
		done:    make(chan struct{}),
	}
}

// Run executes the full client lifecycle: dial, wait for Start, load the
// library, and invoke entry_run. It returns when the session ends, either
// because the library's run function returned or because the server sent
// Close (which terminates the process directly, and so never returns from
// this function in that case).
func (c *Client) Run() error {
	logger.Info("starting client session", logger.SessionID(c.session.ID), logger.ArtifactPath(c.cfg.LibraryPath))

	conn, err := net.Dial("tcp", c.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.cfg.ServerAddr, err)
	}
	c.conn = conn
	defer func() { _ = conn.Close() }()
	// Signal readLoop to stop before the connection closes, so a normal
	// return from entry_run doesn't race readLoop into observing a closed
	// connection as a fatal I/O error.
	defer close(c.done)

	start, err := wire.ReadServerMessage(conn)
	if err != nil {
		return fmt.Errorf("client: read Start: %w", err)
	}
	if start.Kind != wire.ServerMsgStart {
		return fmt.Errorf("client: expected Start, got %s", start.Kind)
	}

	if start.HasState {
		c.session.SetPendingState(session.StateBytes(start.State))
	} else {
		c.session.Loaded = true
	}
	logger.Info("received start directive", logger.HasState(start.HasState), logger.StateLen(len(start.State)))

	handle, err := c.load(c.cfg.LibraryPath)
	if err != nil {
		logger.Error("library load failed", logger.ArtifactPath(c.cfg.LibraryPath), logger.Err(err))
		return fmt.Errorf("client: load %s: %w", c.cfg.LibraryPath, err)
	}
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
	defer func() { _ = handle.Unload() }()

	app := handle.AppNew()
	c.mu.Lock()
	c.app = app
	c.mu.Unlock()
	defer handle.AppDrop(app)

	stateBytes := c.resolveInitialState(handle, start)

	stateHandle := handle.StateNew(stateBytes)
	c.mu.Lock()
	c.state = stateHandle
	c.mu.Unlock()
	defer handle.StateDrop(stateHandle)

	go c.readLoop(handle)

	vtable := c.buildVTable(handle)

	logger.Info("invoking entry_run")
	handle.Run(app, vtable, stateHandle)
	logger.Info("entry_run returned", logger.Restarting(c.restartFired))

	return nil
}

// resolveInitialState decides which bytes to hand to entry_state_new,
// honoring an app_compatible check against the version tag the server
// forwarded alongside the carried-over state.
func (c *Client) resolveInitialState(handle libhandle.Handle, start wire.ServerMessage) []byte {
	if !start.HasState {
		return nil
	}
	if !start.HasPrevVersion {
		return start.State
	}

	compatible := handle.AppCompatible(start.PrevVersion)
	logger.Info("checked app compatibility", logger.AppVersion(string(start.PrevVersion)), logger.Compatible(compatible))
	if !compatible {
		return nil
	}
	return start.State
}

// readLoop polls for server messages (GetState, Close) while the main
// goroutine may be blocked inside entry_run.
func (c *Client) readLoop(handle libhandle.Handle) {
	fr := wire.NewFrameReader(c.conn)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		msg, err := fr.TryReadServerMessage()
		if err == wire.ErrWouldBlock {
			continue
		}
		if err != nil {
			select {
			case <-c.done:
				// entry_run already returned and Run is tearing the
				// connection down; this read error is expected, not fatal.
				return
			default:
			}
			logger.Error("client read loop error", logger.Err(err))
			os.Exit(1)
		}

		switch msg.Kind {
		case wire.ServerMsgGetState:
			c.mu.RLock()
			bytes := handle.StateSerializeNew(c.state)
			version := handle.AppVersion()
			c.mu.RUnlock()

			reply := wire.NewSetState(bytes, len(bytes) > 0, version, len(version) > 0)
			c.writeClientMessage(reply)

		case wire.ServerMsgClose:
			logger.Info("close received, exiting")
			os.Exit(0)

		case wire.ServerMsgStart:
			logger.Warn("unexpected Start after session already loaded")
		}
	}
}

func (c *Client) writeClientMessage(msg wire.ClientMessage) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err := wire.WriteClientMessage(c.conn, msg); err != nil {
		logger.Error("client write error", logger.Err(err))
	}
}

// buildVTable constructs the server facade passed into entry_run. Self is
// unused: exactly one session runs per client process, so the callbacks
// close over this Client directly rather than dereferencing an opaque
// pointer.
func (c *Client) buildVTable(handle libhandle.Handle) abi.VTable {
	restartSoft := purego.NewCallback(func(self uintptr) {
		c.requestRestart(false, nil, false, handle)
	})
	restartSoftWithState := purego.NewCallback(func(self uintptr, state abi.ByteArray) {
		c.requestRestart(false, copyByteArray(state), true, handle)
	})
	restartHard := purego.NewCallback(func(self uintptr) {
		c.requestRestart(true, nil, false, handle)
	})
	restartHardWithState := purego.NewCallback(func(self uintptr, state abi.ByteArray) {
		c.requestRestart(true, copyByteArray(state), true, handle)
	})

	return abi.VTable{
		Self:                 0,
		RestartHard:          restartHard,
		RestartHardWithState: restartHardWithState,
		RestartSoft:          restartSoft,
		RestartSoftWithState: restartSoftWithState,
	}
}

// requestRestart implements the "Any -> user code invokes facade" row of
// the client state table: enqueue SetState then Restart, both forwarded to
// the server over the socket.
func (c *Client) requestRestart(hard bool, state []byte, hasState bool, handle libhandle.Handle) {
	c.restartFired = true

	version := handle.AppVersion()
	c.writeClientMessage(wire.NewSetState(state, hasState, version, len(version) > 0))
	c.writeClientMessage(wire.NewRestart(hard))

	logger.Info("restart requested", logger.Hard(hard), logger.HasState(hasState))
}

// copyByteArray copies a borrowed ABI byte array into a Go slice. The
// source may only be read for the duration of the call that produced it.
func copyByteArray(b abi.ByteArray) []byte {
	if b.IsEmpty() {
		return nil
	}
	out := make([]byte, b.Len)
	src := unsafe.Slice((*byte)(unsafe.Pointer(b.Data)), b.Len)
	copy(out, src)
	return out
}

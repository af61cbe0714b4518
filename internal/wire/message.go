// Package wire implements the control protocol exchanged between the server
// and a client over the local stream socket: a framed, bidirectional
// message stream. Each frame is an 8-byte little-endian length prefix
// followed by an opaque payload encoded with a fixed binary encoding
// (RFC 4506 XDR, via github.com/rasky/go-xdr).
package wire

// ServerMsgKind enumerates server-to-client messages.
type ServerMsgKind uint32

const (
	ServerMsgStart ServerMsgKind = iota
	ServerMsgGetState
	ServerMsgClose
)

func (k ServerMsgKind) String() string {
	switch k {
	case ServerMsgStart:
		return "Start"
	case ServerMsgGetState:
		return "GetState"
	case ServerMsgClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// ServerMessage is a message sent from the server to a client.
//
// Kind selects the variant; HasState/State carry Start's optional state
// payload, and HasPrevVersion/PrevVersion carry the version tag of the
// library that produced that state (so the newly loaded library can run
// its own compatibility check before trusting the carried-over bytes).
// Both are zero-valued for GetState and Close.
type ServerMessage struct {
	Kind           ServerMsgKind
	HasState       bool
	State          []byte
	HasPrevVersion bool
	PrevVersion    []byte
}

// NewStart builds a Start message, optionally carrying prior state and the
// version tag of the library that produced it.
func NewStart(state []byte, hasState bool, prevVersion []byte, hasPrevVersion bool) ServerMessage {
	return ServerMessage{
		Kind:           ServerMsgStart,
		HasState:       hasState,
		State:          state,
		HasPrevVersion: hasPrevVersion,
		PrevVersion:    prevVersion,
	}
}

// NewGetState builds a GetState message.
func NewGetState() ServerMessage {
	return ServerMessage{Kind: ServerMsgGetState}
}

// NewClose builds a Close message.
func NewClose() ServerMessage {
	return ServerMessage{Kind: ServerMsgClose}
}

// ClientMsgKind enumerates client-to-server messages.
type ClientMsgKind uint32

const (
	ClientMsgRestart ClientMsgKind = iota
	ClientMsgSetState
)

func (k ClientMsgKind) String() string {
	switch k {
	case ClientMsgRestart:
		return "Restart"
	case ClientMsgSetState:
		return "SetState"
	default:
		return "Unknown"
	}
}

// ClientMessage is a message sent from a client to the server.
//
// Hard marks a restart request as hard (additionally re-executes the
// server); it is meaningful only when Kind is ClientMsgRestart.
// HasVersion/Version carry the serializing library's version tag alongside
// SetState, so the server can hand it back as the next Start's
// PrevVersion.
type ClientMessage struct {
	Kind       ClientMsgKind
	Hard       bool
	HasState   bool
	State      []byte
	HasVersion bool
	Version    []byte
}

// NewRestart builds a Restart message.
func NewRestart(hard bool) ClientMessage {
	return ClientMessage{Kind: ClientMsgRestart, Hard: hard}
}

// NewSetState builds a SetState message, optionally carrying state bytes
// and the version tag of the library that produced them.
func NewSetState(state []byte, hasState bool, version []byte, hasVersion bool) ClientMessage {
	return ClientMessage{
		Kind:       ClientMsgSetState,
		HasState:   hasState,
		State:      state,
		HasVersion: hasVersion,
		Version:    version,
	}
}

// Package libhandle loads a reloadable library from disk, resolves the
// entry_* symbols defined by internal/abi, and exposes typed wrappers
// around them. A Handle owns the OS library handle and must be unloaded
// exactly once.
package libhandle

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/relohq/relo/internal/abi"
)

// Handle is a loaded reloadable library with its entry points resolved.
// It is an interface so callers (internal/client in particular) can be
// exercised against an in-process fake without ever building a real
// c-shared library.
type Handle interface {
	Path() string
	AppNew() uintptr
	AppDrop(app uintptr)
	AppVersion() []byte
	AppCompatible(prevVersion []byte) bool
	StateNew(state []byte) uintptr
	StateDrop(state uintptr)
	StateSerializeNew(state uintptr) []byte
	Run(app uintptr, vtable abi.VTable, state uintptr)
	Unload() error
}

// puregoHandle is the real Handle, backed by a dlopen'd shared library.
type puregoHandle struct {
	path string
	lib  uintptr

	entryVersion            func() uint8
	entryRun                func(app uintptr, vtable abi.VTable, state uintptr)
	entryStateNew           func(bytes abi.ByteArray) uintptr
	entryStateDrop          func(state uintptr)
	entryStateSerializeNew  func(state uintptr) abi.ByteArray
	entryStateSerializeDrop func(bytes abi.ByteArray)
	entryAppNew             func() uintptr
	entryAppDrop            func(app uintptr)
	entryAppVersion         func() abi.ByteArray
	entryAppCompatible      func(bytes abi.ByteArray) bool
}

var _ Handle = (*puregoHandle)(nil)

// Load opens the shared library at path, resolves every symbol required by
// the ABI contract, and verifies entry_version matches the runtime's known
// ABI version. A version mismatch or a missing symbol is a fatal load
// error; the caller is expected to treat it as such (see Non-goals: no
// degraded-but-running state for an incompatible library).
func Load(path string) (Handle, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("libhandle: open %s: %w", path, err)
	}

	h := &puregoHandle{path: path, lib: lib}

	if err := h.resolveSymbols(); err != nil {
		_ = purego.Dlclose(lib)
		return nil, err
	}

	gotVersion := h.entryVersion()
	if gotVersion != abi.Version {
		_ = purego.Dlclose(lib)
		return nil, fmt.Errorf("libhandle: %s: abi version mismatch: library=%d runtime=%d", path, gotVersion, abi.Version)
	}

	return h, nil
}

func (h *puregoHandle) resolveSymbols() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libhandle: %s: missing required symbol: %v", h.path, r)
		}
	}()

	purego.RegisterLibFunc(&h.entryVersion, h.lib, abi.SymbolVersion)
	purego.RegisterLibFunc(&h.entryRun, h.lib, abi.SymbolRun)
	purego.RegisterLibFunc(&h.entryStateNew, h.lib, abi.SymbolStateNew)
	purego.RegisterLibFunc(&h.entryStateDrop, h.lib, abi.SymbolStateDrop)
	purego.RegisterLibFunc(&h.entryStateSerializeNew, h.lib, abi.SymbolStateSerializeNew)
	purego.RegisterLibFunc(&h.entryStateSerializeDrop, h.lib, abi.SymbolStateSerializeDrop)
	purego.RegisterLibFunc(&h.entryAppNew, h.lib, abi.SymbolAppNew)
	purego.RegisterLibFunc(&h.entryAppDrop, h.lib, abi.SymbolAppDrop)
	purego.RegisterLibFunc(&h.entryAppVersion, h.lib, abi.SymbolAppVersion)
	purego.RegisterLibFunc(&h.entryAppCompatible, h.lib, abi.SymbolAppCompatible)

	return nil
}

// Path returns the filesystem path this handle was loaded from.
func (h *puregoHandle) Path() string {
	return h.path
}

// AppNew constructs the library's code-scoped application object. Called
// once per library load.
func (h *puregoHandle) AppNew() uintptr {
	return h.entryAppNew()
}

// AppDrop destroys an application object returned by AppNew.
func (h *puregoHandle) AppDrop(app uintptr) {
	h.entryAppDrop(app)
}

// AppVersion returns the library's version tag, read from its static
// memory. The returned slice is a copy; the library retains ownership of
// the original bytes.
func (h *puregoHandle) AppVersion() []byte {
	return copyBorrowed(h.entryAppVersion())
}

// AppCompatible reports whether a prior version's serialized state (tagged
// by prevVersion) may be passed to this build's StateNew.
func (h *puregoHandle) AppCompatible(prevVersion []byte) bool {
	return h.entryAppCompatible(borrow(prevVersion))
}

// StateNew constructs or deserializes user state from a borrowed byte
// array. An empty input produces the library's default state.
func (h *puregoHandle) StateNew(state []byte) uintptr {
	return h.entryStateNew(borrow(state))
}

// StateDrop destroys a state object returned by StateNew or carried across
// a soft restart.
func (h *puregoHandle) StateDrop(state uintptr) {
	h.entryStateDrop(state)
}

// StateSerializeNew produces a transferable byte image of state. An empty
// result is treated by the caller as "no state available" rather than a
// zero-length valid state.
func (h *puregoHandle) StateSerializeNew(state uintptr) []byte {
	bytes := h.entryStateSerializeNew(state)
	defer h.entryStateSerializeDrop(bytes)
	return copyBorrowed(bytes)
}

// Run invokes entry_run once. It returns when the library's run function
// returns; user code that calls into the vtable to request a restart is
// expected to do so and then return promptly.
func (h *puregoHandle) Run(app uintptr, vtable abi.VTable, state uintptr) {
	h.entryRun(app, vtable, state)
}

// Unload releases the OS library handle. The Handle must not be used
// afterward.
func (h *puregoHandle) Unload() error {
	if err := purego.Dlclose(h.lib); err != nil {
		return fmt.Errorf("libhandle: close %s: %w", h.path, err)
	}
	return nil
}

// borrow produces a ByteArray that lends data's backing storage for the
// duration of the call. Capacity is zero: borrowed arrays are never freed
// by the callee.
func borrow(data []byte) abi.ByteArray {
	if len(data) == 0 {
		return abi.ByteArray{}
	}
	return abi.ByteArray{
		Data: uintptr(unsafe.Pointer(&data[0])),
		Len:  uintptr(len(data)),
	}
}

// copyBorrowed copies a ByteArray's bytes into a freshly allocated Go
// slice. Used for arrays the library retains ownership of (app version,
// borrowed input echoes) as well as owned arrays that are freed right after
// the copy, where holding onto the raw pointer past the call would be unsafe.
func copyBorrowed(b abi.ByteArray) []byte {
	if b.IsEmpty() {
		return nil
	}
	out := make([]byte, b.Len)
	src := unsafe.Slice((*byte)(unsafe.Pointer(b.Data)), b.Len)
	copy(out, src)
	return out
}

package libhandle

import "github.com/relohq/relo/internal/abi"

// Fake is an in-process Handle implementation for tests that exercise
// client/server logic without a real c-shared library on disk. State and
// app objects are represented as small integer handles into Fake's own
// tables rather than real pointers.
type Fake struct {
	PathValue string

	AppVersionValue    []byte
	CompatibleVersions map[string]bool

	// RunFunc, if set, is invoked by Run in place of the default no-op.
	// It receives the vtable the caller passed so tests can simulate user
	// code requesting a restart.
	RunFunc func(app uintptr, vtable abi.VTable, state uintptr)

	states    map[uintptr][]byte
	nextState uintptr
	apps      map[uintptr]struct{}
	nextApp   uintptr

	Unloaded bool
}

var _ Handle = (*Fake)(nil)

// NewFake returns a Fake with empty internal tables.
func NewFake(path string) *Fake {
	return &Fake{
		PathValue:          path,
		CompatibleVersions: map[string]bool{},
		states:             map[uintptr][]byte{},
		apps:               map[uintptr]struct{}{},
	}
}

func (f *Fake) Path() string { return f.PathValue }

func (f *Fake) AppNew() uintptr {
	f.nextApp++
	f.apps[f.nextApp] = struct{}{}
	return f.nextApp
}

func (f *Fake) AppDrop(app uintptr) {
	delete(f.apps, app)
}

func (f *Fake) AppVersion() []byte {
	return f.AppVersionValue
}

func (f *Fake) AppCompatible(prevVersion []byte) bool {
	if f.CompatibleVersions == nil {
		return true
	}
	compatible, ok := f.CompatibleVersions[string(prevVersion)]
	if !ok {
		return true
	}
	return compatible
}

func (f *Fake) StateNew(state []byte) uintptr {
	f.nextState++
	cp := append([]byte(nil), state...)
	f.states[f.nextState] = cp
	return f.nextState
}

func (f *Fake) StateDrop(state uintptr) {
	delete(f.states, state)
}

func (f *Fake) StateSerializeNew(state uintptr) []byte {
	return append([]byte(nil), f.states[state]...)
}

func (f *Fake) Run(app uintptr, vtable abi.VTable, state uintptr) {
	if f.RunFunc != nil {
		f.RunFunc(app, vtable, state)
	}
}

func (f *Fake) Unload() error {
	f.Unloaded = true
	return nil
}

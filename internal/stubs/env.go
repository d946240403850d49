package stubs

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/zboralski/loris/internal/privstore"
	"github.com/zboralski/loris/internal/wasm"
)

// Env is the host-side state for one module instance. Stubs keep
// state nowhere else: a fresh Env means a fresh guest. The guest has
// exactly one logical thread, so stub hooks touching an Env are never
// concurrent; an Env must not be shared between instances.
type Env struct {
	// Private holds the thread-local bindings behind the g_private
	// stubs, keyed by the guest address of each GPrivate.
	Private *privstore.Store

	// ThreadName is the last name the guest gave its single thread.
	ThreadName string

	seq uint64
}

// NewEnv creates the state for a fresh module instance.
func NewEnv() *Env {
	return &Env{Private: privstore.New()}
}

// NextSeq returns the next call sequence number, starting at 1.
func (e *Env) NextSeq() uint64 {
	e.seq++
	return e.seq
}

// Calls returns how many stub calls this Env has seen.
func (e *Env) Calls() uint64 {
	return e.seq
}

// Signature describes a stub's wasm type. On wasm32 every pointer
// argument is an i32.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// SigArgs builds a signature of n i32 parameters and no result.
func SigArgs(n int) Signature {
	return Signature{Params: i32s(n)}
}

// SigArgsRet builds a signature of n i32 parameters and one i32
// result.
func SigArgsRet(n int) Signature {
	return Signature{Params: i32s(n), Results: i32s(1)}
}

func i32s(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for i := range out {
		out[i] = api.ValueTypeI32
	}
	return out
}

// matches reports whether the stub signature equals an import's.
func (s Signature) matches(imp wasm.Import) bool {
	if len(s.Params) != len(imp.Params) || len(s.Results) != len(imp.Results) {
		return false
	}
	for i, p := range s.Params {
		if p != imp.Params[i] {
			return false
		}
	}
	for i, r := range s.Results {
		if r != imp.Results[i] {
			return false
		}
	}
	return true
}

// Call carries one host-function invocation into a stub hook: the
// per-instance Env, guest memory access, and the raw value stack.
// Results overwrite the stack in place, so hooks read their arguments
// before returning a value.
type Call struct {
	Env *Env
	M   *wasm.Machine

	def    *StubDef
	stack  []uint64
	detail string
}

// NewCall builds a Call for a stub invocation. Exposed for tests and
// interceptors; stub hooks receive theirs from the registry.
func NewCall(env *Env, m *wasm.Machine, def *StubDef, stack []uint64) *Call {
	return &Call{Env: env, M: m, def: def, stack: stack}
}

// Name returns the stub's symbol name.
func (c *Call) Name() string {
	return c.def.Name
}

// Args returns the number of declared parameters.
func (c *Call) Args() int {
	return len(c.def.Sig.Params)
}

// Arg returns parameter i as a wasm32 value (pointers, gbooleans,
// unsigned ints).
func (c *Call) Arg(i int) uint32 {
	return api.DecodeU32(c.stack[i])
}

// ArgI64 returns parameter i as a signed 64-bit value (monotonic
// timestamps).
func (c *Call) ArgI64(i int) int64 {
	return int64(c.stack[i])
}

// Return writes the single i32 result. A call with no declared result
// ignores it.
func (c *Call) Return(v uint32) {
	if len(c.def.Sig.Results) > 0 {
		c.stack[0] = api.EncodeU32(v)
	}
}

// ReturnBool writes a gboolean result: TRUE is 1, FALSE is 0.
func (c *Call) ReturnBool(b bool) {
	if b {
		c.Return(1)
	} else {
		c.Return(0)
	}
}

// SetDetail records the detail string reported with this call.
func (c *Call) SetDetail(detail string) {
	c.detail = detail
}

// Detail returns the detail recorded by the hook, if any.
func (c *Call) Detail() string {
	return c.detail
}

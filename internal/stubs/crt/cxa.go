package crt

import (
	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("crt", "__cxa_atexit", stubs.SigArgsRet(3), stubCxaAtexit)
	stubs.RegisterFunc("crt", "__cxa_guard_acquire", stubs.SigArgsRet(1), stubCxaGuardAcquire)
	stubs.RegisterFunc("crt", "__cxa_guard_release", stubs.SigArgs(1), stubCxaGuardRelease)
	stubs.RegisterFunc("crt", "__cxa_guard_abort", stubs.SigArgs(1), stubCxaGuardAbort)
	stubs.RegisterFunc("crt", "__cxa_throw", stubs.SigArgs(3), stubCxaThrow)
	stubs.RegisterFunc("crt", "__cxa_pure_virtual", stubs.SigArgs(0), stubCxaPureVirtual)
	stubs.RegisterFunc("crt", "__cxa_allocate_exception", stubs.SigArgsRet(1), stubCxaAllocateException)
	stubs.RegisterFunc("crt", "__cxa_begin_catch", stubs.SigArgsRet(1), stubCxaBeginCatch)
	stubs.RegisterFunc("crt", "__cxa_end_catch", stubs.SigArgs(0), stubCxaEndCatch)
	stubs.RegisterFunc("crt", "__cxa_free_exception", stubs.SigArgs(1), stubCxaFreeException)
}

func stubCxaAtexit(c *stubs.Call) {
	// Registration is discarded; teardown never runs destructors.
	c.SetDetail(stubs.FormatPtr("func", uint64(c.Arg(0))))
	c.Return(0) // Success
}

// Static init guards follow the Itanium protocol using the guard byte
// in guest memory, so each instance tracks its own initializations.

func stubCxaGuardAcquire(c *stubs.Call) {
	guard := c.Arg(0)
	b, err := c.M.ReadBytes(guard, 1)
	done := err == nil && b[0] != 0
	c.SetDetail(stubs.FormatPtr("guard", uint64(guard)))
	c.ReturnBool(!done) // 1 means run the initializer
}

func stubCxaGuardRelease(c *stubs.Call) {
	guard := c.Arg(0)
	_ = c.M.WriteBytes(guard, []byte{1})
	c.SetDetail(stubs.FormatPtr("guard", uint64(guard)))
}

func stubCxaGuardAbort(c *stubs.Call) {
	// Initialization failed; let the next acquire try again.
	guard := c.Arg(0)
	_ = c.M.WriteBytes(guard, []byte{0})
	c.SetDetail(stubs.FormatPtr("guard", uint64(guard)))
}

func stubCxaThrow(c *stubs.Call) {
	// No unwinder to run. Stop the guest like an uncaught exception.
	stubs.DefaultRegistry.Log("crt", "__cxa_throw",
		stubs.FormatPtrPair("exception", uint64(c.Arg(0)), "tinfo", uint64(c.Arg(1))))
	terminate(c, abortCode)
}

func stubCxaPureVirtual(c *stubs.Call) {
	stubs.DefaultRegistry.Log("crt", "__cxa_pure_virtual", "")
	terminate(c, abortCode)
}

func stubCxaAllocateException(c *stubs.Call) {
	// Address 0 is writable linear memory and Emscripten leaves the
	// first KiB unused, so the guest can build its exception object
	// there before the throw ends the run.
	c.SetDetail(stubs.FormatPtr("size", uint64(c.Arg(0))))
	c.Return(0)
}

func stubCxaBeginCatch(c *stubs.Call) {
	exc := c.Arg(0)
	c.SetDetail(stubs.FormatPtr("exception", uint64(exc)))
	c.Return(exc)
}

func stubCxaEndCatch(c *stubs.Call) {
}

func stubCxaFreeException(c *stubs.Call) {
	// Nothing was allocated.
}

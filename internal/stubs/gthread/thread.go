// Package gthread provides stub implementations for GLib's threading
// primitives as single-threaded Emscripten builds import them: locks
// acquire without blocking, waits return at once, and thread creation
// reports a null handle.
package gthread

import (
	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("thread", "g_system_thread_new", stubs.SigArgsRet(6), stubSystemThreadNew)
	stubs.RegisterFunc("thread", "g_system_thread_free", stubs.SigArgs(1), stubSystemThreadFree)
	stubs.RegisterFunc("thread", "g_system_thread_wait", stubs.SigArgs(1), stubSystemThreadWait)
	stubs.RegisterFunc("thread", "g_system_thread_exit", stubs.SigArgs(0), stubSystemThreadExit)
	stubs.RegisterFunc("thread", "g_system_thread_set_name", stubs.SigArgs(1), stubSystemThreadSetName)
	stubs.RegisterFunc("thread", "g_thread_yield", stubs.SigArgs(0), stubThreadYield)
}

func stubSystemThreadNew(c *stubs.Call) {
	// proxy := c.Arg(0)
	// stackSize := c.Arg(1)
	namePtr := c.Arg(2)
	fn := c.Arg(3)
	// data := c.Arg(4)
	// The GError out-param at arg 5 stays untouched: callers test the
	// returned handle, not the error.

	detail := stubs.FormatPtr("func", uint64(fn))
	if namePtr != 0 {
		if name, err := c.M.ReadCString(namePtr); err == nil && name != "" {
			detail = "name=" + name + " " + detail
		}
	}
	c.SetDetail(detail)
	c.Return(0) // NULL handle: no thread was created
}

func stubSystemThreadFree(c *stubs.Call) {
	// Nothing was allocated for the handle.
	c.SetDetail(stubs.FormatPtr("thread", uint64(c.Arg(0))))
}

func stubSystemThreadWait(c *stubs.Call) {
	// No thread to join; return immediately.
	c.SetDetail(stubs.FormatPtr("thread", uint64(c.Arg(0))))
}

func stubSystemThreadExit(c *stubs.Call) {
	// Don't tear down the instance - just return to the caller.
}

func stubSystemThreadSetName(c *stubs.Call) {
	namePtr := c.Arg(0)
	if namePtr == 0 {
		return
	}
	name, err := c.M.ReadCString(namePtr)
	if err != nil {
		return
	}
	c.Env.ThreadName = name
	c.SetDetail("name=" + name)
}

func stubThreadYield(c *stubs.Call) {
	// Single thread, nothing to yield to.
}

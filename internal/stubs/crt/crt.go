// Package crt provides stub implementations for the C runtime
// scaffolding Emscripten modules import alongside the GLib threading
// symbols: process termination, assertion failures, and the C++ ABI
// support calls.
package crt

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/sys"
	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("crt", "abort", stubs.SigArgs(0), stubAbort)
	stubs.RegisterFunc("crt", "exit", stubs.SigArgs(1), stubExit, "_exit")
	stubs.RegisterFunc("crt", "__assert_fail", stubs.SigArgs(4), stubAssertFail)
}

// 128+SIGABRT, what a shell reports for an aborted process.
const abortCode = 134

// terminate ends the run the way proc_exit does: close the module so
// nothing executes afterwards, then unwind with an ExitError the entry
// caller receives.
func terminate(c *stubs.Call, code uint32) {
	if mod := c.M.Module(); mod != nil {
		_ = mod.CloseWithExitCode(context.Background(), code)
	}
	panic(sys.NewExitError(code))
}

func stubAbort(c *stubs.Call) {
	// Log here: terminate unwinds past the registry's own reporting.
	stubs.DefaultRegistry.Log("crt", "abort", "")
	terminate(c, abortCode)
}

func stubExit(c *stubs.Call) {
	status := c.Arg(0)
	stubs.DefaultRegistry.Log("crt", "exit", fmt.Sprintf("status=%d", int32(status)))
	terminate(c, status)
}

func stubAssertFail(c *stubs.Call) {
	assertion, _ := c.M.ReadCString(c.Arg(0))
	file, _ := c.M.ReadCString(c.Arg(1))
	line := c.Arg(2)
	fn, _ := c.M.ReadCString(c.Arg(3))

	detail := fmt.Sprintf("%q at %s:%d", assertion, file, line)
	if fn != "" {
		detail += " in " + fn
	}
	stubs.DefaultRegistry.Log("crt", "__assert_fail", detail)
	terminate(c, abortCode)
}

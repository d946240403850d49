// Package dl provides stub implementations for the dynamic loader.
// Static wasm modules have nothing to load, so opens and lookups fail
// the same way thread creation does: NULL, and the caller copes.
package dl

import (
	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("dl", "dlopen", stubs.SigArgsRet(2), stubDlopen)
	stubs.RegisterFunc("dl", "dlsym", stubs.SigArgsRet(2), stubDlsym)
	stubs.RegisterFunc("dl", "dlclose", stubs.SigArgsRet(1), stubDlclose)
	stubs.RegisterFunc("dl", "dlerror", stubs.SigArgsRet(0), stubDlerror)
}

func stubDlopen(c *stubs.Call) {
	filenamePtr := c.Arg(0)
	// flags := c.Arg(1)

	filename := ""
	if filenamePtr != 0 {
		filename, _ = c.M.ReadCString(filenamePtr)
	}
	c.SetDetail("file=" + filename)
	c.Return(0) // NULL handle
}

func stubDlsym(c *stubs.Call) {
	handle := c.Arg(0)
	symbol, _ := c.M.ReadCString(c.Arg(1))

	// A fake address here would be called through the indirect table
	// and trap; NULL keeps the failure at the lookup.
	c.SetDetail(stubs.FormatPtr("handle", uint64(handle)) + " symbol=" + symbol)
	c.Return(0)
}

func stubDlclose(c *stubs.Call) {
	c.SetDetail(stubs.FormatPtr("handle", uint64(c.Arg(0))))
	c.Return(0) // Success
}

func stubDlerror(c *stubs.Call) {
	// No guest buffer to write a message into. NULL reads as "no
	// further detail" to g_module and plain dlopen callers alike.
	c.Return(0)
}

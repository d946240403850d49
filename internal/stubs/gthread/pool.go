package gthread

import (
	"fmt"

	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("pool", "g_thread_pool_set_max_unused_threads", stubs.SigArgs(1), stubPoolSetMaxUnused)
	stubs.RegisterFunc("pool", "g_thread_pool_get_max_unused_threads", stubs.SigArgsRet(0), stubPoolGetMaxUnused)
	stubs.RegisterFunc("pool", "g_thread_pool_get_num_unused_threads", stubs.SigArgsRet(0), stubPoolGetNumUnused)
	stubs.RegisterFunc("pool", "g_thread_pool_stop_unused_threads", stubs.SigArgs(0), stubPoolStopUnused)
}

func stubPoolSetMaxUnused(c *stubs.Call) {
	// Accepted and discarded; the getter keeps reporting 0.
	c.SetDetail(fmt.Sprintf("max=%d", int32(c.Arg(0))))
}

func stubPoolGetMaxUnused(c *stubs.Call) {
	c.Return(0)
}

func stubPoolGetNumUnused(c *stubs.Call) {
	c.Return(0)
}

func stubPoolStopUnused(c *stubs.Call) {
	// No pool, no unused threads.
}

package gthread

import (
	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("mutex", "g_mutex_init", stubs.SigArgs(1), stubMutexInit)
	stubs.RegisterFunc("mutex", "g_mutex_clear", stubs.SigArgs(1), stubMutexClear)
	stubs.RegisterFunc("mutex", "g_mutex_lock", stubs.SigArgs(1), stubMutexLock)
	stubs.RegisterFunc("mutex", "g_mutex_trylock", stubs.SigArgsRet(1), stubMutexTrylock)
	stubs.RegisterFunc("mutex", "g_mutex_unlock", stubs.SigArgs(1), stubMutexUnlock)

	// Recursive mutex
	stubs.RegisterFunc("mutex", "g_rec_mutex_init", stubs.SigArgs(1), stubRecMutexInit)
	stubs.RegisterFunc("mutex", "g_rec_mutex_clear", stubs.SigArgs(1), stubRecMutexClear)
	stubs.RegisterFunc("mutex", "g_rec_mutex_lock", stubs.SigArgs(1), stubRecMutexLock)
	stubs.RegisterFunc("mutex", "g_rec_mutex_trylock", stubs.SigArgsRet(1), stubRecMutexTrylock)
	stubs.RegisterFunc("mutex", "g_rec_mutex_unlock", stubs.SigArgs(1), stubRecMutexUnlock)
}

func stubMutexInit(c *stubs.Call) {
	// The GMutex cell in guest memory is never touched.
}

func stubMutexClear(c *stubs.Call) {
}

func stubMutexLock(c *stubs.Call) {
	// Sole thread already owns everything.
}

func stubMutexTrylock(c *stubs.Call) {
	c.SetDetail(stubs.FormatPtr("mutex", uint64(c.Arg(0))))
	c.ReturnBool(true) // Always succeed
}

func stubMutexUnlock(c *stubs.Call) {
}

func stubRecMutexInit(c *stubs.Call) {
}

func stubRecMutexClear(c *stubs.Call) {
}

func stubRecMutexLock(c *stubs.Call) {
	// No depth counter: unlocks are just as free as locks.
}

func stubRecMutexTrylock(c *stubs.Call) {
	c.SetDetail(stubs.FormatPtr("rec_mutex", uint64(c.Arg(0))))
	c.ReturnBool(true) // Always succeed
}

func stubRecMutexUnlock(c *stubs.Call) {
}

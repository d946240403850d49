package gthread

import (
	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("rwlock", "g_rw_lock_init", stubs.SigArgs(1), stubRWLockInit)
	stubs.RegisterFunc("rwlock", "g_rw_lock_clear", stubs.SigArgs(1), stubRWLockClear)
	stubs.RegisterFunc("rwlock", "g_rw_lock_writer_lock", stubs.SigArgs(1), stubRWLockWriterLock)
	stubs.RegisterFunc("rwlock", "g_rw_lock_writer_trylock", stubs.SigArgsRet(1), stubRWLockWriterTrylock)
	stubs.RegisterFunc("rwlock", "g_rw_lock_writer_unlock", stubs.SigArgs(1), stubRWLockWriterUnlock)
	stubs.RegisterFunc("rwlock", "g_rw_lock_reader_lock", stubs.SigArgs(1), stubRWLockReaderLock)
	stubs.RegisterFunc("rwlock", "g_rw_lock_reader_trylock", stubs.SigArgsRet(1), stubRWLockReaderTrylock)
	stubs.RegisterFunc("rwlock", "g_rw_lock_reader_unlock", stubs.SigArgs(1), stubRWLockReaderUnlock)
}

func stubRWLockInit(c *stubs.Call) {
}

func stubRWLockClear(c *stubs.Call) {
}

func stubRWLockWriterLock(c *stubs.Call) {
	// No readers can exist to wait on.
}

func stubRWLockWriterTrylock(c *stubs.Call) {
	c.SetDetail(stubs.FormatPtr("rw_lock", uint64(c.Arg(0))))
	c.ReturnBool(true) // Always succeed
}

func stubRWLockWriterUnlock(c *stubs.Call) {
}

func stubRWLockReaderLock(c *stubs.Call) {
}

func stubRWLockReaderTrylock(c *stubs.Call) {
	c.SetDetail(stubs.FormatPtr("rw_lock", uint64(c.Arg(0))))
	c.ReturnBool(true) // Always succeed
}

func stubRWLockReaderUnlock(c *stubs.Call) {
}

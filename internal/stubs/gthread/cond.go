package gthread

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("cond", "g_cond_init", stubs.SigArgs(1), stubCondInit)
	stubs.RegisterFunc("cond", "g_cond_clear", stubs.SigArgs(1), stubCondClear)
	stubs.RegisterFunc("cond", "g_cond_wait", stubs.SigArgs(2), stubCondWait)
	stubs.RegisterFunc("cond", "g_cond_wait_until", waitUntilSig, stubCondWaitUntil)
	stubs.RegisterFunc("cond", "g_cond_signal", stubs.SigArgs(1), stubCondSignal)
	stubs.RegisterFunc("cond", "g_cond_broadcast", stubs.SigArgs(1), stubCondBroadcast)
}

// g_cond_wait_until takes a monotonic deadline in microseconds as a
// 64-bit value, the one threading import that is not all-i32.
var waitUntilSig = stubs.Signature{
	Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI64},
	Results: []api.ValueType{api.ValueTypeI32},
}

func stubCondInit(c *stubs.Call) {
}

func stubCondClear(c *stubs.Call) {
}

func stubCondWait(c *stubs.Call) {
	// No other thread can signal, so blocking would hang the instance.
	// Return immediately; the caller's predicate loop decides what to do.
	c.SetDetail(stubs.FormatPtrPair("cond", uint64(c.Arg(0)), "mutex", uint64(c.Arg(1))))
}

func stubCondWaitUntil(c *stubs.Call) {
	c.SetDetail(stubs.FormatPtrPair("cond", uint64(c.Arg(0)), "mutex", uint64(c.Arg(1))) +
		fmt.Sprintf(" end_time=%d", c.ArgI64(2)))
	c.ReturnBool(true) // Signalled, never timed out; the deadline is ignored
}

func stubCondSignal(c *stubs.Call) {
	// Nobody is waiting.
}

func stubCondBroadcast(c *stubs.Call) {
}

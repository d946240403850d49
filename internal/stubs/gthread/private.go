package gthread

import (
	"github.com/zboralski/loris/internal/stubs"
)

func init() {
	stubs.RegisterFunc("private", "g_private_get", stubs.SigArgsRet(1), stubPrivateGet)
	stubs.RegisterFunc("private", "g_private_set", stubs.SigArgs(2), stubPrivateSet)
	stubs.RegisterFunc("private", "g_private_replace", stubs.SigArgs(2), stubPrivateReplace)
}

// The GPrivate stubs back the one piece of real state in the whole
// surface. Keys are guest addresses of static GPrivate structs and are
// compared by identity; the pointed-to bytes (including the destructor
// slot) are never read.

func stubPrivateGet(c *stubs.Call) {
	key := c.Arg(0)
	value, _ := c.Env.Private.Get(key) // absent key reads as NULL
	c.SetDetail(stubs.FormatPtrPair("key", uint64(key), "value", uint64(value)))
	c.Return(value)
}

func stubPrivateSet(c *stubs.Call) {
	key, value := c.Arg(0), c.Arg(1)
	c.Env.Private.Set(key, value)
	c.SetDetail(stubs.FormatPtrPair("key", uint64(key), "value", uint64(value)))
}

func stubPrivateReplace(c *stubs.Call) {
	// Same as set: with no destructors there is no old value to
	// dispose, so replace loses its only difference.
	key, value := c.Arg(0), c.Arg(1)
	c.Env.Private.Replace(key, value)
	c.SetDetail(stubs.FormatPtrPair("key", uint64(key), "value", uint64(value)))
}

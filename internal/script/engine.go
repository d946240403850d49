// Package script runs user JavaScript against a guest run. A script
// can watch every stub call as it happens, override a stub's return
// value, and summarize the run once the guest stops.
//
// Two optional hooks drive everything:
//
//	function onStub(call)   // {name, category, args, detail}
//	function onFinish(run)  // {calls, stubs, outcome, exit_code}
//
// onStub returning a number (or {ret: n}) replaces the stub's return
// value for that call; returning nothing leaves the stub in charge.
package script

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	glog "github.com/zboralski/loris/internal/log"
	"github.com/zboralski/loris/internal/stubs"
)

// Engine holds one compiled script and its VM. goja runtimes are not
// goroutine safe, so every entry into the VM takes the mutex.
type Engine struct {
	mu       sync.Mutex
	vm       *goja.Runtime
	onStub   goja.Callable
	onFinish goja.Callable
	path     string

	// Print receives the script's log() output, one line per call.
	Print func(line string)
}

// Load reads and compiles a script file, runs its top level, and
// captures the hook functions it defined.
func Load(path string) (*Engine, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read script: %w", err)
	}
	return New(path, string(src))
}

// New compiles script source under the given name.
func New(name, src string) (*Engine, error) {
	e := &Engine{
		vm:    goja.New(),
		path:  name,
		Print: func(line string) { fmt.Println(line) },
	}

	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		e.Print(strings.Join(parts, " "))
		return goja.Undefined()
	}
	e.vm.Set("log", logFn)
	console := e.vm.NewObject()
	console.Set("log", logFn)
	e.vm.Set("console", console)

	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("unable to compile script: %w", err)
	}
	if _, err := e.vm.RunProgram(prog); err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}

	if fn, ok := goja.AssertFunction(e.vm.Get("onStub")); ok {
		e.onStub = fn
	}
	if fn, ok := goja.AssertFunction(e.vm.Get("onFinish")); ok {
		e.onFinish = fn
	}
	return e, nil
}

// Check compiles a script without running it.
func Check(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read script: %w", err)
	}
	if _, err := goja.Compile(path, string(src), false); err != nil {
		return fmt.Errorf("unable to compile script: %w", err)
	}
	return nil
}

// Bind installs the engine as the registry's interceptor. Scripts
// without an onStub hook leave the registry alone.
func (e *Engine) Bind(r *stubs.Registry) {
	if e.onStub == nil {
		return
	}
	r.Intercept = e.Intercept
}

// Intercept hands one stub call to the script. True means the script
// overrode the return value and the stub's own hook must not run.
func (e *Engine) Intercept(def *stubs.StubDef, call *stubs.Call) bool {
	if e.onStub == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	args := make([]any, call.Args())
	for i := range args {
		args[i] = call.Arg(i)
	}
	v, err := e.onStub(goja.Undefined(), e.vm.ToValue(map[string]any{
		"name":     call.Name(),
		"category": def.Category,
		"args":     args,
		"detail":   call.Detail(),
	}))
	if err != nil {
		// A broken hook must not take the guest down with it.
		if glog.L != nil {
			glog.L.Warn("script onStub failed", glog.Fn(call.Name()), zap.Error(err))
		}
		return false
	}

	ret, ok := overrideValue(v)
	if !ok {
		return false
	}
	call.Return(ret)
	call.SetDetail(fmt.Sprintf("script ret=%d", ret))
	return true
}

// Finish reports the run result to the script's onFinish hook.
func (e *Engine) Finish(calls uint64, installed int, outcome string, exitCode uint32) {
	if e.onFinish == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.onFinish(goja.Undefined(), e.vm.ToValue(map[string]any{
		"calls":     calls,
		"stubs":     installed,
		"outcome":   outcome,
		"exit_code": exitCode,
	}))
	if err != nil && glog.L != nil {
		glog.L.Warn("script onFinish failed", zap.Error(err))
	}
}

// overrideValue interprets an onStub result. Undefined and null mean
// no override; a number, bool, or {ret: n} object replaces the stub's
// return value.
func overrideValue(v goja.Value) (uint32, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, false
	}
	switch x := v.Export().(type) {
	case int64:
		return uint32(x), true
	case float64:
		return uint32(int64(x)), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case map[string]any:
		switch n := x["ret"].(type) {
		case int64:
			return uint32(n), true
		case float64:
			return uint32(int64(n)), true
		}
	}
	return 0, false
}

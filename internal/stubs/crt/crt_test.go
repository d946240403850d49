package crt

import (
	"context"
	"errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"

	"github.com/zboralski/loris/internal/stubs"
	"github.com/zboralski/loris/internal/wasm"
)

var memModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic + version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // export "memory"
}

func newTestMachine(t *testing.T) *wasm.Machine {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })

	mod, err := r.Instantiate(ctx, memModule)
	if err != nil {
		t.Fatalf("Failed to instantiate memory module: %v", err)
	}
	return wasm.NewMachine(mod)
}

func invoke(t *testing.T, env *stubs.Env, m *wasm.Machine, name string, args ...uint64) []uint64 {
	t.Helper()
	def := stubs.DefaultRegistry.Lookup(name)
	if def == nil {
		t.Fatalf("No stub registered for %s", name)
	}
	n := len(def.Sig.Params)
	if len(def.Sig.Results) > n {
		n = len(def.Sig.Results)
	}
	stack := make([]uint64, n)
	copy(stack, args)
	def.Hook(stubs.NewCall(env, m, def, stack))
	return stack
}

// invokeTerminating runs a stub expected to unwind with an ExitError
// and returns the exit code it carried.
func invokeTerminating(t *testing.T, env *stubs.Env, m *wasm.Machine, name string, args ...uint64) uint32 {
	t.Helper()
	var code uint32
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatalf("%s returned instead of terminating", name)
			}
			err, ok := r.(error)
			if !ok {
				t.Fatalf("%s panicked with %v, want ExitError", name, r)
			}
			var exitErr *sys.ExitError
			if !errors.As(err, &exitErr) {
				t.Fatalf("%s panicked with %v, want ExitError", name, err)
			}
			code = exitErr.ExitCode()
		}()
		invoke(t, env, m, name, args...)
	}()
	return code
}

func TestAbortTerminates(t *testing.T) {
	env := stubs.NewEnv()
	m := newTestMachine(t)

	if code := invokeTerminating(t, env, m, "abort"); code != abortCode {
		t.Errorf("abort exit code = %d, want %d", code, abortCode)
	}
}

func TestExitCarriesStatus(t *testing.T) {
	env := stubs.NewEnv()
	m := newTestMachine(t)

	if code := invokeTerminating(t, env, m, "exit", 7); code != 7 {
		t.Errorf("exit(7) exit code = %d, want 7", code)
	}
}

func TestAssertFailReportsLocation(t *testing.T) {
	env := stubs.NewEnv()
	m := newTestMachine(t)

	if err := m.WriteBytes(0x100, append([]byte("ptr != NULL"), 0)); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if err := m.WriteBytes(0x140, append([]byte("gmain.c"), 0)); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if err := m.WriteBytes(0x180, append([]byte("g_main_loop_run"), 0)); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}

	var gotDetail string
	stubs.DefaultRegistry.OnCall = func(category, name, detail string) {
		if name == "__assert_fail" {
			gotDetail = detail
		}
	}
	defer func() { stubs.DefaultRegistry.OnCall = nil }()

	code := invokeTerminating(t, env, m, "__assert_fail", 0x100, 0x140, 217, 0x180)
	if code != abortCode {
		t.Errorf("__assert_fail exit code = %d, want %d", code, abortCode)
	}

	want := `"ptr != NULL" at gmain.c:217 in g_main_loop_run`
	if gotDetail != want {
		t.Errorf("detail = %q, want %q", gotDetail, want)
	}
}

func TestCxaAtexitReturnsSuccess(t *testing.T) {
	env := stubs.NewEnv()
	m := newTestMachine(t)

	stack := invoke(t, env, m, "__cxa_atexit", 0x2000, 0, 0x6000)
	if stack[0] != 0 {
		t.Errorf("__cxa_atexit returned %d, want 0", stack[0])
	}
}

func TestGuardProtocol(t *testing.T) {
	env := stubs.NewEnv()
	m := newTestMachine(t)

	const guard = uint32(0x240)

	// Fresh guard: initializer must run.
	stack := invoke(t, env, m, "__cxa_guard_acquire", uint64(guard))
	if stack[0] != 1 {
		t.Fatalf("first acquire returned %d, want 1", stack[0])
	}

	invoke(t, env, m, "__cxa_guard_release", uint64(guard))

	// Released guard: initialization already done.
	stack = invoke(t, env, m, "__cxa_guard_acquire", uint64(guard))
	if stack[0] != 0 {
		t.Errorf("acquire after release returned %d, want 0", stack[0])
	}

	// Aborted initialization gets retried.
	invoke(t, env, m, "__cxa_guard_abort", uint64(guard))
	stack = invoke(t, env, m, "__cxa_guard_acquire", uint64(guard))
	if stack[0] != 1 {
		t.Errorf("acquire after abort returned %d, want 1", stack[0])
	}
}

func TestCxaThrowTerminates(t *testing.T) {
	env := stubs.NewEnv()
	m := newTestMachine(t)

	if code := invokeTerminating(t, env, m, "__cxa_throw", 0x300, 0x400, 0); code != abortCode {
		t.Errorf("__cxa_throw exit code = %d, want %d", code, abortCode)
	}
}

func TestCxaAllocateExceptionReturnsScratch(t *testing.T) {
	env := stubs.NewEnv()
	m := newTestMachine(t)

	stack := invoke(t, env, m, "__cxa_allocate_exception", 48)
	if stack[0] != 0 {
		t.Errorf("__cxa_allocate_exception returned 0x%x, want 0", stack[0])
	}
}

func TestCxaCatchPassthrough(t *testing.T) {
	env := stubs.NewEnv()
	m := newTestMachine(t)

	stack := invoke(t, env, m, "__cxa_begin_catch", 0x5000)
	if stack[0] != 0x5000 {
		t.Errorf("__cxa_begin_catch returned 0x%x, want the exception pointer", stack[0])
	}
	invoke(t, env, m, "__cxa_end_catch")
	invoke(t, env, m, "__cxa_free_exception", 0x5000)
}

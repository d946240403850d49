package stubs

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/zboralski/loris/internal/wasm"
)

// Guest that imports env.g_mutex_trylock and env.mystery_import, then
// from _start stores trylock's result at address 0x10 and calls the
// mystery function. Lets tests watch a stub and a fallback fire on the
// same run.
var guestModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic + version

	// type section: ()->() and (i32)->(i32)
	0x01, 0x09, 0x02,
	0x60, 0x00, 0x00,
	0x60, 0x01, 0x7f, 0x01, 0x7f,

	// import section: env.g_mutex_trylock, env.mystery_import
	0x02, 0x2c, 0x02,
	0x03, 'e', 'n', 'v', 0x0f, 'g', '_', 'm', 'u', 't', 'e', 'x', '_', 't', 'r', 'y', 'l', 'o', 'c', 'k', 0x00, 0x01,
	0x03, 'e', 'n', 'v', 0x0e, 'm', 'y', 's', 't', 'e', 'r', 'y', '_', 'i', 'm', 'p', 'o', 'r', 't', 0x00, 0x01,

	// function section: one function of type 0
	0x03, 0x02, 0x01, 0x00,

	// memory section: 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section: "memory", "_start" (function index 2)
	0x07, 0x13, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x02,

	// code section:
	//   i32.const 16; i32.const 0; call 0; i32.store
	//   i32.const 0; call 1; drop; end
	0x0a, 0x12, 0x01,
	0x10, 0x00,
	0x41, 0x10,
	0x41, 0x00,
	0x10, 0x00,
	0x36, 0x02, 0x00,
	0x41, 0x00,
	0x10, 0x01,
	0x1a,
	0x0b,
}

// compileGuest compiles the fixture and returns the runtime plus the
// inspected module info Install consumes.
func compileGuest(t *testing.T) (wazero.Runtime, *wasm.Info) {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	compiled, err := rt.CompileModule(ctx, guestModule)
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	return rt, wasm.Inspect(compiled, "guest.wasm", int64(len(guestModule)))
}

// runGuest installs the registry's stubs, instantiates the guest, and
// runs _start. Returns the machine for memory assertions.
func runGuest(t *testing.T, reg *Registry, rt wazero.Runtime, info *wasm.Info, env *Env) *wasm.Machine {
	t.Helper()
	ctx := context.Background()

	if _, err := reg.Install(ctx, rt, env, info); err != nil {
		t.Fatalf("Install: %v", err)
	}

	mod, err := rt.InstantiateWithConfig(ctx, guestModule,
		wazero.NewModuleConfig().WithName("guest").WithStartFunctions())
	if err != nil {
		t.Fatalf("Instantiate guest: %v", err)
	}

	m := wasm.NewMachine(mod)
	if err := m.CallEntry(ctx, "_start"); err != nil {
		t.Fatalf("_start: %v", err)
	}
	return m
}

func trylockHook(c *Call) {
	c.SetDetail(FormatPtr("mutex", uint64(c.Arg(0))))
	c.ReturnBool(true)
}

func TestInstallRunsStubAndFallback(t *testing.T) {
	rt, info := compileGuest(t)

	reg := NewRegistry()
	reg.RegisterFunc("mutex", "g_mutex_trylock", SigArgsRet(1), trylockHook)

	type event struct{ category, name, detail string }
	var events []event
	reg.OnCall = func(category, name, detail string) {
		events = append(events, event{category, name, detail})
	}

	env := NewEnv()
	installed, err := reg.Install(context.Background(), rt, env, info)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if installed != 1 {
		t.Errorf("installed = %d, want 1 (mystery_import has no stub)", installed)
	}

	ctx := context.Background()
	mod, err := rt.InstantiateWithConfig(ctx, guestModule,
		wazero.NewModuleConfig().WithName("guest").WithStartFunctions())
	if err != nil {
		t.Fatalf("Instantiate guest: %v", err)
	}
	m := wasm.NewMachine(mod)
	if err := m.CallEntry(ctx, "_start"); err != nil {
		t.Fatalf("_start: %v", err)
	}

	// The guest stored trylock's TRUE at address 0x10.
	got, err := m.ReadU32(0x10)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if got != 1 {
		t.Errorf("guest saw trylock result %d, want 1", got)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %v", len(events), events)
	}
	if events[0].category != "mutex" || events[0].name != "g_mutex_trylock" {
		t.Errorf("first event = %s/%s, want mutex/g_mutex_trylock", events[0].category, events[0].name)
	}
	if events[0].detail != "mutex=0" {
		t.Errorf("first event detail = %q, want %q", events[0].detail, "mutex=0")
	}
	if events[1].category != "fallback" || events[1].name != "mystery_import" {
		t.Errorf("second event = %s/%s, want fallback/mystery_import", events[1].category, events[1].name)
	}

	if env.Calls() != 2 {
		t.Errorf("env.Calls() = %d, want 2", env.Calls())
	}
}

func TestInstallSignatureMismatchFallsBack(t *testing.T) {
	rt, info := compileGuest(t)

	// Registered as void, but the guest imports (i32)->(i32).
	reg := NewRegistry()
	reg.RegisterFunc("mutex", "g_mutex_trylock", SigArgs(1), func(c *Call) {})

	var categories []string
	reg.OnCall = func(category, name, detail string) {
		categories = append(categories, category)
	}

	m := runGuest(t, reg, rt, info, NewEnv())

	// Fallback zeroes the result, so the guest stored 0.
	got, err := m.ReadU32(0x10)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if got != 0 {
		t.Errorf("guest saw %d, want 0 from fallback", got)
	}

	for _, cat := range categories {
		if cat != "fallback" {
			t.Errorf("unexpected category %q, want only fallbacks", cat)
		}
	}
}

func TestInstallDisabledCategory(t *testing.T) {
	rt, info := compileGuest(t)

	reg := NewRegistry()
	reg.RegisterFunc("mutex", "g_mutex_trylock", SigArgsRet(1), trylockHook)

	Disabled["mutex"] = true
	defer delete(Disabled, "mutex")

	m := runGuest(t, reg, rt, info, NewEnv())

	got, err := m.ReadU32(0x10)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if got != 0 {
		t.Errorf("disabled stub still answered: guest saw %d, want 0", got)
	}
}

func TestInterceptOverridesHook(t *testing.T) {
	rt, info := compileGuest(t)

	reg := NewRegistry()
	reg.RegisterFunc("mutex", "g_mutex_trylock", SigArgsRet(1), trylockHook)

	// Interceptor forces FALSE; the hook that would say TRUE never runs.
	reg.Intercept = func(def *StubDef, call *Call) bool {
		if def.Name != "g_mutex_trylock" {
			return false
		}
		call.ReturnBool(false)
		call.SetDetail("intercepted")
		return true
	}

	var details []string
	reg.OnCall = func(category, name, detail string) {
		if name == "g_mutex_trylock" {
			details = append(details, detail)
		}
	}

	m := runGuest(t, reg, rt, info, NewEnv())

	got, err := m.ReadU32(0x10)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if got != 0 {
		t.Errorf("guest saw %d, want intercepted 0", got)
	}
	if len(details) != 1 || details[0] != "intercepted" {
		t.Errorf("details = %v, want [intercepted]", details)
	}
}

func TestDetectorActivatesOncePerEnv(t *testing.T) {
	rt, info := compileGuest(t)

	reg := NewRegistry()
	activations := 0
	reg.RegisterDetector(Detector{
		Name:     "test-detector",
		Patterns: []string{"g_mutex_*"},
		Activate: func(r *Registry, env *Env, mod *wasm.Info) int {
			activations++
			r.RegisterFunc("mutex", "g_mutex_trylock", SigArgsRet(1), trylockHook)
			return 1
		},
	})

	env := NewEnv()
	if _, err := reg.Install(context.Background(), rt, env, info); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if activations != 1 {
		t.Fatalf("activations = %d, want 1", activations)
	}
	if reg.Lookup("g_mutex_trylock") == nil {
		t.Error("detector-registered stub did not resolve")
	}

	// Same env: the detector stays activated.
	rt2, info2 := compileGuest(t)
	if _, err := reg.Install(context.Background(), rt2, env, info2); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if activations != 1 {
		t.Errorf("activations after same-env reinstall = %d, want 1", activations)
	}

	// Fresh env: detector state resets.
	rt3, info3 := compileGuest(t)
	if _, err := reg.Install(context.Background(), rt3, NewEnv(), info3); err != nil {
		t.Fatalf("third Install: %v", err)
	}
	if activations != 2 {
		t.Errorf("activations after fresh env = %d, want 2", activations)
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"g_mutex_lock", "g_mutex_*", true},
		{"g_mutex_lock", "g_cond_*", false},
		{"_g_mutex_lock", "_g_mutex_*", true},
		{"emscripten_futex_wait", "*futex*", true},
		{"pthread_create", "pthread_create", true},
		{"__pthread_create_internal", "pthread_create", true},
		{"wasi_thread_start", "*_thread_start", true},
		{"g_cond_wait", "*_thread_start", false},
	}
	for _, tc := range tests {
		if got := matchPattern(tc.name, tc.pattern); got != tc.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tc.name, tc.pattern, got, tc.want)
		}
	}
}

func TestRegisterAliases(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("mutex", "g_mutex_trylock", SigArgsRet(1), trylockHook, "_g_mutex_trylock")

	canonical := reg.Lookup("g_mutex_trylock")
	alias := reg.Lookup("_g_mutex_trylock")
	if canonical == nil || alias == nil {
		t.Fatal("alias or canonical name did not resolve")
	}
	if canonical != alias {
		t.Error("alias resolved to a different definition")
	}

	// List reports each definition once despite the alias entry.
	if got := len(reg.List()); got != 1 {
		t.Errorf("List() returned %d names, want 1", got)
	}
	if got := reg.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2 map entries", got)
	}
}

func TestSignatureMatches(t *testing.T) {
	sig := SigArgsRet(1)
	if !sig.matches(wasm.Import{Params: sig.Params, Results: sig.Results}) {
		t.Error("identical signature did not match")
	}
	if sig.matches(wasm.Import{Params: SigArgs(2).Params}) {
		t.Error("mismatched signature matched")
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatHex(0); got != "0" {
		t.Errorf("FormatHex(0) = %q", got)
	}
	if got := FormatHex(0x1020); got != "0x1020" {
		t.Errorf("FormatHex(0x1020) = %q", got)
	}
	if got := FormatPtr("mutex", 0x40); got != "mutex=0x40" {
		t.Errorf("FormatPtr = %q", got)
	}
	if got := FormatPtrPair("cond", 0x10, "mutex", 0x20); got != "cond=0x10 mutex=0x20" {
		t.Errorf("FormatPtrPair = %q", got)
	}
	if got := FormatPtrPair("cond", 0x10, "", 0); got != "cond=0x10" {
		t.Errorf("FormatPtrPair with empty second = %q", got)
	}
}

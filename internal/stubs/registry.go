// Package stubs provides a registry for self-registering host-function
// implementations. Each stub package uses init() to register its hooks,
// enabling clean separation of concerns.
//
// Features:
//   - Self-registering stubs via init()
//   - Detectors that activate on import-name matches (e.g., legacy underscore naming)
//   - Fallback host functions for imports no stub matches
package stubs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	glog "github.com/zboralski/loris/internal/log"
	"github.com/zboralski/loris/internal/trace"
	"github.com/zboralski/loris/internal/wasm"
)

// HookFunc is the signature for stub hook functions. The hook reads
// arguments and writes results through the Call.
type HookFunc func(call *Call)

// StubDef defines a stub with its symbol name, wasm signature, and
// hook function.
type StubDef struct {
	Name     string   // Import name (e.g., "g_mutex_lock")
	Aliases  []string // Alternative import names
	Hook     HookFunc
	Category string // For logging: "mutex", "cond", "private", etc.
	Sig      Signature
}

// DetectorFunc is called when a detector's pattern matches.
// It receives the registry, the per-instance Env, and the module info.
// Returns the number of stubs it registered.
type DetectorFunc func(r *Registry, env *Env, mod *wasm.Info) int

// Detector defines a pattern-based activation system.
// Detectors are triggered when certain import names are found in the
// module being installed.
type Detector struct {
	Name        string       // Detector name (e.g., "legacy-underscore")
	Patterns    []string     // Import-name patterns to match (any match triggers)
	Activate    DetectorFunc // Called when pattern matches
	Description string       // Human-readable description
}

// Registry holds all registered stub definitions.
type Registry struct {
	mu    sync.RWMutex
	stubs map[string]*StubDef // import name -> stub definition

	// Detectors
	detectorsMu sync.RWMutex
	detectors   []*Detector
	activated   map[string]bool // Track which detectors have been activated

	// Callbacks
	OnCall    func(category, name, detail string)
	Intercept func(def *StubDef, call *Call) bool // pre-hook; true means handled

	// Env reference (set during Install)
	env *Env
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new stub registry.
func NewRegistry() *Registry {
	return &Registry{
		stubs:     make(map[string]*StubDef),
		detectors: make([]*Detector, 0),
		activated: make(map[string]bool),
	}
}

// Register adds a stub definition to the registry.
// Called from init() functions in stub packages.
func (r *Registry) Register(def StubDef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stubs[def.Name] = &def
	for _, alias := range def.Aliases {
		r.stubs[alias] = &def
	}

	if Debug && glog.L != nil {
		glog.L.Debug("registered",
			zap.String("cat", def.Category),
			zap.String("fn", def.Name),
			zap.Strings("aliases", def.Aliases),
		)
	}
}

// RegisterFunc is a convenience method to register a simple stub.
func (r *Registry) RegisterFunc(category, name string, sig Signature, hook HookFunc, aliases ...string) {
	r.Register(StubDef{
		Name:     name,
		Aliases:  aliases,
		Hook:     hook,
		Category: category,
		Sig:      sig,
	})
}

// RegisterDetector adds a detector that activates on pattern match.
// Detectors are checked during Install() and activated if any pattern matches.
func (r *Registry) RegisterDetector(d Detector) {
	r.detectorsMu.Lock()
	defer r.detectorsMu.Unlock()
	r.detectors = append(r.detectors, &d)

	if Debug && glog.L != nil {
		glog.L.DetectorRegister(d.Name, d.Description, d.Patterns)
	}
}

// Lookup returns the stub definition an import name would resolve to,
// nil if none is registered.
func (r *Registry) Lookup(name string) *StubDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stubs[name]
}

// checkDetectors runs pattern matching against the module's imports
// and activates matching detectors.
func (r *Registry) checkDetectors(env *Env, mod *wasm.Info) int {
	r.detectorsMu.Lock()
	defer r.detectorsMu.Unlock()

	registered := 0

	for _, det := range r.detectors {
		// Skip already activated detectors
		if r.activated[det.Name] {
			continue
		}

		matched := false
		for _, imp := range mod.Imports {
			for _, pattern := range det.Patterns {
				if matchPattern(imp.Name, pattern) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}

		if matched {
			if glog.L != nil {
				glog.L.DetectorActivate(det.Name, det.Description)
			}
			r.activated[det.Name] = true
			registered += det.Activate(r, env, mod)
		}
	}

	return registered
}

// matchPattern checks if an import name matches a pattern.
// Patterns can use * for wildcard and can be substring matches.
func matchPattern(name, pattern string) bool {
	if strings.Contains(pattern, "*") {
		// Convert glob to simple prefix/suffix matching
		if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
			// *foo* - contains
			return strings.Contains(name, pattern[1:len(pattern)-1])
		} else if strings.HasPrefix(pattern, "*") {
			// *foo - suffix
			return strings.HasSuffix(name, pattern[1:])
		} else if strings.HasSuffix(pattern, "*") {
			// foo* - prefix
			return strings.HasPrefix(name, pattern[:len(pattern)-1])
		}
	}
	// Exact match or substring
	return name == pattern || strings.Contains(name, pattern)
}

// Install builds and instantiates the "env" host module for a guest:
// every env function import matched by a registered stub (by name or
// alias) is exported as that stub's host function, and when
// InstallFallbacks is true every unmatched env import gets a
// zero-returning host function with the import's own signature, so
// instantiation never fails on a missing symbol.
//
// Also runs pattern-based detectors first; they may register further
// stubs (such as underscore aliases) before matching happens.
// Returns the number of real stubs installed.
func (r *Registry) Install(ctx context.Context, rt wazero.Runtime, env *Env, mod *wasm.Info) (int, error) {
	r.mu.Lock()
	fresh := r.env != env
	r.env = env
	r.mu.Unlock()

	// Reset activated detectors when installing for a new instance.
	// This allows running multiple modules with fresh detector state.
	if fresh {
		r.detectorsMu.Lock()
		r.activated = make(map[string]bool)
		r.detectorsMu.Unlock()
	}

	// Detectors run before stub matching so anything they register is
	// visible to the passes below.
	r.checkDetectors(env, mod)

	r.mu.RLock()
	defer r.mu.RUnlock()

	builder := rt.NewHostModuleBuilder("env")
	installed := 0
	seen := make(map[string]bool)

	for _, imp := range mod.EnvImports() {
		if seen[imp.Name] {
			continue
		}
		seen[imp.Name] = true

		def := r.stubs[imp.Name]
		switch {
		case def == nil:
			// No stub registered for this import.
		case Disabled[def.Category]:
			if Debug && glog.L != nil {
				glog.L.Debug("disabled", zap.String("cat", def.Category), glog.Fn(imp.Name))
			}
			def = nil
		case !def.Sig.matches(imp):
			// A stub whose signature disagrees with the import would
			// fail instantiation; fall back instead.
			if glog.L != nil {
				glog.L.Warn("signature mismatch",
					zap.String("cat", def.Category),
					glog.Fn(imp.Name),
				)
			}
			def = nil
		}

		if def != nil {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(r.hostFunc(env, def), def.Sig.Params, def.Sig.Results).
				Export(imp.Name)
			installed++
			if Debug && glog.L != nil {
				glog.L.StubInstall(def.Category, imp.Name, "import")
			}
			continue
		}

		if !InstallFallbacks {
			if glog.L != nil {
				glog.L.Warn("unsatisfied import", glog.Fn(imp.Name))
			}
			continue
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(r.fallbackFunc(imp.Name), imp.Params, imp.Results).
			Export(imp.Name)
		if Debug && glog.L != nil {
			glog.L.Debug("installed fallback", glog.Fn(imp.Name))
		}
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return installed, fmt.Errorf("instantiate env host module: %w", err)
	}
	return installed, nil
}

// hostFunc wraps a stub definition as a wazero host function. The
// wrapper builds the Call, gives an interceptor first claim, runs the
// hook, and reports the call through Log.
func (r *Registry) hostFunc(env *Env, def *StubDef) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		call := NewCall(env, wasm.NewMachine(mod), def, stack)

		r.mu.RLock()
		intercept := r.Intercept
		r.mu.RUnlock()

		if intercept == nil || !intercept(def, call) {
			def.Hook(call)
		}
		r.Log(def.Category, def.Name, call.Detail())
	})
}

// fallbackFunc builds a host function for an import no stub matched.
// The stack holds the parameters on entry; zeroing it makes any
// declared results read as 0 instead of echoing the first argument.
func (r *Registry) fallbackFunc(name string) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		for i := range stack {
			stack[i] = 0
		}
		if glog.L != nil {
			glog.L.StubFallback(name)
		}
		r.Log("fallback", name, "")
	})
}

// Env returns the Env of the current installation.
func (r *Registry) Env() *Env {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.env
}

// Log calls the OnCall callback and logs via zap.
// This is how every stub call, hooked or fallback, gets reported.
func (r *Registry) Log(category, name, detail string) {
	r.mu.RLock()
	cb := r.OnCall
	env := r.env
	r.mu.RUnlock()

	// Details can carry guest-controlled bytes; clean them before they
	// reach callbacks, terminals, or storage.
	clean := trace.Redact(detail)

	var seq uint64
	if env != nil {
		seq = env.NextSeq()
	}

	if cb != nil {
		cb(category, name, clean)
	}

	if glog.L != nil {
		glog.L.Trace(seq, category, name, clean)
	}
}

// Count returns the number of registered stubs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stubs)
}

// List returns all registered stub names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stubs))
	seen := make(map[string]bool)
	for _, def := range r.stubs {
		if seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		names = append(names, def.Name)
	}
	return names
}

// Debug enables verbose logging during installation.
var Debug = false

// InstallFallbacks enables fallback host functions for unmatched env
// imports. When false, an import without a stub stays unsatisfied and
// instantiation fails, which is sometimes what you want to see.
var InstallFallbacks = true

// Disabled marks stub categories Install skips. Imports whose stub is
// disabled get fallbacks instead.
var Disabled = make(map[string]bool)

// Convenience functions for the default registry

// Register adds a stub to the default registry.
func Register(def StubDef) {
	DefaultRegistry.Register(def)
}

// RegisterFunc adds a simple stub to the default registry.
func RegisterFunc(category, name string, sig Signature, hook HookFunc, aliases ...string) {
	DefaultRegistry.RegisterFunc(category, name, sig, hook, aliases...)
}

// Install builds the env host module from the default registry.
func Install(ctx context.Context, rt wazero.Runtime, env *Env, mod *wasm.Info) (int, error) {
	return DefaultRegistry.Install(ctx, rt, env, mod)
}

// RegisterDetector adds a detector to the default registry.
func RegisterDetector(d Detector) {
	DefaultRegistry.RegisterDetector(d)
}

// Helper functions for stubs

// FormatHex formats a value as hex string.
func FormatHex(v uint64) string {
	if v == 0 {
		return "0"
	}
	return fmt.Sprintf("0x%x", v)
}

// FormatPtr formats name=value pairs.
func FormatPtr(name string, val uint64) string {
	return name + "=" + FormatHex(val)
}

// FormatPtrPair formats two name=value pairs.
func FormatPtrPair(name1 string, val1 uint64, name2 string, val2 uint64) string {
	if name2 == "" {
		return FormatPtr(name1, val1)
	}
	return FormatPtr(name1, val1) + " " + FormatPtr(name2, val2)
}

package wasm

import (
	"regexp"
)

// ThreadScan identifies imports that indicate a module was built
// expecting real threads. A single-threaded host can still satisfy
// such a module's threading imports with stand-ins, but thread spawns
// will silently fail, so the scan result is surfaced as a warning
// rather than an error.
type ThreadScan struct {
	patterns []*regexp.Regexp
}

// NewThreadScan creates a scanner with the known thread-capability
// import patterns: pthreads compiled to wasm, the wasi-threads
// proposal, and Emscripten's pthread runtime plumbing.
func NewThreadScan() *ThreadScan {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`^pthread_create$`),
		regexp.MustCompile(`^__pthread_create`),
		regexp.MustCompile(`^thread-spawn$`), // wasi:threads
		regexp.MustCompile(`^wasi_thread_start$`),
		regexp.MustCompile(`emscripten_thread`), // _emscripten_thread_mailbox_await and friends
		regexp.MustCompile(`emscripten_futex_`), // futex wait/wake need shared memory
		regexp.MustCompile(`emscripten_check_mailbox`),
	}
	return &ThreadScan{patterns: patterns}
}

// Match reports whether a single import name looks thread-related.
func (s *ThreadScan) Match(name string) bool {
	for _, pattern := range s.patterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// Scan returns the thread-related import names of a module, deduped,
// in import order.
func (s *ThreadScan) Scan(imports []Import) []string {
	var out []string
	seen := make(map[string]bool)
	for _, imp := range imports {
		if seen[imp.Name] || !s.Match(imp.Name) {
			continue
		}
		seen[imp.Name] = true
		out = append(out, imp.Name)
	}
	return out
}

// Threaded reports whether the module shows any sign of a threaded
// build: thread-related imports, imported (host-shared) memory, or the
// atomics feature recorded at compile time.
func (info *Info) Threaded() bool {
	if len(NewThreadScan().Scan(info.Imports)) > 0 {
		return true
	}
	if info.ImportsMemory() {
		return true
	}
	return info.HasFeature("atomics") || info.HasFeature("shared-mem")
}

package gthread

import (
	"strings"

	glog "github.com/zboralski/loris/internal/log"
	"github.com/zboralski/loris/internal/stubs"
	"github.com/zboralski/loris/internal/wasm"
)

func init() {
	stubs.RegisterDetector(stubs.Detector{
		Name: "legacy-underscore",
		Patterns: []string{
			"_g_mutex_*",
			"_g_rec_mutex_*",
			"_g_rw_lock_*",
			"_g_cond_*",
			"_g_private_*",
			"_g_system_thread_*",
			"_g_thread_*",
		},
		Activate:    activateUnderscoreAliases,
		Description: "Underscore-prefixed C symbols from fastcomp-era Emscripten output",
	})

	stubs.RegisterDetector(stubs.Detector{
		Name: "threaded-build",
		Patterns: []string{
			"pthread_create",
			"__pthread_create*",
			"thread-spawn",
			"wasi_thread_start",
			"*emscripten_thread*",
			"*emscripten_futex*",
		},
		Activate:    warnThreadedBuild,
		Description: "Real-thread plumbing in the import section",
	})
}

// activateUnderscoreAliases registers a _-prefixed alias for every
// known stub so both symbol naming schemes resolve to the same hooks.
func activateUnderscoreAliases(r *stubs.Registry, env *stubs.Env, mod *wasm.Info) int {
	installed := 0
	for _, name := range r.List() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		def := r.Lookup(name)
		if def == nil || r.Lookup("_"+name) != nil {
			continue
		}
		r.Register(stubs.StubDef{
			Name:     "_" + name,
			Category: def.Category,
			Sig:      def.Sig,
			Hook:     def.Hook,
		})
		installed++
	}
	return installed
}

// warnThreadedBuild flags modules whose imports ask for real threads.
// Nothing extra is installed: the thread stubs still answer, but every
// spawn comes back as a failure the guest has to tolerate.
func warnThreadedBuild(r *stubs.Registry, env *stubs.Env, mod *wasm.Info) int {
	hits := wasm.NewThreadScan().Scan(mod.Imports)
	if len(hits) > 0 && glog.L != nil {
		glog.L.Warn("module expects real threads; spawns will fail",
			glog.Fn(strings.Join(hits, ", ")))
	}
	return 0
}

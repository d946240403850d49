package wasm

import (
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Import describes one function import of a compiled module.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// MemoryInfo describes a memory definition, imported or local.
type MemoryInfo struct {
	Imported bool
	Module   string // import module name when Imported
	Name     string // import name, or first export name
	MinPages uint32
	MaxPages uint32
	HasMax   bool
}

// Info contains parsed module metadata: everything needed to decide
// what to stub before instantiation.
type Info struct {
	Path      string
	Name      string // module name from the name section, often empty
	Size      int64  // binary size in bytes
	Imports   []Import
	Exports   []string // exported function names
	Memories  []MemoryInfo
	Producers []Producer // from the "producers" custom section
	Features  []Feature  // from the "target_features" custom section
}

// Inspect summarizes a compiled module. The custom-section fields are
// only populated when the module was compiled with a runtime config
// that retains custom sections.
func Inspect(compiled wazero.CompiledModule, path string, size int64) *Info {
	info := &Info{
		Path: path,
		Name: compiled.Name(),
		Size: size,
	}

	for _, fd := range compiled.ImportedFunctions() {
		mod, name, ok := fd.Import()
		if !ok {
			continue
		}
		info.Imports = append(info.Imports, Import{
			Module:  mod,
			Name:    name,
			Params:  fd.ParamTypes(),
			Results: fd.ResultTypes(),
		})
	}

	for name := range compiled.ExportedFunctions() {
		info.Exports = append(info.Exports, name)
	}

	for _, md := range compiled.ImportedMemories() {
		mod, name, _ := md.Import()
		mi := MemoryInfo{Imported: true, Module: mod, Name: name, MinPages: md.Min()}
		mi.MaxPages, mi.HasMax = md.Max()
		info.Memories = append(info.Memories, mi)
	}
	for name, md := range compiled.ExportedMemories() {
		mi := MemoryInfo{Name: name, MinPages: md.Min()}
		mi.MaxPages, mi.HasMax = md.Max()
		info.Memories = append(info.Memories, mi)
	}

	for _, sec := range compiled.CustomSections() {
		switch sec.Name() {
		case "producers":
			info.Producers = parseProducers(sec.Data())
		case "target_features":
			info.Features = parseTargetFeatures(sec.Data())
		}
	}

	return info
}

// EnvImports returns the function imports from the "env" module, the
// namespace Emscripten routes C symbols through.
func (info *Info) EnvImports() []Import {
	var out []Import
	for _, imp := range info.Imports {
		if imp.Module == "env" {
			out = append(out, imp)
		}
	}
	return out
}

// HasImport reports whether any module imports a function by this name.
func (info *Info) HasImport(name string) bool {
	for _, imp := range info.Imports {
		if imp.Name == name {
			return true
		}
	}
	return false
}

// HasExport reports whether the module exports a function by this name.
func (info *Info) HasExport(name string) bool {
	for _, name2 := range info.Exports {
		if name2 == name {
			return true
		}
	}
	return false
}

// ImportsMemory reports whether the module expects a host-provided
// memory instead of defining its own.
func (info *Info) ImportsMemory() bool {
	for _, m := range info.Memories {
		if m.Imported {
			return true
		}
	}
	return false
}

// FindEntryPoint finds the entry export to invoke.
// Priority:
// 1. Preferred entry (user-specified)
// 2. _start (WASI command / standalone wasm)
// 3. main
// 4. __main_argc_argv (Emscripten's internal main alias)
// Returns "" if none are exported.
func (info *Info) FindEntryPoint(preferredEntry string) string {
	candidates := []string{"_start", "main", "__main_argc_argv"}
	if preferredEntry != "" {
		candidates = append([]string{preferredEntry}, candidates...)
	}
	for _, c := range candidates {
		if info.HasExport(c) {
			return c
		}
	}
	return ""
}

// Package wasm provides the wazero-backed substrate loris runs guest
// modules on: typed guest-memory access, compiled-module inspection,
// and entry-point invocation.
package wasm

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero/api"
)

// Guest strings are read with a hard cap so a missing terminator in
// guest memory cannot turn into an unbounded scan.
const maxCStringLen = 4096

// Machine wraps an instantiated module with typed access to its linear
// memory. All guest pointers are wasm32 addresses. A Machine built from
// a module with no memory (a host module, or a guest that exports none)
// returns errors from every memory accessor rather than panicking.
type Machine struct {
	mod api.Module
	mem api.Memory
}

// NewMachine creates a Machine for an instantiated module.
func NewMachine(mod api.Module) *Machine {
	m := &Machine{mod: mod}
	if mod != nil {
		m.mem = mod.Memory()
	}
	return m
}

// Module returns the underlying instantiated module, nil if absent.
func (m *Machine) Module() api.Module {
	return m.mod
}

// Memory returns the module's linear memory, nil if absent.
func (m *Machine) Memory() api.Memory {
	return m.mem
}

// MemSize returns the current size of linear memory in bytes.
func (m *Machine) MemSize() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// ReadU32 reads a little-endian u32 from guest memory.
func (m *Machine) ReadU32(addr uint32) (uint32, error) {
	if m.mem == nil {
		return 0, fmt.Errorf("read u32 at 0x%x: no memory", addr)
	}
	v, ok := m.mem.ReadUint32Le(addr)
	if !ok {
		return 0, fmt.Errorf("read u32 at 0x%x: out of range", addr)
	}
	return v, nil
}

// WriteU32 writes a little-endian u32 to guest memory.
func (m *Machine) WriteU32(addr uint32, v uint32) error {
	if m.mem == nil {
		return fmt.Errorf("write u32 at 0x%x: no memory", addr)
	}
	if !m.mem.WriteUint32Le(addr, v) {
		return fmt.Errorf("write u32 at 0x%x: out of range", addr)
	}
	return nil
}

// ReadU64 reads a little-endian u64 from guest memory.
func (m *Machine) ReadU64(addr uint32) (uint64, error) {
	if m.mem == nil {
		return 0, fmt.Errorf("read u64 at 0x%x: no memory", addr)
	}
	v, ok := m.mem.ReadUint64Le(addr)
	if !ok {
		return 0, fmt.Errorf("read u64 at 0x%x: out of range", addr)
	}
	return v, nil
}

// WriteU64 writes a little-endian u64 to guest memory.
func (m *Machine) WriteU64(addr uint32, v uint64) error {
	if m.mem == nil {
		return fmt.Errorf("write u64 at 0x%x: no memory", addr)
	}
	if !m.mem.WriteUint64Le(addr, v) {
		return fmt.Errorf("write u64 at 0x%x: out of range", addr)
	}
	return nil
}

// ReadBytes copies n bytes of guest memory starting at addr.
func (m *Machine) ReadBytes(addr, n uint32) ([]byte, error) {
	if m.mem == nil {
		return nil, fmt.Errorf("read %d bytes at 0x%x: no memory", n, addr)
	}
	b, ok := m.mem.Read(addr, n)
	if !ok {
		return nil, fmt.Errorf("read %d bytes at 0x%x: out of range", n, addr)
	}
	// Read returns a view into linear memory; copy so callers cannot be
	// surprised by later guest writes.
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// WriteBytes copies b into guest memory at addr.
func (m *Machine) WriteBytes(addr uint32, b []byte) error {
	if m.mem == nil {
		return fmt.Errorf("write %d bytes at 0x%x: no memory", len(b), addr)
	}
	if !m.mem.Write(addr, b) {
		return fmt.Errorf("write %d bytes at 0x%x: out of range", len(b), addr)
	}
	return nil
}

// ReadCString reads a NUL-terminated string from guest memory, capped
// at maxCStringLen bytes.
func (m *Machine) ReadCString(addr uint32) (string, error) {
	if m.mem == nil {
		return "", fmt.Errorf("read string at 0x%x: no memory", addr)
	}
	for n := uint32(0); n < maxCStringLen; n++ {
		b, ok := m.mem.ReadByte(addr + n)
		if !ok {
			return "", fmt.Errorf("read string at 0x%x: out of range", addr+n)
		}
		if b == 0 {
			view, _ := m.mem.Read(addr, n)
			return string(view), nil
		}
	}
	return "", fmt.Errorf("read string at 0x%x: no terminator within %d bytes", addr, maxCStringLen)
}

// CallEntry invokes an exported entry function by name. Emscripten
// main takes (argc, argv) while standalone _start takes nothing; any
// declared parameters are passed as zero.
func (m *Machine) CallEntry(ctx context.Context, name string) error {
	if m.mod == nil {
		return fmt.Errorf("call %s: no module", name)
	}
	fn := m.mod.ExportedFunction(name)
	if fn == nil {
		return fmt.Errorf("no exported function %q", name)
	}
	args := make([]uint64, len(fn.Definition().ParamTypes()))
	if _, err := fn.Call(ctx, args...); err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	return nil
}

// Load reads a wasm binary from disk and verifies its magic.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(data) < 8 || !bytes.Equal(data[:4], []byte("\x00asm")) {
		return nil, fmt.Errorf("load %s: not a wasm binary", path)
	}
	return data, nil
}

package wasm

import (
	"context"
	"os"
	"testing"

	"github.com/tetratelabs/wazero"
)

// Minimal wasm module: one memory of one page, exported as "memory".
var memoryTestModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic "\0asm"
	0x01, 0x00, 0x00, 0x00, // version 1
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: min 1 page
	0x07, 0x0a, 0x01, // export section: 1 export
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // "memory" -> mem 0
}

// Minimal wasm module exporting an empty "_start" function.
var startTestModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic "\0asm"
	0x01, 0x00, 0x00, 0x00, // version 1
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section: ()->()
	0x03, 0x02, 0x01, 0x00, // function section: 1 func, type 0
	0x07, 0x0a, 0x01, // export section: 1 export
	0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00, // "_start" -> func 0
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b, // code section: empty body
}

func newTestMachine(t *testing.T) (*Machine, func()) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	mod, err := r.Instantiate(ctx, memoryTestModule)
	if err != nil {
		t.Fatalf("Failed to instantiate test module: %v", err)
	}
	return NewMachine(mod), func() { r.Close(ctx) }
}

func TestMemoryOperations(t *testing.T) {
	m, done := newTestMachine(t)
	defer done()

	// Test U32
	addr := uint32(0x100)
	if err := m.WriteU32(addr, 0xCAFEBABE); err != nil {
		t.Fatalf("Failed to write U32: %v", err)
	}
	v32, err := m.ReadU32(addr)
	if err != nil {
		t.Fatalf("Failed to read U32: %v", err)
	}
	if v32 != 0xCAFEBABE {
		t.Errorf("U32 mismatch: wrote 0x%x, read 0x%x", 0xCAFEBABE, v32)
	}

	// Test U64
	val := uint64(0x123456789ABCDEF0)
	if err := m.WriteU64(addr+8, val); err != nil {
		t.Fatalf("Failed to write U64: %v", err)
	}
	v64, err := m.ReadU64(addr + 8)
	if err != nil {
		t.Fatalf("Failed to read U64: %v", err)
	}
	if v64 != val {
		t.Errorf("U64 mismatch: wrote 0x%x, read 0x%x", val, v64)
	}

	// Test string
	strAddr := uint32(0x200)
	testStr := "Hello, loris!"
	if err := m.WriteBytes(strAddr, append([]byte(testStr), 0)); err != nil {
		t.Fatalf("Failed to write string: %v", err)
	}
	readStr, err := m.ReadCString(strAddr)
	if err != nil {
		t.Fatalf("Failed to read string: %v", err)
	}
	if readStr != testStr {
		t.Errorf("String mismatch: wrote %q, read %q", testStr, readStr)
	}
}

func TestMemoryBounds(t *testing.T) {
	m, done := newTestMachine(t)
	defer done()

	// One page is 64KiB; past that every accessor must error.
	past := uint32(0x10000)
	if _, err := m.ReadU32(past); err == nil {
		t.Error("Expected out of range error reading past memory end")
	}
	if err := m.WriteU64(past-4, 0); err == nil {
		t.Error("Expected out of range error writing across memory end")
	}
	// Fill the tail so no NUL terminator exists before the boundary.
	if err := m.WriteBytes(past-8, []byte("AAAAAAAA")); err != nil {
		t.Fatalf("Failed to write tail bytes: %v", err)
	}
	if _, err := m.ReadCString(past - 8); err == nil {
		t.Error("Expected error reading unterminated string at memory end")
	}
	if m.MemSize() != 0x10000 {
		t.Errorf("Expected 64KiB memory, got %d", m.MemSize())
	}
}

func TestMachineWithoutMemory(t *testing.T) {
	m := NewMachine(nil)
	if _, err := m.ReadU32(0); err == nil {
		t.Error("Expected error reading from machine with no memory")
	}
	if err := m.WriteBytes(0, []byte{1}); err == nil {
		t.Error("Expected error writing to machine with no memory")
	}
	if m.MemSize() != 0 {
		t.Errorf("Expected zero size, got %d", m.MemSize())
	}
}

func TestCallEntry(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	// Defer start so CallEntry drives it explicitly.
	mod, err := r.InstantiateWithConfig(ctx, startTestModule,
		wazero.NewModuleConfig().WithStartFunctions())
	if err != nil {
		t.Fatalf("Failed to instantiate test module: %v", err)
	}

	m := NewMachine(mod)
	if err := m.CallEntry(ctx, "_start"); err != nil {
		t.Errorf("CallEntry(_start) failed: %v", err)
	}
	if err := m.CallEntry(ctx, "missing"); err == nil {
		t.Error("Expected error calling missing export")
	}
}

func TestLoadRejectsNonWasm(t *testing.T) {
	path := t.TempDir() + "/not-wasm.bin"
	if err := os.WriteFile(path, []byte("\x7fELF junk"), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error loading non-wasm file")
	}

	wasmPath := t.TempDir() + "/ok.wasm"
	if err := os.WriteFile(wasmPath, memoryTestModule, 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	data, err := Load(wasmPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(data) != len(memoryTestModule) {
		t.Errorf("Expected %d bytes, got %d", len(memoryTestModule), len(data))
	}
}

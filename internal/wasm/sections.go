package wasm

// Parsers for the tool-convention custom sections toolchains leave in
// wasm binaries. Emscripten and clang record the producing tools in
// "producers" and the feature set the module was compiled against in
// "target_features"; the latter is how a threaded build announces
// atomics and shared memory without loris guessing from import names.

// Producer is one recorded value of the "producers" custom section,
// flattened to (field, name, version). Field is one of "language",
// "processed-by", or "sdk".
type Producer struct {
	Field   string
	Name    string
	Version string
}

// Feature is one entry of the "target_features" custom section.
// Prefix is '+' for a feature the module uses and '-' for one it
// declares disallowed.
type Feature struct {
	Prefix byte
	Name   string
}

// HasFeature reports whether the module declares it uses the named
// feature ('+' prefix).
func (info *Info) HasFeature(name string) bool {
	for _, f := range info.Features {
		if f.Prefix == '+' && f.Name == name {
			return true
		}
	}
	return false
}

// uvarint decodes a LEB128 u32 and returns the value and the number of
// bytes consumed, 0 on malformed input.
func uvarint(b []byte) (uint32, int) {
	var x uint32
	var s uint
	for i, c := range b {
		if c < 0x80 {
			if s >= 32 {
				return 0, 0
			}
			return x | uint32(c)<<s, i + 1
		}
		x |= uint32(c&0x7f) << s
		s += 7
		if s >= 35 {
			return 0, 0
		}
	}
	return 0, 0
}

// readName decodes a length-prefixed name and returns it with the
// total bytes consumed, 0 on malformed input.
func readName(b []byte) (string, int) {
	n, sz := uvarint(b)
	if sz == 0 || uint32(len(b)-sz) < n {
		return "", 0
	}
	return string(b[sz : sz+int(n)]), sz + int(n)
}

// parseProducers decodes a "producers" custom section payload.
// Layout: field_count, then per field: name, value_count, then per
// value: name, version. Malformed input yields the entries parsed so
// far; these sections are advisory and never worth failing a load.
func parseProducers(data []byte) []Producer {
	var out []Producer
	fields, n := uvarint(data)
	if n == 0 {
		return nil
	}
	pos := n
	for i := uint32(0); i < fields && pos < len(data); i++ {
		field, n := readName(data[pos:])
		if n == 0 {
			return out
		}
		pos += n
		values, n := uvarint(data[pos:])
		if n == 0 {
			return out
		}
		pos += n
		for j := uint32(0); j < values && pos < len(data); j++ {
			name, n := readName(data[pos:])
			if n == 0 {
				return out
			}
			pos += n
			version, n := readName(data[pos:])
			if n == 0 {
				return out
			}
			pos += n
			out = append(out, Producer{Field: field, Name: name, Version: version})
		}
	}
	return out
}

// parseTargetFeatures decodes a "target_features" custom section
// payload. Layout: count, then per feature: one prefix byte ('+' or
// '-') and a name.
func parseTargetFeatures(data []byte) []Feature {
	var out []Feature
	count, n := uvarint(data)
	if n == 0 {
		return nil
	}
	pos := n
	for i := uint32(0); i < count && pos < len(data); i++ {
		prefix := data[pos]
		pos++
		name, n := readName(data[pos:])
		if n == 0 {
			return out
		}
		pos += n
		out = append(out, Feature{Prefix: prefix, Name: name})
	}
	return out
}

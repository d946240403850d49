// Package privstore implements the thread-local value store backing
// the g_private family of stubs.
//
// A GLib build for a single-threaded wasm target keeps each
// GPrivate's value in an association list instead of real TLS. The
// store reproduces that structure: a singly linked list of
// (key, value) pairs where the key is the guest address of the
// GPrivate itself, compared by identity and never dereferenced.
package privstore

// Entry is one thread-local binding. Key and Value are opaque guest
// addresses; the store never interprets or frees what they point to.
type Entry struct {
	Key   uint32
	Value uint32
}

type node struct {
	key   uint32
	value uint32
	next  *node
}

// Store holds the bindings for one module instance.
//
// The store performs no locking. Host calls that touch it are never
// concurrent: the guest has exactly one logical thread, and a store
// is never shared between instances. Bindings are never removed; a
// key lives as long as the store itself, matching the lifetime
// contract of the TLS keys it emulates.
type Store struct {
	head *node
	n    int
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Get returns the value bound to key and whether a binding exists.
// Callers that need the GLib contract map an absent binding to NULL.
func (s *Store) Get(key uint32) (uint32, bool) {
	for n := s.head; n != nil; n = n.next {
		if n.key == key {
			return n.value, true
		}
	}
	return 0, false
}

// Set binds value to key. An existing binding is overwritten in
// place; a new key is prepended. Keys stay unique.
func (s *Store) Set(key, value uint32) {
	for n := s.head; n != nil; n = n.next {
		if n.key == key {
			n.value = value
			return
		}
	}
	s.head = &node{key: key, value: value, next: s.head}
	s.n++
}

// Replace is Set under another name. GLib distinguishes replace,
// which may free the old value, from set, but this store never owns
// values, so both collapse to the same operation.
func (s *Store) Replace(key, value uint32) {
	s.Set(key, value)
}

// Len returns the number of distinct keys.
func (s *Store) Len() int {
	return s.n
}

// Entries returns a snapshot in traversal order, most recently
// inserted key first.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, s.n)
	for n := s.head; n != nil; n = n.next {
		out = append(out, Entry{Key: n.key, Value: n.value})
	}
	return out
}

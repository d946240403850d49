// Package history persists guest run records in a local bbolt
// database, optionally sealed with AES-GCM when a key is configured.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const sessionsBucket = "sessions"

// ErrNotFound is returned when a session id has no record.
var ErrNotFound = errors.New("session not found")

// Store is a session archive backed by a single bbolt file.
type Store struct {
	handle *bolt.DB
	sealer *Sealer
}

// Open opens (or creates) the database at path. A non-nil key turns on
// encryption at rest; records written without a key stay readable only
// while the store is opened without one.
func Open(path string, key []byte) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("unable to create history directory: %w", err)
	}
	handle, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open history database: %w", err)
	}
	err = handle.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket))
		return err
	})
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("unable to create sessions bucket: %w", err)
	}
	s := &Store{handle: handle}
	if len(key) > 0 {
		if s.sealer, err = NewSealer(key); err != nil {
			_ = handle.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.handle.Close()
}

// Put writes or replaces a session record.
func (s *Store) Put(sess *Session) error {
	data, err := sess.encode()
	if err != nil {
		return err
	}
	if s.sealer != nil {
		if data, err = s.sealer.Seal(data); err != nil {
			return fmt.Errorf("unable to seal session: %w", err)
		}
	}
	err = s.handle.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Put([]byte(sess.ID), data)
	})
	if err != nil {
		return fmt.Errorf("unable to store session: %w", err)
	}
	return nil
}

// Get loads one session by id.
func (s *Store) Get(id string) (*Session, error) {
	var data []byte
	err := s.handle.View(func(tx *bolt.Tx) error {
		got := tx.Bucket([]byte(sessionsBucket)).Get([]byte(id))
		if got == nil {
			return ErrNotFound
		}
		// Bolt values only live for the transaction.
		data = append([]byte(nil), got...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.open(data)
}

// List returns every session, newest first.
func (s *Store) List() ([]*Session, error) {
	var sessions []*Session
	err := s.handle.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).ForEach(func(_, v []byte) error {
			sess, err := s.open(append([]byte(nil), v...))
			if err != nil {
				return err
			}
			sessions = append(sessions, sess)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Started.After(sessions[j].Started)
	})
	return sessions, nil
}

// Delete removes a session record. Missing ids are not an error.
func (s *Store) Delete(id string) error {
	err := s.handle.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("unable to delete session: %w", err)
	}
	return nil
}

// Count reports how many sessions are stored.
func (s *Store) Count() (int, error) {
	var n int
	err := s.handle.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(sessionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) open(data []byte) (*Session, error) {
	if s.sealer != nil {
		plain, err := s.sealer.Open(data)
		if err != nil {
			return nil, fmt.Errorf("unable to unseal session: %w", err)
		}
		data = plain
	}
	return decodeSession(data)
}

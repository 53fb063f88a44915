package core

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

// testLogger returns a logger quiet enough not to spam test output.
func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// newTestStore opens a bbolt store under a fresh temp directory, closed
// automatically at test cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := OpenStore(path, testLogger())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestIdentity generates a fresh identity under a temp key directory.
func newTestIdentity(t *testing.T) *Identity {
	t.Helper()
	id, err := LoadOrCreateIdentity(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}
	return id
}

// putEvent signs, stores (as local) and returns a new event for payload.
func putEvent(t *testing.T, s *Store, id *Identity, payload Payload, prev []string, nonce uint64) *Event {
	t.Helper()
	e, err := NewEvent(id, payload, prev, nonce)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if err := s.Put(e, true); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return e
}

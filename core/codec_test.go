package core

import (
	"strings"
	"testing"
	"time"
)

// ------------------------------------------------------------
// Canonical byte encoding
// ------------------------------------------------------------

func TestCanonicalBytesNilPrevEncodesEmptyArray(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := canonicalBytes("post:v1", []byte(`{"content":"hi"}`), nil, "author1", 1, ts)
	if err != nil {
		t.Fatalf("canonicalBytes: %v", err)
	}
	if !strings.Contains(string(b), `"prev":[]`) {
		t.Fatalf("expected prev:[] in canonical form, got %s", b)
	}
}

func TestCanonicalBytesDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := canonicalBytes("post:v1", []byte(`{"content":"hi"}`), []string{"p1"}, "author1", 7, ts)
	if err != nil {
		t.Fatalf("canonicalBytes a: %v", err)
	}
	b, err := canonicalBytes("post:v1", []byte(`{"content":"hi"}`), []string{"p1"}, "author1", 7, ts)
	if err != nil {
		t.Fatalf("canonicalBytes b: %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("canonicalBytes is not deterministic for identical input")
	}
}

func TestCanonicalBytesFieldSensitivity(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	base, err := canonicalBytes("post:v1", []byte(`{"content":"hi"}`), []string{"p1"}, "author1", 1, ts)
	if err != nil {
		t.Fatalf("canonicalBytes base: %v", err)
	}
	changedNonce, err := canonicalBytes("post:v1", []byte(`{"content":"hi"}`), []string{"p1"}, "author1", 2, ts)
	if err != nil {
		t.Fatalf("canonicalBytes changedNonce: %v", err)
	}
	if string(base) == string(changedNonce) {
		t.Fatal("changing nonce did not change canonical bytes")
	}
}

func TestContentIDStable(t *testing.T) {
	b := []byte("some canonical bytes")
	if contentID(b) != contentID(b) {
		t.Fatal("contentID is not stable for identical input")
	}
	if contentID(b) == contentID([]byte("different bytes")) {
		t.Fatal("contentID collided on different input")
	}
	if len(contentID(b)) != 64 {
		t.Fatalf("expected 64-char hex sha256 digest, got length %d", len(contentID(b)))
	}
}

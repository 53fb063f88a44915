package core

import (
	"context"
	"encoding/json"
	"testing"
)

// newTestOverlay starts a real libp2p host on loopback with no bootstrap
// peers and no discovery, so Peers() is reliably empty and every test stays
// off the network.
func newTestOverlay(t *testing.T) *Overlay {
	t.Helper()
	o, err := NewOverlay(OverlayConfig{ListenAddr: "/ip4/127.0.0.1/tcp/0"}, testLogger())
	if err != nil {
		t.Fatalf("NewOverlay: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func newTestReplicator(t *testing.T, s *Store) *Replicator {
	t.Helper()
	return NewReplicator(s, newTestOverlay(t), testLogger())
}

// ------------------------------------------------------------
// HandleFetch / HandleStore: pure store-backed request handlers
// ------------------------------------------------------------

func TestHandleFetchReturnsStoredEvent(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	e := putEvent(t, s, id, &PostPayload{Content: "hi"}, nil, 1)

	r := newTestReplicator(t, s)
	resp := r.HandleFetch(e.ID)
	if resp.Tag != byte(RespBlock) {
		t.Fatalf("expected RespBlock, got tag %d", resp.Tag)
	}
	var got Event
	if err := json.Unmarshal(resp.Payload, &got); err != nil {
		t.Fatalf("unmarshal response payload: %v", err)
	}
	if got.ID != e.ID {
		t.Fatalf("expected fetched event id %s, got %s", e.ID, got.ID)
	}
}

func TestHandleFetchMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	r := newTestReplicator(t, s)
	resp := r.HandleFetch("nonexistent-id")
	if resp.Tag != byte(RespNotFound) {
		t.Fatalf("expected RespNotFound, got tag %d", resp.Tag)
	}
}

func TestHandleStoreAcceptsValidEvent(t *testing.T) {
	s1 := newTestStore(t)
	s2 := newTestStore(t)
	id := newTestIdentity(t)
	e := putEvent(t, s1, id, &PostPayload{Content: "hi"}, nil, 1)

	data, err := s1.GetBytes(e.ID)
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}

	r := newTestReplicator(t, s2)
	resp := r.HandleStore(data)
	if resp.Tag != byte(RespAck) {
		t.Fatalf("expected RespAck, got tag %d payload %s", resp.Tag, resp.Payload)
	}
	if !s2.Has(e.ID) {
		t.Fatal("expected event to land in the receiving store")
	}
}

func TestHandleStoreRejectsTamperedEvent(t *testing.T) {
	s1 := newTestStore(t)
	s2 := newTestStore(t)
	id := newTestIdentity(t)
	e := putEvent(t, s1, id, &PostPayload{Content: "hi"}, nil, 1)

	var raw map[string]interface{}
	data, _ := s1.GetBytes(e.ID)
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw["payload"] = map[string]interface{}{"content": "tampered"}
	tampered, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	r := newTestReplicator(t, s2)
	resp := r.HandleStore(tampered)
	if resp.Tag != byte(RespError) {
		t.Fatalf("expected RespError for a tampered event, got tag %d", resp.Tag)
	}
	if s2.Has(e.ID) {
		t.Fatal("a tampered event must never be accepted into the store")
	}
}

func TestHandleStoreRejectsGarbageBytes(t *testing.T) {
	s := newTestStore(t)
	r := newTestReplicator(t, s)
	resp := r.HandleStore([]byte("not json"))
	if resp.Tag != byte(RespError) {
		t.Fatalf("expected RespError for unparseable bytes, got tag %d", resp.Tag)
	}
}

// ------------------------------------------------------------
// HandleLocalSearch
// ------------------------------------------------------------

func TestHandleLocalSearchFindsNameBinding(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	putEvent(t, s, id, &NamePayload{Name: "alice", Target: "some-target"}, nil, 1)

	r := newTestReplicator(t, s)
	resp := r.HandleLocalSearch("alice")
	if resp.Tag != byte(RespSearchResults) {
		t.Fatalf("expected RespSearchResults, got tag %d", resp.Tag)
	}
	found := false
	for _, item := range resp.Items {
		if string(item) == "some-target" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'some-target' among search results, got %v", resp.Items)
	}
}

func TestHandleLocalSearchNoMatchReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	r := newTestReplicator(t, s)
	resp := r.HandleLocalSearch("nobody-matches-this")
	if resp.Tag != byte(RespNotFound) {
		t.Fatalf("expected RespNotFound, got tag %d", resp.Tag)
	}
}

// ------------------------------------------------------------
// Publish / Announce / Backfill / Tick / Seed with no connected peers:
// all must degrade gracefully rather than block or panic
// ------------------------------------------------------------

func TestPublishStoresAndBroadcasts(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	e, err := NewEvent(id, &PostPayload{Content: "hello"}, nil, 1)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	r := newTestReplicator(t, s)
	if err := r.Publish(e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !s.Has(e.ID) {
		t.Fatal("expected published event to be stored locally")
	}
}

func TestBackfillEnqueuesMissingParents(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	child, err := NewEvent(id, &PostPayload{Content: "child"}, []string{"missing-parent-id"}, 1)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	r := newTestReplicator(t, s)
	r.Backfill(child)

	r.mu.Lock()
	_, pending := r.pending["missing-parent-id"]
	r.mu.Unlock()
	if !pending {
		t.Fatal("expected the missing parent to be queued for fetch")
	}
}

func TestBackfillSkipsKnownParents(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	parent := putEvent(t, s, id, &PostPayload{Content: "parent"}, nil, 1)
	child, err := NewEvent(id, &PostPayload{Content: "child"}, []string{parent.ID}, 2)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	r := newTestReplicator(t, s)
	r.Backfill(child)

	r.mu.Lock()
	_, pending := r.pending[parent.ID]
	r.mu.Unlock()
	if pending {
		t.Fatal("a parent already in the store must not be queued for fetch")
	}
}

func TestTickWithNoPeersIsANoop(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	child, err := NewEvent(id, &PostPayload{Content: "child"}, []string{"missing-parent-id"}, 1)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	r := newTestReplicator(t, s)
	r.Backfill(child)
	r.Tick(context.Background())

	r.mu.Lock()
	_, stillPending := r.pending["missing-parent-id"]
	r.mu.Unlock()
	if !stillPending {
		t.Fatal("Tick with zero connected peers must leave pending work untouched, not drop it")
	}
}

func TestSeedWithNoPeersSucceeds(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	e := putEvent(t, s, id, &PostPayload{Content: "hi"}, nil, 1)

	r := newTestReplicator(t, s)
	if err := r.Seed(e.ID); err != nil {
		t.Fatalf("Seed with no connected peers should succeed as a no-op, got %v", err)
	}
}

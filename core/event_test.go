package core

import (
	"encoding/json"
	"testing"
)

// ------------------------------------------------------------
// NewEvent / Verify round trip (I1, I2)
// ------------------------------------------------------------

func TestNewEventVerifies(t *testing.T) {
	id := newTestIdentity(t)
	e, err := NewEvent(id, &PostPayload{Content: "hello"}, nil, 1)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if err := e.Verify(); err != nil {
		t.Fatalf("freshly constructed event failed to verify: %v", err)
	}
	if e.Prev == nil || len(e.Prev) != 0 {
		t.Fatalf("expected non-nil empty Prev, got %#v", e.Prev)
	}
}

func TestEventIDMatchesContentHash(t *testing.T) {
	id := newTestIdentity(t)
	e, err := NewEvent(id, &PostPayload{Content: "hello"}, nil, 1)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	canon, err := canonicalBytes(e.Type, data, e.Prev, e.Author, e.Nonce, e.Timestamp)
	if err != nil {
		t.Fatalf("canonicalBytes: %v", err)
	}
	if e.ID != contentID(canon) {
		t.Fatal("event id does not match its own canonical content hash")
	}
}

func TestVerifyDetectsTamperedPayload(t *testing.T) {
	id := newTestIdentity(t)
	e, err := NewEvent(id, &PostPayload{Content: "hello"}, nil, 1)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	e.Payload = &PostPayload{Content: "tampered"}
	if err := e.Verify(); err == nil {
		t.Fatal("expected Verify to fail after payload tampering (InvalidHash)")
	}
}

func TestVerifyDetectsBadSignature(t *testing.T) {
	id := newTestIdentity(t)
	e, err := NewEvent(id, &PostPayload{Content: "hello"}, nil, 1)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	other := newTestIdentity(t)
	e.Sig = other.Sign([]byte(e.ID))
	if err := e.Verify(); err == nil {
		t.Fatal("expected Verify to fail under a signature from a different key (InvalidSignature)")
	}
}

func TestVerifyDetectsBadAuthor(t *testing.T) {
	id := newTestIdentity(t)
	e, err := NewEvent(id, &PostPayload{Content: "hello"}, nil, 1)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	e.Author = "not-valid-hex"
	if err := e.Verify(); err == nil {
		t.Fatal("expected Verify to fail on an unparsable author (BadAuthor)")
	}
}

// ------------------------------------------------------------
// Event JSON marshal/unmarshal round trip through the tagged
// payload envelope, not a mechanical struct-equality grid.
// ------------------------------------------------------------

func TestEventMarshalUnmarshalRoundTrip(t *testing.T) {
	id := newTestIdentity(t)
	target := "deadbeef"
	e, err := NewEvent(id, &ProofPayload{Target: target}, []string{"parent1"}, 5)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != e.ID || back.Author != e.Author || back.Type != e.Type {
		t.Fatal("round trip lost identifying fields")
	}
	p, ok := back.Payload.(*ProofPayload)
	if !ok {
		t.Fatalf("round trip produced wrong payload type %T", back.Payload)
	}
	if p.Target != target {
		t.Fatalf("round trip lost payload field: got %q want %q", p.Target, target)
	}
	if err := back.Verify(); err != nil {
		t.Fatalf("round-tripped event failed to verify: %v", err)
	}
}

func TestEventUnmarshalUnknownTypeIsProtocolMismatch(t *testing.T) {
	raw := `{"type":"unknown:v9","id":"x","payload":{"type":"unknown:v9","data":{}},"prev":[],"author":"a","nonce":0,"timestamp":"2026-01-01T00:00:00Z","sig":null}`
	var e Event
	err := json.Unmarshal([]byte(raw), &e)
	if err == nil {
		t.Fatal("expected an error decoding an unknown payload type")
	}
}

// ------------------------------------------------------------
// eventTarget dispatch, used by the store's by_target index
// ------------------------------------------------------------

func TestEventTargetDispatch(t *testing.T) {
	cases := []struct {
		name string
		p    Payload
		want string
	}{
		{"proof", &ProofPayload{Target: "t1"}, "t1"},
		{"message", &MessagePayload{Recipient: "r1"}, "r1"},
		{"vote", &VotePayload{ProposalID: "p1"}, "p1"},
		{"follow", &FollowPayload{Target: "f1"}, "f1"},
		{"name", &NamePayload{Name: "n", Target: "tgt"}, "tgt"},
		{"post has no target", &PostPayload{Content: "hi"}, ""},
	}
	for _, tc := range cases {
		if got := eventTarget(tc.p); got != tc.want {
			t.Errorf("%s: eventTarget=%q want %q", tc.name, got, tc.want)
		}
	}
}

func TestEventTargetTokenOptionalField(t *testing.T) {
	if got := eventTarget(&TokenPayload{Action: TokenMint}); got != "" {
		t.Fatalf("token with nil Target should have no event target, got %q", got)
	}
	target := "beneficiary"
	if got := eventTarget(&TokenPayload{Action: TokenBurn, Target: &target}); got != target {
		t.Fatalf("token with Target set should target %q, got %q", target, got)
	}
}

package core

import (
	"context"
	"testing"
	"time"
)

func newTestNode(t *testing.T) (*Node, *Store, *Identity) {
	t.Helper()
	s := newTestStore(t)
	id := newTestIdentity(t)
	overlay := newTestOverlay(t)
	repl := NewReplicator(s, overlay, testLogger())
	n := NewNode(id, s, NewVM(testLogger()), overlay, repl, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return n, s, id
}

// ------------------------------------------------------------
// Submit: gate-checked, signed, published, round trip through the
// single-threaded event loop
// ------------------------------------------------------------

func TestNodeSubmitStoresEvent(t *testing.T) {
	n, s, _ := newTestNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := n.Submit(ctx, &PostPayload{Content: "hello"}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !s.Has(e.ID) {
		t.Fatal("expected the submitted event to be stored")
	}
}

func TestNodeSubmitRejectsInvalidPayload(t *testing.T) {
	n, _, _ := newTestNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := n.Submit(ctx, &ProposalPayload{Kind: ProposalStandard, Title: "t", Body: "b"}, nil)
	if err == nil {
		t.Fatal("expected a verification-gated payload from an unverified author to be rejected")
	}
}

func TestNodeSubmitRespectsContextCancellation(t *testing.T) {
	n, _, _ := newTestNode(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := n.Submit(ctx, &PostPayload{Content: "too late"}, nil); err == nil {
		t.Fatal("expected Submit to return an error once ctx is already cancelled")
	}
}

// ------------------------------------------------------------
// SendToken / ClaimTransfer: tax-on-transfer burn-split at send time,
// plain claim at claim time
// ------------------------------------------------------------

func TestNodeSendTokenNoTaxWithoutPassedProposal(t *testing.T) {
	n, s, _ := newTestNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recipient := newTestIdentity(t).AuthorID()
	sendEvent, err := n.SendToken(ctx, recipient, 100, time.Now().UTC())
	if err != nil {
		t.Fatalf("SendToken: %v", err)
	}
	send, ok := sendEvent.Payload.(*TokenPayload)
	if !ok {
		t.Fatalf("expected a TokenPayload, got %T", sendEvent.Payload)
	}
	if send.Action != TokenBurn || send.Amount != 100 || send.Target == nil || *send.Target != recipient {
		t.Fatalf("expected a 100-amount Burn targeting the recipient with a zero tax rate, got %+v", send)
	}
	if !s.Has(sendEvent.ID) {
		t.Fatal("expected the send-side burn to be stored")
	}
}

func TestNodeSendTokenSplitsTaxAtPassedRate(t *testing.T) {
	n, s, _ := newTestNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	founder := newTestIdentity(t)
	fid := uint32(1)
	putEvent(t, s, founder, &ProfilePayload{Name: "founder", FounderID: &fid}, nil, 1)
	param := "10"
	prop := putEvent(t, s, founder, &ProposalPayload{Kind: ProposalSetTax, Title: "t", Body: "b", Param: &param}, nil, 2)
	putEvent(t, s, founder, &VotePayload{ProposalID: prop.ID, Choice: VoteYes}, nil, 3)

	recipient := newTestIdentity(t).AuthorID()
	later := prop.Timestamp.Add(200 * time.Hour)
	sendEvent, err := n.SendToken(ctx, recipient, 100, later)
	if err != nil {
		t.Fatalf("SendToken: %v", err)
	}
	send, ok := sendEvent.Payload.(*TokenPayload)
	if !ok {
		t.Fatalf("expected a TokenPayload, got %T", sendEvent.Payload)
	}
	if send.Action != TokenBurn || send.Amount != 90 || send.Target == nil || *send.Target != recipient {
		t.Fatalf("expected a 90-amount Burn targeting the recipient at a 10%% tax rate, got %+v", send)
	}

	tokenEvents, err := s.ByTypeAndAuthor("token:v1", sendEvent.Author)
	if err != nil {
		t.Fatalf("ByTypeAndAuthor: %v", err)
	}
	var taxBurn *TokenPayload
	for _, e := range tokenEvents {
		p, ok := e.Payload.(*TokenPayload)
		if ok && p.Action == TokenBurn && p.RefCID != nil && *p.RefCID == sendEvent.ID {
			taxBurn = p
		}
	}
	if taxBurn == nil {
		t.Fatal("expected a chained tax Burn referencing the send event via ref_cid")
	}
	if taxBurn.Amount != 10 || taxBurn.Target != nil {
		t.Fatalf("expected a no-target 10-amount tax Burn, got %+v", taxBurn)
	}
	if taxBurn.RefCID == nil || *taxBurn.RefCID != sendEvent.ID {
		t.Fatalf("expected the tax Burn's ref_cid to point at the send event, got %+v", taxBurn.RefCID)
	}
}

func TestNodeClaimTransferPassesFullAmount(t *testing.T) {
	n, s, id := newTestNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	target := id.AuthorID()
	burn := putEvent(t, s, id, &TokenPayload{Action: TokenBurn, Amount: 90, Target: &target}, nil, 1)

	claimEvent, err := n.ClaimTransfer(ctx, burn.ID, 90)
	if err != nil {
		t.Fatalf("ClaimTransfer: %v", err)
	}
	claim, ok := claimEvent.Payload.(*TokenPayload)
	if !ok {
		t.Fatalf("expected a TokenPayload, got %T", claimEvent.Payload)
	}
	if claim.Action != TokenTransferClaim || claim.Amount != 90 || claim.RefCID == nil || *claim.RefCID != burn.ID {
		t.Fatalf("expected a plain 90-amount TransferClaim referencing the burn, got %+v", claim)
	}
}

// ------------------------------------------------------------
// Shutdown (handleRequest dispatch has no test here: it is reached
// only through overlay-delivered InboundRequest values; the handlers
// it calls are tested in replicator_test.go)
// ------------------------------------------------------------

func TestNodeShutdownStopsLoop(t *testing.T) {
	n, _, _ := newTestNode(t)
	n.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := n.Submit(ctx, &PostPayload{Content: "after shutdown"}, nil); err == nil {
		t.Fatal("expected Submit to time out once the node loop has shut down")
	}
}

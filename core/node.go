package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// tickInterval drives the node loop's periodic work: replicator retries
// and story pruning (§4.9, §3 "story pruning after 24h").
const tickInterval = 5 * time.Second

// Command asks the node to sign, gate-check and store a new event built
// from payload with the given parents. Result is delivered on Reply.
type Command struct {
	Payload Payload
	Prev    []string
	Reply   chan Notification
}

// Notification is the outcome of a submitted Command.
type Notification struct {
	Event *Event
	Err   error
}

// Node is the single-threaded cooperative event loop multiplexing
// commands, overlay events and periodic ticks (§4.9), grounded on
// node.go's NodeAdapter select loop but carrying this domain's policy
// gates instead of consensus/mempool logic.
type Node struct {
	id         *Identity
	store      *Store
	vm         *VM
	overlay    *Overlay
	replicator *Replicator
	vcache     *VerifyCache
	log        *logrus.Entry

	commands chan Command
	shutdown chan struct{}
}

// NewNode wires together an identity, store, VM, overlay and replicator
// into a running node. Call Run to start the event loop.
func NewNode(id *Identity, store *Store, vm *VM, overlay *Overlay, replicator *Replicator, log *logrus.Logger) *Node {
	return &Node{
		id:         id,
		store:      store,
		vm:         vm,
		overlay:    overlay,
		replicator: replicator,
		vcache:     NewVerifyCache(store),
		log:        log.WithField("component", "node"),
		commands:   make(chan Command, 64),
		shutdown:   make(chan struct{}),
	}
}

// Submit asks the node to sign and store a new event. It blocks until
// the command has been processed by the event loop or ctx is cancelled.
func (n *Node) Submit(ctx context.Context, payload Payload, prev []string) (*Event, error) {
	reply := make(chan Notification, 1)
	cmd := Command{Payload: payload, Prev: prev, Reply: reply}
	select {
	case n.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case note := <-reply:
		return note.Event, note.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops the event loop.
func (n *Node) Shutdown() { close(n.shutdown) }

// Run is the cooperative event loop: it owns every mutation to store,
// overlay and replicator state, processing exactly one source per
// iteration so no two writers race on the underlying store transaction.
func (n *Node) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-n.commands:
			n.handleCommand(cmd)

		case ev, ok := <-n.overlay.Events():
			if !ok {
				return
			}
			n.handleOverlayEvent(ev)

		case <-ticker.C:
			n.handleTick(ctx)

		case <-n.shutdown:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) handleCommand(cmd Command) {
	now := time.Now().UTC()
	author := n.id.AuthorID()

	if err := ValidatePayload(n.store, n.vcache, author, cmd.Payload, now); err != nil {
		cmd.Reply <- Notification{Err: err}
		return
	}

	e, err := NewEvent(n.id, cmd.Payload, cmd.Prev, nextNonce())
	if err != nil {
		cmd.Reply <- Notification{Err: err}
		return
	}

	if err := n.replicator.Publish(e); err != nil {
		cmd.Reply <- Notification{Err: err}
		return
	}
	if invalidatesVerification(e.Type) {
		n.vcache.Invalidate()
	}
	if err := n.replicator.Seed(e.ID); err != nil {
		n.log.WithError(err).Debug("seed push failed")
	}

	cmd.Reply <- Notification{Event: e}
}

func (n *Node) handleOverlayEvent(ev OverlayEvent) {
	switch {
	case ev.Gossip != nil:
		if ev.Gossip.Topic == gossipTopic {
			n.replicator.HandleAnnouncement(ev.Gossip.From, string(ev.Gossip.Data))
		}

	case ev.Request != nil:
		n.handleRequest(ev.Request)

	case ev.Kind == PeerConnected:
		n.log.WithField("peer", ev.Peer).Debug("peer connected")

	case ev.Kind == PeerDisconnected:
		n.log.WithField("peer", ev.Peer).Debug("peer disconnected")
	}
}

func (n *Node) handleRequest(req *InboundRequest) {
	var resp Frame
	switch ReqTag(req.Frame.Tag) {
	case ReqFetch:
		resp = n.replicator.HandleFetch(string(req.Frame.Payload))
	case ReqLocalSearch:
		resp = n.replicator.HandleLocalSearch(string(req.Frame.Payload))
	case ReqStore:
		resp = n.replicator.HandleStore(req.Frame.Payload)
	default:
		resp = Frame{Tag: byte(RespError), Payload: []byte("unknown request tag")}
	}
	if err := req.Respond(resp); err != nil {
		n.log.WithField("peer", req.From).WithError(err).Debug("failed to respond to request")
	}
}

func (n *Node) handleTick(ctx context.Context) {
	n.replicator.Tick(ctx)
	if _, err := n.store.PruneExpired(time.Now().UTC()); err != nil {
		n.log.WithError(err).Warn("story pruning failed")
	}
}

// SendToken submits a tax-on-transfer send: a Burn of amount minus the
// current tax rate targeting recipient, plus a Burn of the tax portion
// with no target, chained off the first via ref_cid (§4.9
// "tax-on-transfer burn-split"). It returns the recipient-targeted Burn,
// the event a later ClaimTransfer references.
func (n *Node) SendToken(ctx context.Context, recipient string, amount uint64, now time.Time) (*Event, error) {
	rate, err := CurrentTaxRate(n.store, now)
	if err != nil {
		return nil, err
	}
	net, tax := taxSplit(int64(amount), rate)
	if net < 0 || tax < 0 {
		return nil, fmt.Errorf("%w: negative split", ErrInvalidEvent)
	}

	send := &TokenPayload{Action: TokenBurn, Amount: uint64(net), Target: &recipient}
	sendEvent, err := n.Submit(ctx, send, nil)
	if err != nil {
		return nil, err
	}

	if tax > 0 {
		memo := "tax"
		burn := &TokenPayload{Action: TokenBurn, Amount: uint64(tax), Memo: &memo, RefCID: &sendEvent.ID}
		if _, err := n.Submit(ctx, burn, []string{sendEvent.ID}); err != nil {
			n.log.WithError(err).Warn("tax burn submission failed")
		}
	}

	return sendEvent, nil
}

// ClaimTransfer submits a TransferClaim for a pending burn, crediting the
// claimant's balance with the burn's full amount (§4.5 "Balance"); the
// tax portion, if any, was already split off at send time by SendToken.
func (n *Node) ClaimTransfer(ctx context.Context, burnEventID string, amount uint64) (*Event, error) {
	claim := &TokenPayload{Action: TokenTransferClaim, Amount: amount, RefCID: &burnEventID}
	return n.Submit(ctx, claim, nil)
}

// nextNonce returns a monotonically increasing nonce. It is not
// persisted: a fresh node restarting reuses low values, but Event
// identity is keyed by the full canonical form (author, timestamp,
// parents, payload) so a nonce collision across restarts does not
// collide two distinct events.
var nonceCounter uint64

func nextNonce() uint64 {
	nonceCounter++
	return nonceCounter
}

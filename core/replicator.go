package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"
)

// replicationFanout is the number of peers a freshly published event is
// announced to before the replicator considers it seeded (§4.8, "R=10").
const replicationFanout = 10

// retryDeadline bounds how long an unresolved fetch/backfill stays in the
// retry queue before being given up on (§4.8, "60s retry deadline").
const retryDeadline = 60 * time.Second

// retryInterval is how often the replicator's tick re-attempts pending
// work.
const retryInterval = 5 * time.Second

// pendingFetch tracks an outstanding attempt to obtain a content id this
// node does not yet have, either because it was announced or because it
// is a missing parent of an event already stored.
type pendingFetch struct {
	id      string
	firstAt time.Time
	tried   map[peer.ID]bool
}

// Replicator drives the publish -> announce -> fetch -> backfill loop
// described in §4.8, grounded on replication.go's Replicator/msgInv/
// msgGetData/msgBlock pattern but speaking through the Overlay's
// request/response frames and gossip topic instead of a bespoke wire
// protocol.
type Replicator struct {
	store   *Store
	overlay *Overlay
	log     *logrus.Entry

	mu      sync.Mutex
	pending map[string]*pendingFetch
}

// NewReplicator builds a Replicator bound to store and overlay.
func NewReplicator(store *Store, overlay *Overlay, log *logrus.Logger) *Replicator {
	return &Replicator{
		store:   store,
		overlay: overlay,
		log:     log.WithField("component", "replicator"),
		pending: map[string]*pendingFetch{},
	}
}

// Publish stores a locally authored event and announces its id on the
// gossip topic, the "publish -> announce" half of the loop.
func (r *Replicator) Publish(e *Event) error {
	if err := r.store.Put(e, true); err != nil {
		return err
	}
	return r.Announce(e.ID)
}

// Announce broadcasts a content id on the shared gossip topic so peers
// can decide whether to fetch it.
func (r *Replicator) Announce(id string) error {
	return r.overlay.Broadcast(gossipTopic, []byte(id))
}

// HandleAnnouncement processes an inbound gossip message: if the
// announced id is unknown locally, it is queued for fetch. The announcing
// peer is not recorded; Tick tries each connected peer in turn.
func (r *Replicator) HandleAnnouncement(from peer.ID, id string) {
	if r.store.Has(id) {
		return
	}
	r.enqueue(id, from)
}

func (r *Replicator) enqueue(id string, from peer.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pf, ok := r.pending[id]
	if !ok {
		pf = &pendingFetch{id: id, firstAt: time.Now(), tried: map[peer.ID]bool{}}
		r.pending[id] = pf
	}
	_ = from
}

// Backfill queues every parent of e that is not yet in the local store,
// so a node that fetches a child before its ancestors eventually
// recovers the whole chain (§4.8 "recursive parent backfill", §8
// "parent backfill" testable property).
func (r *Replicator) Backfill(e *Event) {
	for _, p := range e.Prev {
		if !r.store.Has(p) {
			r.enqueue(p, "")
		}
	}
}

// Tick drives one round of the retry queue: fetch every pending id from
// a connected peer, store and recursively backfill whatever arrives, and
// drop entries that have exceeded the retry deadline.
func (r *Replicator) Tick(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	peers := r.overlay.Peers()
	if len(peers) == 0 {
		return
	}

	for _, id := range ids {
		if r.store.Has(id) {
			r.drop(id)
			continue
		}
		r.mu.Lock()
		pf := r.pending[id]
		r.mu.Unlock()
		if pf == nil {
			continue
		}
		if time.Since(pf.firstAt) > retryDeadline {
			r.log.WithField("id", id).Warn("giving up on fetch after retry deadline")
			r.drop(id)
			continue
		}
		r.attemptFetch(pf, peers)
	}
}

func (r *Replicator) attemptFetch(pf *pendingFetch, peers []peer.ID) {
	for _, p := range peers {
		r.mu.Lock()
		tried := pf.tried[p]
		r.mu.Unlock()
		if tried {
			continue
		}
		resp, err := r.overlay.Request(p, Frame{Tag: byte(ReqFetch), Payload: []byte(pf.id)})
		r.mu.Lock()
		pf.tried[p] = true
		r.mu.Unlock()
		if err != nil {
			continue
		}
		if resp.Tag != byte(RespBlock) {
			continue
		}
		e, err := r.verifyAndIngest(resp.Payload, false)
		if err != nil {
			r.log.WithError(err).WithField("id", pf.id).Warn("fetched block failed verification or storage")
			continue
		}
		r.drop(pf.id)
		r.Backfill(e)
		return
	}
}

// verifyAndIngest unmarshals a wire-encoded event, verifies it per §4.3
// and stores it, returning the decoded event so the caller can follow up
// with parent backfill. Both the peer-push (HandleStore) and fetch
// (attemptFetch) ingestion paths share this so a forged or
// hash-mismatched event is rejected on every inbound route alike.
func (r *Replicator) verifyAndIngest(data []byte, local bool) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Verify(); err != nil {
		return nil, err
	}
	if err := r.store.Put(&e, local); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Replicator) drop(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Seed announces id to up to replicationFanout connected peers directly
// via request/response, used right after Publish to push an event out
// ahead of gossip propagation.
func (r *Replicator) Seed(id string) error {
	data, err := r.store.GetBytes(id)
	if err != nil {
		return err
	}
	peers := r.overlay.Peers()
	n := 0
	for _, p := range peers {
		if n >= replicationFanout {
			break
		}
		if _, err := r.overlay.Request(p, Frame{Tag: byte(ReqStore), Payload: data}); err != nil {
			r.log.WithField("peer", p).WithError(err).Debug("seed push failed")
			continue
		}
		n++
	}
	return nil
}

// HandleFetch answers a peer's ReqFetch with the requested event, or
// RespNotFound if absent.
func (r *Replicator) HandleFetch(id string) Frame {
	data, err := r.store.GetBytes(id)
	if err != nil {
		return Frame{Tag: byte(RespNotFound)}
	}
	return Frame{Tag: byte(RespBlock), Payload: data}
}

// HandleStore accepts a peer's pushed event bytes (ReqStore), storing it
// as non-local replication data.
func (r *Replicator) HandleStore(data []byte) Frame {
	e, err := r.verifyAndIngest(data, false)
	if err != nil {
		return Frame{Tag: byte(RespError), Payload: []byte(err.Error())}
	}
	r.Backfill(e)
	return Frame{Tag: byte(RespAck)}
}

// HandleLocalSearch answers a peer's ReqLocalSearch with the target of the
// name:v1 binding for query, the URL of the web:v1 page matching query,
// and the ids of events authored by query, whichever exist, capped at 50
// items in total (§6, DHT search key "search:term:<query>").
func (r *Replicator) HandleLocalSearch(query string) Frame {
	const maxResults = 50
	items := make([][]byte, 0, maxResults)

	if target, ok, err := ResolveName(r.store, query); err == nil && ok {
		items = append(items, []byte(target))
	}
	if page, ok, err := WebPage(r.store, query); err == nil && ok {
		items = append(items, []byte(page.URL))
	}

	byAuthor, err := r.store.ByAuthor(query)
	if err != nil {
		return Frame{Tag: byte(RespError), Payload: []byte(err.Error())}
	}
	for _, e := range byAuthor {
		if len(items) >= maxResults {
			break
		}
		items = append(items, []byte(e.ID))
	}

	if len(items) == 0 {
		return Frame{Tag: byte(RespNotFound)}
	}
	return Frame{Tag: byte(RespSearchResults), Items: items}
}

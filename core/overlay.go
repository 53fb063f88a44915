package core

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/ipfs/go-cid"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"
)

// reqRepProtocol is the stream protocol carrying §4.7's request/response
// channel, generalized from the teacher's replication.go wire shapes
// (msgInv/msgGetData/msgBlock) to the three request / five response tags
// this spec names.
const reqRepProtocol = "/civicmesh/reqrep/1"

// gossipTopic carries content-id announcements (§6 "blocks topic").
const gossipTopic = "blocks"

// GossipTopic returns the shared content-id announcement topic name.
func GossipTopic() string { return gossipTopic }

// GeohashTopic returns the presence topic name for a geohash prefix
// (§4.7, literal presence marker "PRESENCE").
func GeohashTopic(prefix string) string { return "geohash:" + prefix }

// PresenceMarker is the literal payload broadcast on a geohash presence
// topic to announce this peer's participation in that locality.
const PresenceMarker = "PRESENCE"

// ReqTag discriminates a request/response frame (§6).
type ReqTag byte

const (
	ReqFetch ReqTag = iota
	ReqLocalSearch
	ReqStore
)

// RespTag discriminates a response frame (§6).
type RespTag byte

const (
	RespBlock RespTag = iota
	RespNotFound
	RespAck
	RespError
	RespSearchResults
)

// Frame is a single length-prefixed tagged request/response payload.
type Frame struct {
	Tag     byte
	Payload []byte
	Items   [][]byte // only populated for RespSearchResults
}

// OverlayConfig configures peer discovery and listening, grounded on
// network.go's Config struct (ListenAddr/BootstrapPeers/DiscoveryTag).
type OverlayConfig struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
}

// PeerEventKind enumerates overlay peer/connection notifications (§4.7).
type PeerEventKind string

const (
	PeerConnected    PeerEventKind = "connected"
	PeerDisconnected PeerEventKind = "disconnected"
)

// OverlayEvent is delivered on the Overlay's event channel, one of the
// four sources the node loop multiplexes (§4.9).
type OverlayEvent struct {
	Kind    PeerEventKind
	Peer    peer.ID
	Gossip  *GossipMessage
	Request *InboundRequest
}

// GossipMessage is a single message observed on a subscribed topic.
type GossipMessage struct {
	Topic string
	From  peer.ID
	Data  []byte
}

// InboundRequest is a peer's request/response frame along with a
// respond function the node loop calls exactly once.
type InboundRequest struct {
	From    peer.ID
	Frame   Frame
	Respond func(Frame) error
}

// Overlay provides the gossip topic, request/response channel, and DHT
// provider records (§4.7). It does not know event semantics; it moves
// opaque byte blobs. Grounded directly on network.go's NewNode/Broadcast/
// Subscribe/DialSeed/HandlePeerFound, extended with a stream protocol
// handler and a Kademlia DHT for provider records.
type Overlay struct {
	host host.Host
	ps   *pubsub.PubSub
	dht  *dht.IpfsDHT

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	subs   map[string]*pubsub.Subscription

	events chan OverlayEvent
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOverlay constructs the libp2p host, gossipsub router and DHT, wires
// mDNS discovery under cfg.DiscoveryTag, dials bootstrap peers, and
// installs the request/response stream handler.
func NewOverlay(cfg OverlayConfig, log *logrus.Logger) (*Overlay, error) {
	ctx, cancel := context.WithCancel(context.Background())
	entry := log.WithField("component", "overlay")

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create host: %v", ErrOverlay, err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create gossipsub: %v", ErrOverlay, err)
	}

	kad, err := dht.New(ctx, h, dht.Mode(dht.ModeAuto))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create dht: %v", ErrOverlay, err)
	}
	if err := kad.Bootstrap(ctx); err != nil {
		entry.WithError(err).Warn("dht bootstrap failed")
	}

	o := &Overlay{
		host:   h,
		ps:     ps,
		dht:    kad,
		topics: map[string]*pubsub.Topic{},
		subs:   map[string]*pubsub.Subscription{},
		events: make(chan OverlayEvent, 256),
		log:    entry,
		ctx:    ctx,
		cancel: cancel,
	}

	h.Network().Notify(&overlayNotifee{o: o})
	h.SetStreamHandler(reqRepProtocol, o.handleStream)

	if cfg.DiscoveryTag != "" {
		disc := mdns.NewMdnsService(h, cfg.DiscoveryTag, &mdnsNotifee{o: o})
		if err := disc.Start(); err != nil {
			entry.WithError(err).Warn("mdns discovery failed to start")
		}
	}

	for _, addr := range cfg.BootstrapPeers {
		if err := o.DialSeed(addr); err != nil {
			entry.WithField("addr", addr).WithError(err).Warn("bootstrap dial failed")
		}
	}

	return o, nil
}

// DialSeed connects to a bootstrap peer multiaddress.
func (o *Overlay) DialSeed(addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("%w: bad multiaddr: %v", ErrOverlay, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("%w: bad peer info: %v", ErrOverlay, err)
	}
	ctx, cancel := context.WithTimeout(o.ctx, 10*time.Second)
	defer cancel()
	if err := o.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("%w: connect: %v", ErrOverlay, err)
	}
	return nil
}

type mdnsNotifee struct{ o *Overlay }

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(n.o.ctx, 5*time.Second)
	defer cancel()
	if err := n.o.host.Connect(ctx, info); err != nil {
		n.o.log.WithField("peer", info.ID).WithError(err).Debug("mdns connect failed")
	}
}

type overlayNotifee struct{ o *Overlay }

func (n *overlayNotifee) Connected(_ network.Network, c network.Conn) {
	n.o.emit(OverlayEvent{Kind: PeerConnected, Peer: c.RemotePeer()})
}
func (n *overlayNotifee) Disconnected(_ network.Network, c network.Conn) {
	n.o.emit(OverlayEvent{Kind: PeerDisconnected, Peer: c.RemotePeer()})
}
func (n *overlayNotifee) Listen(network.Network, ma.Multiaddr)      {}
func (n *overlayNotifee) ListenClose(network.Network, ma.Multiaddr) {}

func (o *Overlay) emit(e OverlayEvent) {
	select {
	case o.events <- e:
	default:
		o.log.Warn("overlay event channel full, dropping event")
	}
}

// Events returns the channel of peer/gossip/request notifications the
// node loop selects on.
func (o *Overlay) Events() <-chan OverlayEvent { return o.events }

// Peers returns currently connected peer ids.
func (o *Overlay) Peers() []peer.ID {
	return o.host.Network().Peers()
}

// LocalPeerID returns this node's own peer id.
func (o *Overlay) LocalPeerID() peer.ID { return o.host.ID() }

// Broadcast publishes data on topic, joining it lazily if needed.
func (o *Overlay) Broadcast(topic string, data []byte) error {
	t, err := o.joinTopic(topic)
	if err != nil {
		return err
	}
	if err := t.Publish(o.ctx, data); err != nil {
		return fmt.Errorf("%w: publish: %v", ErrOverlay, err)
	}
	return nil
}

func (o *Overlay) joinTopic(topic string) (*pubsub.Topic, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.topics[topic]; ok {
		return t, nil
	}
	t, err := o.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("%w: join topic: %v", ErrOverlay, err)
	}
	o.topics[topic] = t
	return t, nil
}

// Subscribe joins topic (if needed) and starts forwarding messages to the
// shared Events() channel as GossipMessage overlay events.
func (o *Overlay) Subscribe(topic string) error {
	t, err := o.joinTopic(topic)
	if err != nil {
		return err
	}
	o.mu.Lock()
	if _, ok := o.subs[topic]; ok {
		o.mu.Unlock()
		return nil
	}
	sub, err := t.Subscribe()
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: subscribe: %v", ErrOverlay, err)
	}
	o.subs[topic] = sub
	o.mu.Unlock()

	go func() {
		for {
			msg, err := sub.Next(o.ctx)
			if err != nil {
				return
			}
			if msg.ReceivedFrom == o.host.ID() {
				continue
			}
			o.emit(OverlayEvent{Gossip: &GossipMessage{Topic: topic, From: msg.ReceivedFrom, Data: msg.Data}})
		}
	}()
	return nil
}

// Advertise announces this peer as a provider for key via the DHT.
func (o *Overlay) Advertise(key string) error {
	c, err := dhtKeyCID(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(o.ctx, 10*time.Second)
	defer cancel()
	if err := o.dht.Provide(ctx, c, true); err != nil {
		return fmt.Errorf("%w: provide: %v", ErrOverlay, err)
	}
	return nil
}

// FindProviders returns up to count peers advertising key.
func (o *Overlay) FindProviders(key string, count int) ([]peer.ID, error) {
	c, err := dhtKeyCID(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(o.ctx, 10*time.Second)
	defer cancel()
	infos, err := o.dht.FindProviders(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: find providers: %v", ErrOverlay, err)
	}
	out := make([]peer.ID, 0, len(infos))
	for i, info := range infos {
		if i >= count {
			break
		}
		out = append(out, info.ID)
	}
	return out, nil
}

// Request opens a stream to p, writes req, and returns its response.
func (o *Overlay) Request(p peer.ID, req Frame) (Frame, error) {
	ctx, cancel := context.WithTimeout(o.ctx, 15*time.Second)
	defer cancel()
	s, err := o.host.NewStream(ctx, p, reqRepProtocol)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: open stream: %v", ErrOverlay, err)
	}
	defer s.Close()

	if err := writeFrame(s, req); err != nil {
		return Frame{}, fmt.Errorf("%w: write request: %v", ErrOverlay, err)
	}
	resp, err := readFrame(bufio.NewReader(s))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: read response: %v", ErrOverlay, err)
	}
	return resp, nil
}

// handleStream services one inbound request/response stream, surfacing
// the request as an overlay event with a Respond closure the node loop
// invokes exactly once.
func (o *Overlay) handleStream(s network.Stream) {
	defer s.Close()
	frame, err := readFrame(bufio.NewReader(s))
	if err != nil {
		return
	}
	done := make(chan struct{})
	req := &InboundRequest{
		From:  s.Conn().RemotePeer(),
		Frame: frame,
		Respond: func(resp Frame) error {
			defer close(done)
			return writeFrame(s, resp)
		},
	}
	o.emit(OverlayEvent{Request: req})
	<-done
}

// writeFrame encodes a single length-prefixed tagged frame: [tag byte]
// [4-byte big-endian length][payload], matching §6's wire shape.
func writeFrame(w io.Writer, f Frame) error {
	if f.Items != nil {
		return writeSearchResults(w, f.Tag, f.Items)
	}
	if _, err := w.Write([]byte{f.Tag}); err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(f.Payload)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

func writeSearchResults(w io.Writer, tag byte, items [][]byte) error {
	if _, err := w.Write([]byte{tag}); err != nil {
		return err
	}
	countBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(countBuf, uint32(len(items)))
	if _, err := w.Write(countBuf); err != nil {
		return err
	}
	for _, item := range items {
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(item)))
		if _, err := w.Write(lenBuf); err != nil {
			return err
		}
		if _, err := w.Write(item); err != nil {
			return err
		}
	}
	return nil
}

func readFrame(r *bufio.Reader) (Frame, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Frame{}, err
	}
	if tag == byte(RespSearchResults) {
		return readSearchResults(r)
	}
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Tag: tag, Payload: payload}, nil
}

func readSearchResults(r *bufio.Reader) (Frame, error) {
	countBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, countBuf); err != nil {
		return Frame{}, err
	}
	count := binary.BigEndian.Uint32(countBuf)
	items := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return Frame{}, err
		}
		length := binary.BigEndian.Uint32(lenBuf)
		item := make([]byte, length)
		if _, err := io.ReadFull(r, item); err != nil {
			return Frame{}, err
		}
		items = append(items, item)
	}
	return Frame{Tag: byte(RespSearchResults), Items: items}, nil
}

// dhtKeyCID derives a CID from an arbitrary DHT key string. §6 names two
// key shapes: raw URL bytes (web fetch) and "search:term:<query>" (search);
// both are just opaque byte strings hashed the same way blob CIDs are.
func dhtKeyCID(key string) (cid.Cid, error) {
	mh, err := multihash.Sum([]byte(key), multihash.SHA2_256, -1)
	if err != nil {
		return cid.Cid{}, fmt.Errorf("%w: hash dht key: %v", ErrOverlay, err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// SearchTermKey formats a search query into its DHT provider-record key.
func SearchTermKey(query string) string {
	return "search:term:" + query
}

// Close tears down subscriptions and the libp2p host.
func (o *Overlay) Close() error {
	o.cancel()
	return o.host.Close()
}

package core

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// Bucket names. blocks/heads/meta/blobs/settings are the five tables §4.4
// names; the idx_* buckets are secondary indices keeping range scans
// lexicographic, grounded on the shape of cross_chain.go's KVStore/Iterator
// interface (Get/Set/Delete/Iterator) though the engine itself is bbolt.
var (
	bucketBlocks    = []byte("blocks")
	bucketHeads     = []byte("heads")
	bucketMeta      = []byte("meta")
	bucketBlobs     = []byte("blobs")
	bucketSettings  = []byte("settings")
	bucketIdxAuthor = []byte("idx_author")
	bucketIdxType   = []byte("idx_type")
	bucketIdxTS     = []byte("idx_ts")
	bucketIdxTarget = []byte("idx_target")
)

const sep = byte(0x00)

// Store is the durable content-addressed event store. It is the only
// shared mutable resource in the system; all access flows through its
// handle (§5).
type Store struct {
	db  *bolt.DB
	log *logrus.Entry

	corruptCount atomic.Uint64
}

// metaRow is the small per-event index record so by_target/by_type scans
// don't need to decode the full event body.
type metaRow struct {
	Author    string    `json:"author"`
	NodeType  string    `json:"node_type"`
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`
}

// OpenStore opens (creating if absent) a bbolt-backed store at path,
// grounded on storage.go's NewStorage(cfg, logger, ...) constructor/
// logging idiom. The actual engine is go.etcd.io/bbolt: a single-writer,
// multi-reader embedded B+tree, matching §5's "single exclusive lock...
// readers serialize" shared-resource model.
func OpenStore(path string, log *logrus.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open bbolt: %v", ErrStorageIO, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBlocks, bucketHeads, bucketMeta, bucketBlobs,
			bucketSettings, bucketIdxAuthor, bucketIdxType, bucketIdxTS, bucketIdxTarget} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init buckets: %v", ErrStorageIO, err)
	}
	return &Store{db: db, log: log.WithField("component", "store")}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func fixedTS(ts time.Time) string {
	return fmt.Sprintf("%020d", ts.UTC().UnixNano())
}

func indexKey(parts ...string) []byte {
	out := make([]byte, 0, 64)
	for i, p := range parts {
		if i > 0 {
			out = append(out, sep)
		}
		out = append(out, []byte(p)...)
	}
	return out
}

// Put persists e atomically into blocks+meta+indices. isLocal controls the
// head-update rule (§4.4): only a locally-authored, locally-accepted event
// advances heads[author]; remote events never do.
func (s *Store) Put(e *Event, isLocal bool) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", ErrStorageIO, err)
	}
	meta := metaRow{Author: e.Author, NodeType: e.Type, Timestamp: e.Timestamp, Target: eventTarget(e.Payload)}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: marshal meta: %v", ErrStorageIO, err)
	}
	tsKey := fixedTS(e.Timestamp)

	return s.db.Update(func(tx *bolt.Tx) error {
		quota := tx.Bucket(bucketSettings).Get([]byte(quotaKey))
		if len(quota) == 8 {
			limit := binary.BigEndian.Uint64(quota)
			if limit > 0 {
				used := currentUsed(tx)
				if used+uint64(len(data)) > limit {
					return ErrQuotaExceeded
				}
			}
		}

		if err := tx.Bucket(bucketBlocks).Put([]byte(e.ID), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketMeta).Put([]byte(e.ID), metaBytes); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIdxAuthor).Put(indexKey(e.Author, tsKey, e.ID), []byte(e.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIdxType).Put(indexKey(e.Type, tsKey, e.ID), []byte(e.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIdxTS).Put(indexKey(tsKey, e.ID), []byte(e.ID)); err != nil {
			return err
		}
		if meta.Target != "" {
			if err := tx.Bucket(bucketIdxTarget).Put(indexKey(meta.Target, tsKey, e.ID), []byte(e.ID)); err != nil {
				return err
			}
		}
		if isLocal {
			if err := tx.Bucket(bucketHeads).Put([]byte(e.Author), []byte(e.ID)); err != nil {
				return err
			}
		}
		addUsed(tx, uint64(len(data)))
		return nil
	})
}

func currentUsed(tx *bolt.Tx) uint64 {
	v := tx.Bucket(bucketSettings).Get([]byte(usedKey))
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func addUsed(tx *bolt.Tx, delta uint64) {
	cur := currentUsed(tx)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, cur+delta)
	_ = tx.Bucket(bucketSettings).Put([]byte(usedKey), buf)
}

func subUsed(tx *bolt.Tx, delta uint64) {
	cur := currentUsed(tx)
	if delta > cur {
		delta = cur
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, cur-delta)
	_ = tx.Bucket(bucketSettings).Put([]byte(usedKey), buf)
}

func (s *Store) decode(id string, data []byte) (*Event, bool) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		if errors.Is(err, ErrProtocolMismatch) {
			// Stored but not decodable: ignored by projections, not a
			// corruption. Caller-specific paths that need the raw type
			// string should use GetBytes instead.
			return nil, false
		}
		s.corruptCount.Add(1)
		s.log.WithField("id", id).WithError(err).Warn("corrupt event row skipped")
		return nil, false
	}
	return &e, true
}

// Get returns the decoded event for id.
func (s *Store) Get(id string) (*Event, error) {
	b, err := s.GetBytes(id)
	if err != nil {
		return nil, err
	}
	e, ok := s.decode(id, b)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, id)
	}
	return e, nil
}

// GetBytes returns the raw stored bytes for id.
func (s *Store) GetBytes(id string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return out, nil
}

// Has reports whether id is present. UnknownParent (§7) is modeled as the
// negation of Has, never as an error value.
func (s *Store) Has(id string) bool {
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketBlocks).Get([]byte(id)) != nil
		return nil
	})
	return found
}

func (s *Store) collect(idx []byte, prefix string) ([]*Event, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(idx).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			ids = append(ids, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return s.getMany(ids)
}

func hasPrefix(k, p []byte) bool {
	if len(k) < len(p) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

func (s *Store) getMany(ids []string) ([]*Event, error) {
	out := make([]*Event, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBytes(id)
		if err != nil {
			continue
		}
		if e, ok := s.decode(id, b); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every decodable event, skipping corrupt/unparseable rows
// (tracked by CorruptCount), per §4.4's failure model.
func (s *Store) All() ([]*Event, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBlocks).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ids = append(ids, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return s.getMany(ids)
}

// ByAuthor returns a's events, oldest first (index order).
func (s *Store) ByAuthor(a string) ([]*Event, error) {
	return s.collect(bucketIdxAuthor, a+string(sep))
}

// ByType returns every event of type t, oldest first.
func (s *Store) ByType(t string) ([]*Event, error) {
	return s.collect(bucketIdxType, t+string(sep))
}

// ByTarget returns every event targeting tgt, oldest first.
func (s *Store) ByTarget(tgt string) ([]*Event, error) {
	return s.collect(bucketIdxTarget, tgt+string(sep))
}

// ByTypeAndAuthor filters ByType(t) down to author a.
func (s *Store) ByTypeAndAuthor(t, a string) ([]*Event, error) {
	all, err := s.ByType(t)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.Author == a {
			out = append(out, e)
		}
	}
	return out, nil
}

// ByTypeSince returns events of type t with Timestamp >= since, used by
// time-pruned payload queries (e.g. active stories).
func (s *Store) ByTypeSince(t string, since time.Time) ([]*Event, error) {
	all, err := s.ByType(t)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Head returns the local signer's latest accepted event id for author.
func (s *Store) Head(author string) (string, bool) {
	var id string
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeads).Get([]byte(author))
		if v != nil {
			id = string(v)
		}
		return nil
	})
	return id, id != ""
}

// UpdateHead explicitly sets heads[author] = id, used when replaying or
// repairing local head state.
func (s *Store) UpdateHead(author, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHeads).Put([]byte(author), []byte(id))
	})
}

// StoreStats summarizes storage usage (§4.4 "Storage stats").
type StoreStats struct {
	Count        int
	Bytes        uint64
	ByType       map[string]int
	CorruptCount uint64
}

// Stats computes storage usage by scanning the meta bucket.
func (s *Store) Stats() (StoreStats, error) {
	stats := StoreStats{ByType: map[string]int{}, CorruptCount: s.corruptCount.Load()}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m metaRow
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			stats.Count++
			stats.ByType[m.NodeType]++
		}
		stats.Bytes = currentUsed(tx)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return stats, nil
}

// PutBlob stores raw bytes keyed by a CIDv1 computed over them, reusing
// storage.go's CID-computation idiom (cid.NewCidV1(cid.Raw, ...)) for
// content addressing independent of the event hashing scheme.
func (s *Store) PutBlob(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("%w: hash blob: %v", ErrStorageIO, err)
	}
	blobCID := cid.NewCidV1(cid.Raw, mh).String()

	type blobRecord struct {
		Size      int       `json:"size"`
		CreatedAt time.Time `json:"created_at"`
	}
	rec := blobRecord{Size: len(data), CreatedAt: time.Now().UTC()}
	recBytes, _ := json.Marshal(rec)

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Put([]byte(blobCID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketBlobs).Put([]byte(blobCID+":meta"), recBytes)
	})
	if err != nil {
		return "", fmt.Errorf("%w: put blob: %v", ErrStorageIO, err)
	}
	return blobCID, nil
}

// GetBlob returns the bytes stored for a blob content id.
func (s *Store) GetBlob(id string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return out, nil
}

// PruneExpired deletes the block, meta row and index rows of every
// story:v1 event older than 24h, except a story that a stored event still
// lists in prev (an ancestor still reachable via prev is never pruned).
func (s *Store) PruneExpired(now time.Time) (int, error) {
	cutoff := now.Add(-24 * time.Hour)
	stories, err := s.ByType("story:v1")
	if err != nil {
		return 0, err
	}
	referenced, err := s.referencedParents()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, e := range stories {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		if referenced[e.ID] {
			continue
		}
		if err := s.deleteEvent(e); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

func (s *Store) referencedParents() (map[string]bool, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	refs := make(map[string]bool)
	for _, e := range all {
		for _, p := range e.Prev {
			refs[p] = true
		}
	}
	return refs, nil
}

func (s *Store) deleteEvent(e *Event) error {
	tsKey := fixedTS(e.Timestamp)
	target := eventTarget(e.Payload)
	return s.db.Update(func(tx *bolt.Tx) error {
		size := len(tx.Bucket(bucketBlocks).Get([]byte(e.ID)))
		if err := tx.Bucket(bucketBlocks).Delete([]byte(e.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketMeta).Delete([]byte(e.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIdxAuthor).Delete(indexKey(e.Author, tsKey, e.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIdxType).Delete(indexKey(e.Type, tsKey, e.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIdxTS).Delete(indexKey(tsKey, e.ID)); err != nil {
			return err
		}
		if target != "" {
			if err := tx.Bucket(bucketIdxTarget).Delete(indexKey(target, tsKey, e.ID)); err != nil {
				return err
			}
		}
		subUsed(tx, uint64(size))
		return nil
	})
}

// CorruptCount returns the number of rows skipped by All()/collect() due
// to decode failure since the store was opened.
func (s *Store) CorruptCount() uint64 { return s.corruptCount.Load() }

// sortByTimestampDesc is a shared helper used by projections (§4.5) to
// rank events newest-first, ties broken by content id per §5's ordering
// guarantee.
func sortByTimestampDesc(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID > events[j].ID
	})
}

func sortByTimestampAsc(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
}

package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Event is an immutable signed record with a typed payload and parent
// links. Construct via NewEvent; never mutate a constructed Event.
type Event struct {
	Type      string   `json:"type"`
	ID        string   `json:"id"`
	Payload   Payload  `json:"-"`
	Prev      []string `json:"prev"`
	Author    string   `json:"author"`
	Nonce     uint64   `json:"nonce"`
	Timestamp time.Time `json:"timestamp"`
	Sig       []byte   `json:"sig"`
}

// eventWire is the on-the-wire JSON shape: Payload is split into its
// discriminator and raw data so Event can implement json.Marshaler /
// json.Unmarshaler without exposing the interface field directly.
type eventWire struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Prev      []string        `json:"prev"`
	Author    string          `json:"author"`
	Nonce     uint64          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
	Sig       []byte          `json:"sig"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	wrapped, err := json.Marshal(canonicalPayload{Type: e.Type, Data: data})
	if err != nil {
		return nil, err
	}
	prev := e.Prev
	if prev == nil {
		prev = []string{}
	}
	return json.Marshal(eventWire{
		Type:      e.Type,
		ID:        e.ID,
		Payload:   wrapped,
		Prev:      prev,
		Author:    e.Author,
		Nonce:     e.Nonce,
		Timestamp: e.Timestamp,
		Sig:       e.Sig,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w eventWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var wrapped canonicalPayload
	if err := json.Unmarshal(w.Payload, &wrapped); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	factory, ok := payloadFactories[w.Type]
	if !ok {
		// ProtocolMismatch: event is stored verbatim by the caller but not
		// decodable into a typed Payload here. Surface as a distinct
		// sentinel so the store layer can keep the raw bytes anyway.
		return fmt.Errorf("%w: unknown payload type %q", ErrProtocolMismatch, w.Type)
	}
	payload := factory()
	if err := json.Unmarshal(wrapped.Data, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	e.Type = w.Type
	e.ID = w.ID
	e.Payload = payload
	e.Prev = w.Prev
	e.Author = w.Author
	e.Nonce = w.Nonce
	e.Timestamp = w.Timestamp
	e.Sig = w.Sig
	return nil
}

// NewEvent builds, hashes and signs a new event per §4.3:
// 1. record current timestamp, 2. fill all fields but id/sig,
// 3. compute id (I1), 4. sign id's bytes, 5. return the immutable event.
func NewEvent(id *Identity, payload Payload, prev []string, nonce uint64) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrInvalidEvent, err)
	}
	ts := time.Now().UTC()
	typ := payload.PayloadType()
	author := id.AuthorID()

	canon, err := canonicalBytes(typ, data, prev, author, nonce, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: canonicalize: %v", ErrInvalidEvent, err)
	}
	cid := contentID(canon)
	sig := id.Sign([]byte(cid))

	if prev == nil {
		prev = []string{}
	}
	return &Event{
		Type:      typ,
		ID:        cid,
		Payload:   payload,
		Prev:      prev,
		Author:    author,
		Nonce:     nonce,
		Timestamp: ts,
		Sig:       sig,
	}, nil
}

// Verify re-derives the content id and checks the signature, per I1+I2.
// It returns a wrapped ErrInvalidEvent describing which check failed:
// InvalidHash if recomputation disagrees, InvalidSignature if the
// cryptographic check fails, BadAuthor if the public key can't be
// reconstructed from Author.
func (e *Event) Verify() error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("%w: InvalidHash: marshal payload: %v", ErrInvalidEvent, err)
	}
	canon, err := canonicalBytes(e.Type, data, e.Prev, e.Author, e.Nonce, e.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: InvalidHash: canonicalize: %v", ErrInvalidEvent, err)
	}
	want := contentID(canon)
	if !bytes.Equal([]byte(want), []byte(e.ID)) {
		return fmt.Errorf("%w: InvalidHash", ErrInvalidEvent)
	}

	pub, err := PubFromAuthorID(e.Author)
	if err != nil {
		return fmt.Errorf("%w: BadAuthor: %v", ErrInvalidEvent, err)
	}
	if !Verify(pub, []byte(e.ID), e.Sig) {
		return fmt.Errorf("%w: InvalidSignature", ErrInvalidEvent)
	}
	return nil
}

// eventTarget extracts the payload-specific "target" used by the store's
// meta index and by_target query (§4.4): message recipient, vote's
// proposal, comment's parent, follow's target, token's beneficiary, and
// so on. Payload kinds with no natural target return "".
func eventTarget(p Payload) string {
	switch v := p.(type) {
	case *ProofPayload:
		return v.Target
	case *MessagePayload:
		return v.Recipient
	case *TokenPayload:
		if v.Target != nil {
			return *v.Target
		}
	case *NamePayload:
		return v.Target
	case *VotePayload:
		return v.ProposalID
	case *CandidacyVotePayload:
		return v.CandidacyID
	case *RecallVotePayload:
		return v.RecallID
	case *ApplicationVotePayload:
		return v.ApplicationID
	case *ReportEscalatePayload:
		return v.ReportID
	case *JuryVotePayload:
		return v.CaseID
	case *CommentPayload:
		return v.Target
	case *LikePayload:
		return v.Target
	case *FollowPayload:
		return v.Target
	case *RecallPayload:
		return v.TargetOfficial
	case *ContractCallPayload:
		return v.ContractID
	case *ExamSubmissionPayload:
		return v.ExamID
	case *CertificationPayload:
		return v.Subject
	case *FilePayload:
		return v.BlobCID
	}
	return ""
}

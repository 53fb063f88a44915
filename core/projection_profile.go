package core

import "fmt"

// RecipientAgreementKey resolves a recipient's published X25519
// key-agreement public key (hex) from their current profile, for callers
// about to encrypt a message:v1 payload. It wraps ErrRecipientProfileUnknown
// if the recipient has no profile or never published an encryption key.
func RecipientAgreementKey(s *Store, recipient string) (string, error) {
	p, err := Profile(s, recipient)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecipientProfileUnknown, err)
	}
	if p.EncryptionPubkey == nil || *p.EncryptionPubkey == "" {
		return "", fmt.Errorf("%w: no encryption_pubkey published", ErrRecipientProfileUnknown)
	}
	return *p.EncryptionPubkey, nil
}

// Profile walks A's chain from its head along prev[0] and returns the
// most recent profile:v1 payload encountered (§4.5). For a remote
// author with no local head, the walk starts from the newest event by
// author + timestamp instead, per the head-ambiguity resolution (§9).
func Profile(s *Store, a string) (*ProfilePayload, error) {
	startID, ok := s.Head(a)
	if !ok {
		events, err := s.ByAuthor(a)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return nil, ErrNotFound
		}
		sortByTimestampDesc(events)
		startID = events[0].ID
	}

	id := startID
	visited := map[string]bool{}
	for id != "" && !visited[id] {
		visited[id] = true
		e, err := s.Get(id)
		if err != nil {
			break
		}
		if p, ok := e.Payload.(*ProfilePayload); ok {
			return p, nil
		}
		if len(e.Prev) == 0 {
			break
		}
		id = e.Prev[0]
	}
	return nil, ErrNotFound
}

// NetworkSize is the count of distinct profile-publishing authors, the N
// used by the verification threshold (§4.5.1) and the proposal status
// machine (§4.5.2).
func NetworkSize(s *Store) (int, error) {
	events, err := s.ByType("profile:v1")
	if err != nil {
		return 0, err
	}
	authors := map[string]bool{}
	for _, e := range events {
		authors[e.Author] = true
	}
	return len(authors), nil
}

// VerificationThreshold returns the required approval count for a
// network of size n (§4.5.1).
func VerificationThreshold(n int) int {
	switch {
	case n <= 100:
		return 1
	case n <= 1000:
		return 3
	case n <= 10000:
		return 5
	default:
		return 10
	}
}

// ApplicationApprovals counts distinct approving voters (newest vote per
// voter) on author's most recent application:v1 event.
func ApplicationApprovals(s *Store, author string) (int, error) {
	apps, err := s.ByTypeAndAuthor("application:v1", author)
	if err != nil {
		return 0, err
	}
	if len(apps) == 0 {
		return 0, nil
	}
	sortByTimestampDesc(apps)
	appID := apps[0].ID

	votes, err := s.ByTarget(appID)
	if err != nil {
		return 0, err
	}
	newestByVoter := map[string]*Event{}
	for _, e := range votes {
		if e.Type != "application_vote:v1" {
			continue
		}
		cur, ok := newestByVoter[e.Author]
		if !ok || e.Timestamp.After(cur.Timestamp) {
			newestByVoter[e.Author] = e
		}
	}
	approvals := 0
	for _, e := range newestByVoter {
		if p, ok := e.Payload.(*ApplicationVotePayload); ok && p.Approve {
			approvals++
		}
	}
	return approvals, nil
}

// isFounderProfile reports whether profile carries a valid founder
// claim: a founder id of at most 100 (§ Glossary "Founder").
func isFounderProfile(profile *ProfilePayload) bool {
	return profile != nil && profile.FounderID != nil && *profile.FounderID <= 100
}

// Verified reports whether P is verified per the vouch closure (§4.5):
// (a) P's profile carries a founder id <= 100, (b) P's application has
// reached the approval threshold, or (c) some author of a proof
// targeting P is itself verified, recursed with a visited set to break
// cycles.
func Verified(s *Store, p string) (bool, error) {
	return verifiedRec(s, p, map[string]bool{})
}

func verifiedRec(s *Store, p string, visited map[string]bool) (bool, error) {
	if visited[p] {
		return false, nil
	}
	visited[p] = true

	profile, err := Profile(s, p)
	if err == nil && isFounderProfile(profile) {
		return true, nil
	}

	n, err := NetworkSize(s)
	if err != nil {
		return false, err
	}
	approvals, err := ApplicationApprovals(s, p)
	if err != nil {
		return false, err
	}
	if approvals >= VerificationThreshold(n) {
		return true, nil
	}

	proofs, err := s.ByTarget(p)
	if err != nil {
		return false, err
	}
	for _, e := range proofs {
		if e.Type != "proof:v1" {
			continue
		}
		ok, err := verifiedRec(s, e.Author, visited)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasCertification reports whether author's newest certification:v1 event
// of the given kind targets them, used by C9 role gates.
func HasCertification(s *Store, author string, kind CertificationKind) (bool, error) {
	events, err := s.ByTarget(author)
	if err != nil {
		return false, err
	}
	var newest *Event
	for _, e := range events {
		if e.Type != "certification:v1" {
			continue
		}
		p, ok := e.Payload.(*CertificationPayload)
		if !ok || p.Kind != kind {
			continue
		}
		if newest == nil || e.Timestamp.After(newest.Timestamp) {
			newest = e
		}
	}
	return newest != nil, nil
}

// Reputation computes P's scalar reputation score (§4.5): verification
// component (founder=100, verified-via-proofs=50), content component
// (min(posts+web, 50)), governance component (min(2*votes, 50), +100 if
// P is an active official), storage component (reserved, always 0).
func Reputation(s *Store, p string) (int, error) {
	score := 0

	profile, err := Profile(s, p)
	isFounder := err == nil && isFounderProfile(profile)
	verified, err := Verified(s, p)
	if err != nil {
		return 0, err
	}
	switch {
	case isFounder:
		score += 100
	case verified:
		score += 50
	}

	posts, err := s.ByTypeAndAuthor("post:v1", p)
	if err != nil {
		return 0, err
	}
	webs, err := s.ByTypeAndAuthor("web:v1", p)
	if err != nil {
		return 0, err
	}
	content := len(posts) + len(webs)
	if content > 50 {
		content = 50
	}
	score += content

	votes, err := s.ByTypeAndAuthor("vote:v1", p)
	if err != nil {
		return 0, err
	}
	gov := 2 * len(votes)
	if gov > 50 {
		gov = 50
	}
	score += gov

	officials, err := ActiveOfficials(s)
	if err != nil {
		return 0, err
	}
	for _, official := range officials {
		if official == p {
			score += 100
			break
		}
	}

	return score, nil
}

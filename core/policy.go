package core

import (
	"fmt"
	"time"
)

// applicationVoteCooldown is the minimum gap between two votes by the
// same author on the same application (§4.9).
const applicationVoteCooldown = 12 * time.Hour

// ubiCadence is the minimum gap between two UBI-memo mint claims by the
// same author (§4.9).
const ubiCadence = 86400 * time.Second

// requiresVerification lists the payload types §4.9 gates behind
// Verified(author): anything that commits the network to a civic
// decision or a claim on shared resources.
var requiresVerification = map[string]bool{
	"proposal:v1":          true,
	"vote:v1":              true,
	"candidacy:v1":         true,
	"candidacy_vote:v1":    true,
	"recall:v1":            true,
	"recall_vote:v1":       true,
	"report:v1":            true,
	"report_escalate:v1":   true,
	"oversight_case:v1":    true,
	"jury_vote:v1":         true,
}

// checkVerificationGate rejects payload types in requiresVerification
// from an unverified author.
func checkVerificationGate(vc *VerifyCache, author, payloadType string) error {
	if !requiresVerification[payloadType] {
		return nil
	}
	ok, err := vc.Verified(author)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s requires a verified author", ErrPolicyDenied, payloadType)
	}
	return nil
}

// checkRoleGate rejects a oversight_case:v1 or jury_vote:v1 from an
// author who does not hold the governance-roles certification (§4.9's
// "role gates via HasCertification").
func checkRoleGate(s *Store, author, payloadType string) error {
	switch payloadType {
	case "oversight_case:v1", "jury_vote:v1":
		ok, err := HasCertification(s, author, CertGovernanceRoles)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s requires the governance-roles certification", ErrPolicyDenied, payloadType)
		}
	}
	return nil
}

// checkFounderClaim rejects a profile:v1 claiming a founder_id above
// 100, or any founder_id at all once 100 profiles already exist on the
// network, per the Glossary's "Founder" entry: claimable only while
// fewer than 100 profiles exist.
func checkFounderClaim(s *Store, p *ProfilePayload) error {
	if p.FounderID == nil {
		return nil
	}
	if *p.FounderID > 100 {
		return fmt.Errorf("%w: founder_id must be <= 100", ErrPolicyDenied)
	}
	n, err := NetworkSize(s)
	if err != nil {
		return err
	}
	if n >= 100 {
		return fmt.Errorf("%w: founder slots are closed once 100 profiles exist", ErrPolicyDenied)
	}
	return nil
}

// checkSelfVouch rejects a proof:v1 whose target is the author.
func checkSelfVouch(author string, p *ProofPayload) error {
	if p.Target == author {
		return fmt.Errorf("%w: cannot vouch for yourself", ErrPolicyDenied)
	}
	return nil
}

// checkDuplicateProof rejects a proof:v1 if author has already vouched
// for this target.
func checkDuplicateProof(s *Store, author string, p *ProofPayload) error {
	events, err := s.ByType("proof:v1")
	if err != nil {
		return err
	}
	for _, e := range events {
		pp, ok := e.Payload.(*ProofPayload)
		if !ok {
			continue
		}
		if e.Author == author && pp.Target == p.Target {
			return fmt.Errorf("%w: already vouched for this author", ErrPolicyDenied)
		}
	}
	return nil
}

// checkApplicationVoteCooldown rejects a second application_vote:v1 by
// the same author on the same application within applicationVoteCooldown.
func checkApplicationVoteCooldown(s *Store, author string, p *ApplicationVotePayload, now time.Time) error {
	events, err := s.ByTarget(p.ApplicationID)
	if err != nil {
		return err
	}
	for _, e := range events {
		if e.Type != "application_vote:v1" || e.Author != author {
			continue
		}
		if now.Sub(e.Timestamp) < applicationVoteCooldown {
			return fmt.Errorf("%w: application vote cooldown active", ErrPolicyDenied)
		}
	}
	return nil
}

// checkUBICadence rejects a Mint with memo "ubi" if author has already
// claimed within ubiCadence.
func checkUBICadence(s *Store, author string, p *TokenPayload, now time.Time) error {
	if p.Action != TokenMint || p.Memo == nil || *p.Memo != ubiMemoTag {
		return nil
	}
	last, ok, err := LastUBIClaim(s, author)
	if err != nil {
		return err
	}
	if ok && now.Sub(last) < ubiCadence {
		return fmt.Errorf("%w: ubi cadence active", ErrPolicyDenied)
	}
	return nil
}

// TaxSplit computes the net and tax amounts a SendToken of amount should
// produce at the given tax rate (integer percent), per §4.9's
// "tax-on-transfer burn-split": the tax portion is burned separately
// from the recipient-targeted transfer rather than folded into it.
func TaxSplit(amount int64, taxRatePercent int) (net, tax int64) {
	return taxSplit(amount, taxRatePercent)
}

func taxSplit(amount int64, taxRatePercent int) (net, tax int64) {
	if taxRatePercent <= 0 {
		return amount, 0
	}
	tax = amount * int64(taxRatePercent) / 100
	return amount - tax, tax
}

// ValidatePayload runs every applicable policy gate for a payload about
// to be signed and stored, whether the caller is the node's own event
// loop or an out-of-process tool writing to the same store. now is
// passed explicitly so every gate stays a pure function of
// (store, input, now).
func ValidatePayload(s *Store, vc *VerifyCache, author string, payload Payload, now time.Time) error {
	return checkPolicy(s, vc, author, payload, now)
}

func checkPolicy(s *Store, vc *VerifyCache, author string, payload Payload, now time.Time) error {
	if err := checkVerificationGate(vc, author, payload.PayloadType()); err != nil {
		return err
	}
	if err := checkRoleGate(s, author, payload.PayloadType()); err != nil {
		return err
	}
	switch p := payload.(type) {
	case *ProfilePayload:
		if err := checkFounderClaim(s, p); err != nil {
			return err
		}
	case *ProofPayload:
		if err := checkSelfVouch(author, p); err != nil {
			return err
		}
		if err := checkDuplicateProof(s, author, p); err != nil {
			return err
		}
	case *ApplicationVotePayload:
		if err := checkApplicationVoteCooldown(s, author, p, now); err != nil {
			return err
		}
	case *TokenPayload:
		if err := checkUBICadence(s, author, p, now); err != nil {
			return err
		}
	}
	return nil
}

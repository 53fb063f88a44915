package core

import "time"

// ubiMemoTag is the fixed memo value that marks a Mint as a UBI payout.
const ubiMemoTag = "ubi"

// Balance sums A's token:v1 events per §4.5: +amount on Mint and
// TransferClaim, −amount on Burn, 0 otherwise (Escrow/MintReward do not
// move the plain balance). May be negative if Burns outpace Claims.
func Balance(s *Store, a string) (int64, error) {
	events, err := s.ByTypeAndAuthor("token:v1", a)
	if err != nil {
		return 0, err
	}
	var bal int64
	for _, e := range events {
		p, ok := e.Payload.(*TokenPayload)
		if !ok {
			continue
		}
		switch p.Action {
		case TokenMint, TokenTransferClaim:
			bal += int64(p.Amount)
		case TokenBurn:
			bal -= int64(p.Amount)
		}
	}
	return bal, nil
}

// PendingTransfers returns Burn events targeting A that A has not yet
// claimed via a TransferClaim whose ref_cid points back to the Burn.
func PendingTransfers(s *Store, a string) ([]*Event, error) {
	targeting, err := s.ByTarget(a)
	if err != nil {
		return nil, err
	}
	var burns []*Event
	for _, e := range targeting {
		if e.Type != "token:v1" {
			continue
		}
		p, ok := e.Payload.(*TokenPayload)
		if ok && p.Action == TokenBurn {
			burns = append(burns, e)
		}
	}

	claims, err := s.ByTypeAndAuthor("token:v1", a)
	if err != nil {
		return nil, err
	}
	claimed := map[string]bool{}
	for _, e := range claims {
		p, ok := e.Payload.(*TokenPayload)
		if ok && p.Action == TokenTransferClaim && p.RefCID != nil {
			claimed[*p.RefCID] = true
		}
	}

	var pending []*Event
	for _, b := range burns {
		if !claimed[b.ID] {
			pending = append(pending, b)
		}
	}
	sortByTimestampAsc(pending)
	return pending, nil
}

// LastUBIClaim returns the timestamp of A's newest UBI Mint, if any.
func LastUBIClaim(s *Store, a string) (time.Time, bool, error) {
	events, err := s.ByTypeAndAuthor("token:v1", a)
	if err != nil {
		return time.Time{}, false, err
	}
	var newest *Event
	for _, e := range events {
		p, ok := e.Payload.(*TokenPayload)
		if !ok || p.Action != TokenMint || p.Memo == nil || *p.Memo != ubiMemoTag {
			continue
		}
		if newest == nil || e.Timestamp.After(newest.Timestamp) {
			newest = e
		}
	}
	if newest == nil {
		return time.Time{}, false, nil
	}
	return newest.Timestamp, true, nil
}

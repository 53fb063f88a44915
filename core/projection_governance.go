package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Tally buckets a proposal's latest-per-voter votes (§4.5).
type Tally struct {
	Yes          int
	No           int
	Abstain      int
	Petition     int
	UniqueVoters int
}

// ProposalTally keeps only the newest vote per voter on proposalID and
// buckets the result.
func ProposalTally(s *Store, proposalID string) (Tally, error) {
	votes, err := s.ByTarget(proposalID)
	if err != nil {
		return Tally{}, err
	}
	newest := map[string]*Event{}
	for _, e := range votes {
		if e.Type != "vote:v1" {
			continue
		}
		cur, ok := newest[e.Author]
		if !ok || e.Timestamp.After(cur.Timestamp) || (e.Timestamp.Equal(cur.Timestamp) && e.ID > cur.ID) {
			newest[e.Author] = e
		}
	}
	var t Tally
	for _, e := range newest {
		p, ok := e.Payload.(*VotePayload)
		if !ok {
			continue
		}
		t.UniqueVoters++
		switch p.Choice {
		case VoteYes:
			t.Yes++
		case VoteNo:
			t.No++
		case VoteAbstain:
			t.Abstain++
		case VotePetitionSignature:
			t.Petition++
		}
	}
	return t, nil
}

type proposalRow struct {
	PetitionFrac float64
	VotingHours  float64
	PassFrac     float64
}

var proposalTable = map[ProposalKind]proposalRow{
	ProposalStandard:         {0.01, 168, 0.50},
	ProposalConstitutional:   {0.01, 168, 0.66},
	ProposalEmergency:        {0.05, 48, 0.50},
	ProposalSetTax:           {0.01, 168, 0.50},
	ProposalDefineMinistries: {0.01, 168, 0.50},
}

// ProposalState enumerates the proposal status machine's outcomes (§4.5.2).
type ProposalState string

const (
	StatePetitioning ProposalState = "Petitioning"
	StateVoting      ProposalState = "Voting"
	StateFailed      ProposalState = "Failed"
	StatePassed      ProposalState = "Passed"
	StateRejected    ProposalState = "Rejected"
)

// ProposalStatusResult is the full status-machine output for a proposal.
type ProposalStatusResult struct {
	State            ProposalState
	PetitionSigned   int
	PetitionRequired int
	VotingHoursLeft  float64
	FailReason       string // "NoVotes" when State == Failed
}

// ProposalStatus runs the status machine of §4.5.2 for proposal p as of
// now.
func ProposalStatus(s *Store, proposalID string, now time.Time) (ProposalStatusResult, error) {
	proposal, err := s.Get(proposalID)
	if err != nil {
		return ProposalStatusResult{}, err
	}
	payload, ok := proposal.Payload.(*ProposalPayload)
	if !ok {
		return ProposalStatusResult{}, fmt.Errorf("%w: not a proposal", ErrInvalidEvent)
	}
	row, ok := proposalTable[payload.Kind]
	if !ok {
		return ProposalStatusResult{}, fmt.Errorf("%w: unknown proposal kind %q", ErrProtocolMismatch, payload.Kind)
	}

	n, err := NetworkSize(s)
	if err != nil {
		return ProposalStatusResult{}, err
	}
	if n < 1 {
		n = 1
	}
	tally, err := ProposalTally(s, proposalID)
	if err != nil {
		return ProposalStatusResult{}, err
	}

	sSigned := tally.Petition + tally.Yes
	required := int(math.Ceil(float64(n) * row.PetitionFrac))

	if sSigned < required {
		return ProposalStatusResult{State: StatePetitioning, PetitionSigned: sSigned, PetitionRequired: required}, nil
	}

	elapsed := now.Sub(proposal.Timestamp).Hours()
	if elapsed < row.VotingHours {
		return ProposalStatusResult{State: StateVoting, PetitionSigned: sSigned, PetitionRequired: required, VotingHoursLeft: row.VotingHours - elapsed}, nil
	}

	if tally.Yes+tally.No == 0 {
		return ProposalStatusResult{State: StateFailed, FailReason: "NoVotes"}, nil
	}
	if float64(tally.Yes)/float64(tally.Yes+tally.No) > row.PassFrac {
		return ProposalStatusResult{State: StatePassed}, nil
	}
	return ProposalStatusResult{State: StateRejected}, nil
}

// CandidateTally counts distinct authors who have ever cast a
// candidacy_vote:v1 for candidacyID (latest wins; duplicates collapse).
func CandidateTally(s *Store, candidacyID string) (int, error) {
	votes, err := s.ByTarget(candidacyID)
	if err != nil {
		return 0, err
	}
	voters := map[string]bool{}
	for _, e := range votes {
		if e.Type == "candidacy_vote:v1" {
			voters[e.Author] = true
		}
	}
	return len(voters), nil
}

// ActiveOfficials computes, for each active ministry, the candidacy with
// the highest tally (≥1 vote, ties broken by newest candidacy timestamp),
// returning a map of ministry name to the winning candidate's author id.
func ActiveOfficials(s *Store) (map[string]string, error) {
	ministries, err := ActiveMinistries(s)
	if err != nil {
		return nil, err
	}
	candidacies, err := s.ByType("candidacy:v1")
	if err != nil {
		return nil, err
	}

	byMinistry := map[string][]*Event{}
	for _, e := range candidacies {
		p, ok := e.Payload.(*CandidacyPayload)
		if !ok {
			continue
		}
		byMinistry[p.Ministry] = append(byMinistry[p.Ministry], e)
	}

	officials := map[string]string{}
	for _, ministry := range ministries {
		var winner *Event
		winnerTally := 0
		for _, c := range byMinistry[ministry] {
			tally, err := CandidateTally(s, c.ID)
			if err != nil {
				return nil, err
			}
			if tally < 1 {
				continue
			}
			if winner == nil || tally > winnerTally ||
				(tally == winnerTally && c.Timestamp.After(winner.Timestamp)) {
				winner = c
				winnerTally = tally
			}
		}
		if winner != nil {
			officials[ministry] = winner.Author
		}
	}
	return officials, nil
}

// RecallTally is like ProposalTally but two-valued (Remove/Keep), one
// vote per voter.
func RecallTally(s *Store, recallID string) (remove, keep int, err error) {
	votes, err := s.ByTarget(recallID)
	if err != nil {
		return 0, 0, err
	}
	newest := map[string]*Event{}
	for _, e := range votes {
		if e.Type != "recall_vote:v1" {
			continue
		}
		cur, ok := newest[e.Author]
		if !ok || e.Timestamp.After(cur.Timestamp) {
			newest[e.Author] = e
		}
	}
	for _, e := range newest {
		p, ok := e.Payload.(*RecallVotePayload)
		if !ok {
			continue
		}
		switch p.Choice {
		case RecallRemove:
			remove++
		case RecallKeep:
			keep++
		}
	}
	return remove, keep, nil
}

// CurrentTaxRate scans SetTax proposals newest first and returns the rate
// of the newest one with status Passed, else 0.
func CurrentTaxRate(s *Store, now time.Time) (int, error) {
	proposals, err := s.ByType("proposal:v1")
	if err != nil {
		return 0, err
	}
	sortByTimestampDesc(proposals)
	for _, e := range proposals {
		p, ok := e.Payload.(*ProposalPayload)
		if !ok || p.Kind != ProposalSetTax || p.Param == nil {
			continue
		}
		status, err := ProposalStatus(s, e.ID, now)
		if err != nil {
			continue
		}
		if status.State != StatePassed {
			continue
		}
		var rate int
		if _, err := fmt.Sscanf(*p.Param, "%d", &rate); err != nil {
			continue
		}
		return rate, nil
	}
	return 0, nil
}

// defaultMinistries is the built-in cabinet used until a DefineMinistries
// proposal passes (§4.5).
var defaultMinistries = []string{
	"Treasury", "Infrastructure", "Justice", "Health", "Education", "Foreign Affairs",
}

// ActiveMinistries scans DefineMinistries proposals newest first and
// returns the list of the newest one with status Passed, else the
// built-in default set.
func ActiveMinistries(s *Store, now ...time.Time) ([]string, error) {
	at := time.Now().UTC()
	if len(now) > 0 {
		at = now[0]
	}
	proposals, err := s.ByType("proposal:v1")
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(proposals)
	for _, e := range proposals {
		p, ok := e.Payload.(*ProposalPayload)
		if !ok || p.Kind != ProposalDefineMinistries || p.Param == nil {
			continue
		}
		status, err := ProposalStatus(s, e.ID, at)
		if err != nil {
			continue
		}
		if status.State != StatePassed {
			continue
		}
		var list []string
		if err := json.Unmarshal([]byte(*p.Param), &list); err != nil {
			continue
		}
		return list, nil
	}
	out := make([]string, len(defaultMinistries))
	copy(out, defaultMinistries)
	return out, nil
}

package core

import (
	"testing"
	"time"
)

// ------------------------------------------------------------
// ProposalTally: latest vote per voter wins
// ------------------------------------------------------------

func TestProposalTallyLatestVoteWins(t *testing.T) {
	s := newTestStore(t)
	voter := newTestIdentity(t)
	first := putEvent(t, s, voter, &VotePayload{ProposalID: "prop1", Choice: VoteNo}, nil, 1)
	changed, err := NewEvent(voter, &VotePayload{ProposalID: "prop1", Choice: VoteYes}, []string{first.ID}, 2)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	changed.Timestamp = first.Timestamp.Add(time.Second)
	if err := s.Put(changed, true); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tally, err := ProposalTally(s, "prop1")
	if err != nil {
		t.Fatalf("ProposalTally: %v", err)
	}
	if tally.Yes != 1 || tally.No != 0 || tally.UniqueVoters != 1 {
		t.Fatalf("expected the vote change to replace No with Yes, got %+v", tally)
	}
}

func TestProposalTallyUniqueVoters(t *testing.T) {
	s := newTestStore(t)
	a := newTestIdentity(t)
	b := newTestIdentity(t)
	putEvent(t, s, a, &VotePayload{ProposalID: "prop1", Choice: VoteYes}, nil, 1)
	putEvent(t, s, b, &VotePayload{ProposalID: "prop1", Choice: VoteNo}, nil, 1)

	tally, err := ProposalTally(s, "prop1")
	if err != nil {
		t.Fatalf("ProposalTally: %v", err)
	}
	if tally.UniqueVoters != 2 {
		t.Fatalf("expected 2 unique voters, got %d", tally.UniqueVoters)
	}
}

// ------------------------------------------------------------
// ProposalStatus state machine
// ------------------------------------------------------------

func newProposal(t *testing.T, s *Store, author *Identity, kind ProposalKind, param *string) *Event {
	t.Helper()
	return putEvent(t, s, author, &ProposalPayload{Kind: kind, Title: "t", Body: "b", Param: param}, nil, 1)
}

func TestProposalStatusPetitioningWithoutEnoughSignatures(t *testing.T) {
	s := newTestStore(t)
	author := newTestIdentity(t)
	// Seed a large enough network that a 1% petition threshold exceeds 1.
	for i := 0; i < 150; i++ {
		p := newTestIdentity(t)
		putEvent(t, s, p, &ProfilePayload{Name: "p"}, nil, 1)
	}
	prop := newProposal(t, s, author, ProposalStandard, nil)

	status, err := ProposalStatus(s, prop.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ProposalStatus: %v", err)
	}
	if status.State != StatePetitioning {
		t.Fatalf("expected Petitioning with zero signatures on a 150-author network, got %s", status.State)
	}
}

func TestProposalStatusFailsWithNoVotesAfterWindow(t *testing.T) {
	s := newTestStore(t)
	author := newTestIdentity(t)
	prop := newProposal(t, s, author, ProposalStandard, nil)
	// small network => petition threshold of 1, satisfied by the author's
	// own petition signature below, but no yes/no votes are ever cast.
	putEvent(t, s, author, &VotePayload{ProposalID: prop.ID, Choice: VotePetitionSignature}, nil, 2)

	later := prop.Timestamp.Add(200 * time.Hour)
	status, err := ProposalStatus(s, prop.ID, later)
	if err != nil {
		t.Fatalf("ProposalStatus: %v", err)
	}
	if status.State != StateFailed || status.FailReason != "NoVotes" {
		t.Fatalf("expected Failed/NoVotes after the voting window with no votes, got %+v", status)
	}
}

func TestProposalStatusPassesAboveThreshold(t *testing.T) {
	s := newTestStore(t)
	author := newTestIdentity(t)
	prop := newProposal(t, s, author, ProposalStandard, nil)
	putEvent(t, s, author, &VotePayload{ProposalID: prop.ID, Choice: VoteYes}, nil, 2)
	second := newTestIdentity(t)
	putEvent(t, s, second, &VotePayload{ProposalID: prop.ID, Choice: VoteYes}, nil, 1)

	later := prop.Timestamp.Add(200 * time.Hour)
	status, err := ProposalStatus(s, prop.ID, later)
	if err != nil {
		t.Fatalf("ProposalStatus: %v", err)
	}
	if status.State != StatePassed {
		t.Fatalf("expected Passed with unanimous Yes votes, got %s", status.State)
	}
}

func TestProposalStatusRejectedBelowPassFraction(t *testing.T) {
	s := newTestStore(t)
	author := newTestIdentity(t)
	prop := newProposal(t, s, author, ProposalStandard, nil)
	putEvent(t, s, author, &VotePayload{ProposalID: prop.ID, Choice: VoteYes}, nil, 2)
	second := newTestIdentity(t)
	putEvent(t, s, second, &VotePayload{ProposalID: prop.ID, Choice: VoteNo}, nil, 1)
	third := newTestIdentity(t)
	putEvent(t, s, third, &VotePayload{ProposalID: prop.ID, Choice: VoteNo}, nil, 1)

	later := prop.Timestamp.Add(200 * time.Hour)
	status, err := ProposalStatus(s, prop.ID, later)
	if err != nil {
		t.Fatalf("ProposalStatus: %v", err)
	}
	if status.State != StateRejected {
		t.Fatalf("expected Rejected when Yes fraction is below the pass fraction, got %s", status.State)
	}
}

// ------------------------------------------------------------
// CurrentTaxRate / ActiveMinistries read from passed SetTax/
// DefineMinistries proposals
// ------------------------------------------------------------

func TestCurrentTaxRateZeroWithoutPassedProposal(t *testing.T) {
	s := newTestStore(t)
	rate, err := CurrentTaxRate(s, time.Now().UTC())
	if err != nil {
		t.Fatalf("CurrentTaxRate: %v", err)
	}
	if rate != 0 {
		t.Fatalf("expected 0 tax rate absent any passed SetTax proposal, got %d", rate)
	}
}

func TestCurrentTaxRateReadsPassedSetTax(t *testing.T) {
	s := newTestStore(t)
	author := newTestIdentity(t)
	param := "15"
	prop := newProposal(t, s, author, ProposalSetTax, &param)
	putEvent(t, s, author, &VotePayload{ProposalID: prop.ID, Choice: VoteYes}, nil, 2)

	later := prop.Timestamp.Add(200 * time.Hour)
	rate, err := CurrentTaxRate(s, later)
	if err != nil {
		t.Fatalf("CurrentTaxRate: %v", err)
	}
	if rate != 15 {
		t.Fatalf("expected tax rate 15 from the passed SetTax proposal, got %d", rate)
	}
}

func TestActiveMinistriesDefaultsWithoutPassedDefinition(t *testing.T) {
	s := newTestStore(t)
	ministries, err := ActiveMinistries(s)
	if err != nil {
		t.Fatalf("ActiveMinistries: %v", err)
	}
	if len(ministries) != len(defaultMinistries) {
		t.Fatalf("expected the built-in default ministries, got %v", ministries)
	}
}

// ------------------------------------------------------------
// CandidateTally / ActiveOfficials
// ------------------------------------------------------------

func TestActiveOfficialsPicksHighestTally(t *testing.T) {
	s := newTestStore(t)
	candA := newTestIdentity(t)
	candB := newTestIdentity(t)
	cA := putEvent(t, s, candA, &CandidacyPayload{Ministry: "Treasury", Platform: "a"}, nil, 1)
	cB := putEvent(t, s, candB, &CandidacyPayload{Ministry: "Treasury", Platform: "b"}, nil, 1)

	voter1 := newTestIdentity(t)
	voter2 := newTestIdentity(t)
	putEvent(t, s, voter1, &CandidacyVotePayload{CandidacyID: cA.ID}, nil, 1)
	putEvent(t, s, voter2, &CandidacyVotePayload{CandidacyID: cA.ID}, nil, 1)
	voter3 := newTestIdentity(t)
	putEvent(t, s, voter3, &CandidacyVotePayload{CandidacyID: cB.ID}, nil, 1)

	officials, err := ActiveOfficials(s)
	if err != nil {
		t.Fatalf("ActiveOfficials: %v", err)
	}
	if officials["Treasury"] != candA.AuthorID() {
		t.Fatalf("expected candidate A (2 votes) to win Treasury, got %q", officials["Treasury"])
	}
}

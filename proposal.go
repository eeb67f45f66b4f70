package paxlock

import (
	"cmp"
	"fmt"
)

// ProposalID orders competing proposals. Round is
// compared first; ProposerID only breaks ties, so
// two proposers that happen to pick the same Round
// still get distinct, ordered ids. Without the
// tiebreaker the >= rule in Accept would let both
// of them reach an accept quorum with different tokens.
//
// The zero ProposalID means "nothing promised/accepted yet".
// Proposal ids have no relation to fencing token values.
type ProposalID struct {
	Round      uint64 `json:"round"`
	ProposerID string `json:"proposer_id"`
}

// Compare returns -1, 0, +1 as a is less than,
// equal to, or greater than b.
func (a ProposalID) Compare(b ProposalID) int {
	if c := cmp.Compare(a.Round, b.Round); c != 0 {
		return c
	}
	return cmp.Compare(a.ProposerID, b.ProposerID)
}

// GT reports a > b.
func (a ProposalID) GT(b ProposalID) bool {
	return a.Compare(b) > 0
}

// GTE reports a >= b.
func (a ProposalID) GTE(b ProposalID) bool {
	return a.Compare(b) >= 0
}

// IsZero is true for the "none" id.
func (a ProposalID) IsZero() bool {
	return a.Round == 0 && a.ProposerID == ""
}

func (a ProposalID) String() string {
	if a.IsZero() {
		return "ProposalID{none}"
	}
	return fmt.Sprintf("ProposalID{%v:%v}", a.Round, a.ProposerID)
}

package paxlock

import (
	"cmp"
	"fmt"
)

// FencingToken is the credential a resource guardian
// trusts to order writes. Tokens are only compared by
// value: a token is stale as soon as a larger one has
// been handed to some other client. Nobody is told;
// the guardian discovers it when the old holder writes.
//
// The zero token is never returned by a successful
// Acquire; the first acquisition yields 1.
type FencingToken uint64

// Seq returns the sequence number inside the token.
func (t FencingToken) Seq() uint64 {
	return uint64(t)
}

// Compare returns -1, 0, or +1 as t is less than,
// equal to, or greater than b.
func (t FencingToken) Compare(b FencingToken) int {
	return cmp.Compare(t, b)
}

// Less reports t < b.
func (t FencingToken) Less(b FencingToken) bool {
	return t < b
}

func (t FencingToken) String() string {
	return fmt.Sprintf("FencingToken{%v}", uint64(t))
}

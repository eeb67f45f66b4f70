// Package hash names the checksums used on data at rest.
package hash

import (
	"fmt"
	"strings"

	cristalbase64 "github.com/cristalhq/base64"
	"github.com/glycerine/blake3"
)

// SumPrefix starts every string from Blake3OfBytesString.
const SumPrefix = "blake3.33B-"

// ErrChecksum means the data does not match its recorded sum.
var ErrChecksum = fmt.Errorf("blake3 checksum mismatch")

// Blake3OfBytes is goroutine safe and lock free, since
// it creates a new hasher every time. The digest is
// 64 bytes.
func Blake3OfBytes(by []byte) []byte {
	h := blake3.New(64, nil)
	h.Write(by)
	return h.Sum(nil)
}

// Blake3OfBytesString returns the first 33 bytes of
// the digest, base64 URL encoded, after SumPrefix.
func Blake3OfBytesString(by []byte) string {
	return RawSumBytesToString(Blake3OfBytes(by))
}

// if you already have the Hasher.Sum() output:
func RawSumBytesToString(by []byte) string {
	return SumPrefix + cristalbase64.URLEncoding.EncodeToString(by[:33])
}

// Verify returns ErrChecksum (wrapped) unless sum
// is Blake3OfBytesString(by).
func Verify(by []byte, sum string) error {
	if !strings.HasPrefix(sum, SumPrefix) {
		return fmt.Errorf("%w: '%v' is not a %v sum", ErrChecksum, sum, SumPrefix)
	}
	got := Blake3OfBytesString(by)
	if got != sum {
		return fmt.Errorf("%w: have '%v', recorded '%v'", ErrChecksum, got, sum)
	}
	return nil
}

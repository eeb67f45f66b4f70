package paxlock

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/glycerine/base58"
	"github.com/glycerine/loquet"
	gjson "github.com/goccy/go-json"
)

var lastSerial int64

// Hdr travels in front of every body on the wire.
type Hdr struct {
	Created string `json:"created"`
	From    string `json:"from"`
	Subject string `json:"subject"` // which registered func, e.g. "paxlock.Acceptor.Prepare"
	Serial  int64  `json:"serial"`
	CallID  string `json:"call_id"` // matches a call to its reply in the logs.

	// Err carries the remote func's error back; empty means none.
	Err string `json:"err,omitempty"`
}

func newHdr(from, subject string) Hdr {
	return Hdr{
		Created: time.Now().In(chicago).Format(rfc3339NanoNumericTZ0pad),
		From:    from,
		Subject: subject,
		Serial:  atomic.AddInt64(&lastSerial, 1),
		CallID:  base58.Encode(cryptoRandBytes(16)),
	}
}

func (h *Hdr) String() string {
	return fmt.Sprintf("Hdr{Created:%v, From:%v, Subject:%v, Serial:%v, CallID:%v, Err:'%v'}", h.Created, h.From, h.Subject, h.Serial, h.CallID, h.Err)
}

// JSON serializes the header.
func (h *Hdr) JSON() ([]byte, error) {
	return gjson.Marshal(h)
}

// HdrFromJSON reverses JSON.
func HdrFromJSON(by []byte) (*Hdr, error) {
	var h Hdr
	err := gjson.Unmarshal(by, &h)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Message is one framed request or reply.
type Message struct {
	// Seqno: 0 for one-way; odd for a call; the
	// reply to seqno s goes out as s+1.
	Seqno uint64

	Hdr Hdr

	JobSerz []byte

	// LocalErr is never sent; it reports transport
	// failures to the local caller.
	LocalErr error

	// Reply is filled in for the caller before DoneCh closes.
	Reply *Message

	DoneCh *loquet.Chan[Message]
}

// NewMessage allocates a Message with its DoneCh.
func NewMessage() *Message {
	m := &Message{}
	m.DoneCh = loquet.NewChan(m)
	return m
}

func (m *Message) String() string {
	return fmt.Sprintf("&Message{Seqno:%v, Hdr:%v, LocalErr:'%v', len %v JobSerz}", m.Seqno, m.Hdr.String(), m.LocalErr, len(m.JobSerz))
}

package paxlock

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const (
	maxMessage = 1024 * 1024 // 1MB max header or body size
)

// =========================
//
// message structure
//
// 1. seqno: first 8 bytes: *sequenceNumber*, big endian uint64.
//                0 means no response needed/expected
//                odd means initiating; and expect +1 as the response.
//
// 2. lenHeader: next  8 bytes: *header_length*, big endian uint64.
//
// 3. header: next header_length bytes: JSON encoded Hdr.
//
// 4. lenBody: next  8 bytes: *body_length*, big endian uint64.
//
// 5. body: next body_length bytes: Message.JobSerz.
//
// =========================

// ErrTooLong is returned for a header or body over maxMessage.
var ErrTooLong = fmt.Errorf("message too long: over 1MB")

// a workspace lets us re-use the length buffers.
// There should be one for reading, and a separate
// one for writing: each goroutine needs its own.
type workspace struct {
	lenbuf [8]byte
}

func newWorkspace() *workspace {
	return &workspace{}
}

// receiveMessage reads a framed message from conn.
// nil or 0 timeout means no timeout.
func (w *workspace) receiveMessage(conn net.Conn, timeout *time.Duration) (msg *Message, err error) {

	seqno, err := w.readLen(conn, timeout)
	if err != nil {
		return nil, err
	}

	headerLen, err := w.readLen(conn, timeout)
	if err != nil {
		return nil, err
	}
	if headerLen > maxMessage {
		return nil, ErrTooLong
	}
	header := make([]byte, headerLen)
	if err := readFull(conn, header, timeout); err != nil {
		return nil, err
	}
	hdr, err := HdrFromJSON(header)
	if err != nil {
		return nil, err
	}

	bodyLen, err := w.readLen(conn, timeout)
	if err != nil {
		return nil, err
	}
	if bodyLen > maxMessage {
		return nil, ErrTooLong
	}
	body := make([]byte, bodyLen)
	if err := readFull(conn, body, timeout); err != nil {
		return nil, err
	}

	msg = NewMessage()
	msg.Seqno = seqno
	msg.Hdr = *hdr
	msg.JobSerz = body
	return msg, nil
}

func (w *workspace) readLen(conn net.Conn, timeout *time.Duration) (uint64, error) {
	if err := readFull(conn, w.lenbuf[:], timeout); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(w.lenbuf[:]), nil
}

func (w *workspace) writeLen(conn net.Conn, n uint64, timeout *time.Duration) error {
	binary.BigEndian.PutUint64(w.lenbuf[:], n)
	return writeFull(conn, w.lenbuf[:], timeout)
}

// sendMessage sends a framed message to conn.
// nil or 0 timeout means no timeout.
func (w *workspace) sendMessage(conn net.Conn, msg *Message, timeout *time.Duration) error {

	header, err := msg.Hdr.JSON()
	if err != nil {
		return err
	}
	if len(header) > maxMessage || len(msg.JobSerz) > maxMessage {
		return ErrTooLong
	}

	if err := w.writeLen(conn, msg.Seqno, timeout); err != nil {
		return err
	}
	if err := w.writeLen(conn, uint64(len(header)), timeout); err != nil {
		return err
	}
	if err := writeFull(conn, header, timeout); err != nil {
		return err
	}
	if err := w.writeLen(conn, uint64(len(msg.JobSerz)), timeout); err != nil {
		return err
	}
	return writeFull(conn, msg.JobSerz, timeout)
}

// readFull reads exactly len(buf) bytes from conn
func readFull(conn net.Conn, buf []byte, timeout *time.Duration) error {

	if timeout != nil && *timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(*timeout))
	}

	need := len(buf)
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if total == need {
			// probably just EOF
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeFull writes all bytes in buf to conn
func writeFull(conn net.Conn, buf []byte, timeout *time.Duration) error {

	if timeout != nil && *timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(*timeout))
	}

	need := len(buf)
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		total += n
		if total == need {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

package paxlock

// cli.go: simple framed TCP client.

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glycerine/idem"
)

// Client makes calls to one Server over one connection.
// Calls may be issued from many goroutines at once.
type Client struct {
	name string
	addr string

	Conn net.Conn

	mut sync.Mutex

	// pending maps the expected reply seqno to its call.
	pending map[uint64]*Message

	roundTripCh chan *Message

	// WriteTimeout of 0 means wait forever.
	WriteTimeout time.Duration

	halt *idem.Halter

	lastOddSeqno uint64
}

// NewClient dials addr. dialTimeout of 0 means no timeout.
func NewClient(name, addr string, dialTimeout time.Duration) (c *Client, err error) {
	d := &net.Dialer{Timeout: dialTimeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client '%v' failed to connect to server '%v': %w", name, addr, err)
	}
	c = &Client{
		name:         name,
		addr:         addr,
		Conn:         conn,
		pending:      make(map[uint64]*Message),
		roundTripCh:  make(chan *Message),
		WriteTimeout: 10 * time.Second,
		halt:         idem.NewHalter(),
		lastOddSeqno: 1,
	}
	go c.RunSendLoop(conn)
	go c.RunReadLoop(conn)
	return c, nil
}

// RemoteAddr is the server we dialed.
func (c *Client) RemoteAddr() string {
	return c.addr
}

// LocalAddr is our end of the connection.
func (c *Client) LocalAddr() string {
	la := c.Conn.LocalAddr()
	return la.Network() + "://" + la.String()
}

// IsDown is true once the connection has failed or Close was called.
func (c *Client) IsDown() bool {
	select {
	case <-c.halt.ReqStop.Chan:
		return true
	default:
		return false
	}
}

// Close hangs up. Calls in flight get ErrShutdown.
func (c *Client) Close() error {
	c.halt.ReqStop.Close()
	c.Conn.Close() // unblocks RunReadLoop
	<-c.halt.Done.Chan
	return nil
}

// issue 3, 5, 7, 9, ...
func (c *Client) nextOddSeqno() (n uint64) {
	return atomic.AddUint64(&c.lastOddSeqno, 2)
}

// Call sends body to the func registered as subject
// on the server and waits for its reply, ctx, or
// shutdown, whichever is first.
func (c *Client) Call(ctx context.Context, subject string, body []byte) (reply []byte, err error) {

	req := NewMessage()
	req.Hdr = newHdr(c.name, subject)
	req.JobSerz = body
	req.Seqno = c.nextOddSeqno()
	replySeqno := req.Seqno + 1

	c.mut.Lock()
	c.pending[replySeqno] = req
	c.mut.Unlock()

	select {
	case c.roundTripCh <- req:
	case <-ctx.Done():
		c.forget(replySeqno)
		return nil, fmt.Errorf("%w: %v", ErrDone, ctx.Err())
	case <-c.halt.ReqStop.Chan:
		c.forget(replySeqno)
		return nil, ErrShutdown
	}

	select {
	case <-req.DoneCh.WhenClosed():
	case <-ctx.Done():
		c.forget(replySeqno)
		return nil, fmt.Errorf("%w: %v", ErrDone, ctx.Err())
	}
	if req.LocalErr != nil {
		return nil, req.LocalErr
	}
	if req.Reply.Hdr.Err != "" {
		return nil, ServerError(req.Reply.Hdr.Err)
	}
	return req.Reply.JobSerz, nil
}

// forget drops a pending call and reports if it was
// still there. Whoever removes it owns closing DoneCh.
func (c *Client) forget(replySeqno uint64) (req *Message, ok bool) {
	c.mut.Lock()
	req, ok = c.pending[replySeqno]
	delete(c.pending, replySeqno)
	c.mut.Unlock()
	return
}

func (c *Client) RunSendLoop(conn net.Conn) {
	defer func() {
		c.halt.ReqStop.Close()
		// catches a request written just before the read loop quit.
		c.failPending(ErrShutdown)
		c.halt.Done.Close()
	}()

	w := newWorkspace()
	for {
		select {
		case <-c.halt.ReqStop.Chan:
			return
		case msg := <-c.roundTripCh:
			if err := w.sendMessage(conn, msg, &c.WriteTimeout); err != nil {
				pp("client '%v' failed to send: %v", c.name, err)
				if req, ok := c.forget(msg.Seqno + 1); ok {
					req.LocalErr = err
					req.DoneCh.Close()
				}
				// framing is unknown after a partial write.
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) RunReadLoop(conn net.Conn) {
	defer func() {
		c.halt.ReqStop.Close()
		c.failPending(ErrShutdown)
		c.halt.Done.Close()
	}()

	w := newWorkspace()
	for {
		msg, err := w.receiveMessage(conn, nil)
		if err != nil {
			pp("client '%v' read loop exiting: %v", c.name, err)
			return
		}
		req, ok := c.forget(msg.Seqno)
		if !ok {
			// caller gave up on it already.
			continue
		}
		req.Reply = msg
		req.DoneCh.Close()
	}
}

func (c *Client) failPending(err error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	for seqno, req := range c.pending {
		req.LocalErr = err
		req.DoneCh.Close()
		delete(c.pending, seqno)
	}
}

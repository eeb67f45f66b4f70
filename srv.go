package paxlock

// srv.go: simple framed TCP server.

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/glycerine/idem"
)

// TwoWayFunc is a func registered with a Server.
// It reads req.JobSerz and fills reply.JobSerz. A
// returned error is sent back in the reply header and
// surfaces on the Client as a ServerError.
type TwoWayFunc func(req *Message, reply *Message) error

// Server accepts connections and dispatches each
// framed request to the TwoWayFunc registered under
// its Hdr.Subject.
type Server struct {
	name string
	addr string

	mut   sync.Mutex
	funcs map[string]TwoWayFunc
	conns map[net.Conn]bool
	lsn   net.Listener

	// WriteTimeout of 0 means wait forever.
	WriteTimeout time.Duration

	halt *idem.Halter
}

// NewServer makes a Server that will listen on addr,
// e.g. "127.0.0.1:0" for any free port.
func NewServer(name, addr string) *Server {
	return &Server{
		name:         name,
		addr:         addr,
		funcs:        make(map[string]TwoWayFunc),
		conns:        make(map[net.Conn]bool),
		WriteTimeout: 10 * time.Second,
		halt:         idem.NewHalter(),
	}
}

// Register2Func makes fn answer calls for subject.
// Registering again replaces the earlier fn.
func (s *Server) Register2Func(subject string, fn TwoWayFunc) {
	s.mut.Lock()
	s.funcs[subject] = fn
	s.mut.Unlock()
}

// Start listens and returns the bound address, which
// tells the caller which port was picked for ":0".
func (s *Server) Start() (net.Addr, error) {
	lsn, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("server '%v' failed to listen on '%v': %w", s.name, s.addr, err)
	}
	s.mut.Lock()
	s.lsn = lsn
	s.mut.Unlock()

	go s.runAcceptLoop(lsn)
	return lsn.Addr(), nil
}

func (s *Server) runAcceptLoop(lsn net.Listener) {
	defer func() {
		s.halt.Done.Close()
	}()
	for {
		conn, err := lsn.Accept()
		if err != nil {
			select {
			case <-s.halt.ReqStop.Chan:
				return
			default:
			}
			if strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			alwaysPrintf("server '%v' failed to accept connection: %v", s.name, err)
			continue
		}
		s.mut.Lock()
		s.conns[conn] = true
		s.mut.Unlock()

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mut.Lock()
		delete(s.conns, conn)
		s.mut.Unlock()
	}()

	// replies can be written from many goroutines
	// at once; writeMut keeps frames whole.
	var writeMut sync.Mutex
	wsend := newWorkspace()

	w := newWorkspace()
	for {
		req, err := w.receiveMessage(conn, nil)
		if err != nil {
			if err != io.EOF && !strings.Contains(err.Error(), "use of closed network connection") {
				pp("server '%v' read from %v failed: %v", s.name, conn.RemoteAddr(), err)
			}
			return
		}
		go func(req *Message) {
			reply := s.dispatch(req)
			if reply == nil {
				return // one-way
			}
			writeMut.Lock()
			err := wsend.sendMessage(conn, reply, &s.WriteTimeout)
			writeMut.Unlock()
			if err != nil {
				pp("server '%v' could not reply to %v: %v", s.name, conn.RemoteAddr(), err)
				conn.Close()
			}
		}(req)
	}
}

// dispatch runs the registered func. It returns nil
// for a one-way (seqno 0) request.
func (s *Server) dispatch(req *Message) (reply *Message) {
	s.mut.Lock()
	fn, ok := s.funcs[req.Hdr.Subject]
	s.mut.Unlock()

	reply = NewMessage()
	reply.Hdr = newHdr(s.name, req.Hdr.Subject)
	reply.Hdr.CallID = req.Hdr.CallID
	if !ok {
		reply.Hdr.Err = fmt.Sprintf("server '%v': no func registered for subject '%v'", s.name, req.Hdr.Subject)
	} else if err := fn(req, reply); err != nil {
		reply.Hdr.Err = err.Error()
	}
	if req.Seqno == 0 {
		return nil
	}
	reply.Seqno = req.Seqno + 1
	return reply
}

// Close stops listening and drops every connection.
func (s *Server) Close() error {
	s.halt.ReqStop.Close()
	s.mut.Lock()
	lsn := s.lsn
	for c := range s.conns {
		c.Close()
	}
	s.mut.Unlock()
	if lsn == nil {
		// never started
		s.halt.Done.Close()
		return nil
	}
	lsn.Close()
	<-s.halt.Done.Chan
	return nil
}

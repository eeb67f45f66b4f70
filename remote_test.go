package paxlock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	cv "github.com/glycerine/goconvey/convey"
)

func Test300_framing_round_trips_a_message(t *testing.T) {

	cv.Convey("sendMessage then receiveMessage over a pipe preserves seqno, header and body", t, func() {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		msg := NewMessage()
		msg.Seqno = 3
		msg.Hdr = newHdr("cli", PrepareSubject)
		msg.JobSerz = []byte("hello")

		errCh := make(chan error, 1)
		go func() {
			errCh <- newWorkspace().sendMessage(a, msg, nil)
		}()
		got, err := newWorkspace().receiveMessage(b, nil)
		panicOn(err)
		panicOn(<-errCh)

		cv.So(got.Seqno, cv.ShouldEqual, uint64(3))
		cv.So(got.Hdr, cv.ShouldResemble, msg.Hdr)
		cv.So(string(got.JobSerz), cv.ShouldEqual, "hello")
	})

	cv.Convey("an oversized body is refused before anything is written", t, func() {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()
		msg := NewMessage()
		msg.JobSerz = make([]byte, maxMessage+1)
		err := newWorkspace().sendMessage(a, msg, nil)
		cv.So(errors.Is(err, ErrTooLong), cv.ShouldBeTrue)
	})
}

func startAcceptorServer(name string) (*Server, *Acceptor, string) {
	acc := NewAcceptor(name)
	srv := NewServer(name, "127.0.0.1:0")
	RegisterAcceptor(srv, acc)
	addr, err := srv.Start()
	panicOn(err)
	return srv, acc, addr.String()
}

func Test310_client_server_calls(t *testing.T) {

	cv.Convey("a registered func answers, an unknown subject comes back as a ServerError", t, func() {
		srv := NewServer("echo", "127.0.0.1:0")
		srv.Register2Func("echo", func(req, reply *Message) error {
			reply.JobSerz = append([]byte("echo:"), req.JobSerz...)
			return nil
		})
		srv.Register2Func("fail", func(req, reply *Message) error {
			return fmt.Errorf("refused")
		})
		addr, err := srv.Start()
		panicOn(err)
		defer srv.Close()

		cli, err := NewClient("test", addr.String(), time.Second)
		panicOn(err)
		defer cli.Close()

		ctx := context.Background()
		out, err := cli.Call(ctx, "echo", []byte("hi"))
		panicOn(err)
		cv.So(string(out), cv.ShouldEqual, "echo:hi")

		_, err = cli.Call(ctx, "nope", nil)
		var se ServerError
		cv.So(errors.As(err, &se), cv.ShouldBeTrue)

		_, err = cli.Call(ctx, "fail", nil)
		cv.So(errors.As(err, &se), cv.ShouldBeTrue)
		cv.So(err.Error(), cv.ShouldEqual, "refused")

		// many calls in flight on one connection
		done := make(chan error, 20)
		for i := 0; i < 20; i++ {
			go func(i int) {
				body := fmt.Sprintf("%v", i)
				out, err := cli.Call(ctx, "echo", []byte(body))
				if err == nil && string(out) != "echo:"+body {
					err = fmt.Errorf("crossed reply: got '%v' for '%v'", string(out), body)
				}
				done <- err
			}(i)
		}
		for i := 0; i < 20; i++ {
			cv.So(<-done, cv.ShouldBeNil)
		}
	})

	cv.Convey("calls on a closed Client fail with ErrShutdown, and a timed out call with ErrDone", t, func() {
		block := make(chan struct{})
		srv := NewServer("slow", "127.0.0.1:0")
		srv.Register2Func("slow", func(req, reply *Message) error {
			<-block
			return nil
		})
		addr, err := srv.Start()
		panicOn(err)
		defer srv.Close()
		defer close(block)

		cli, err := NewClient("test", addr.String(), time.Second)
		panicOn(err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = cli.Call(ctx, "slow", nil)
		cv.So(errors.Is(err, ErrDone), cv.ShouldBeTrue)

		cli.Close()
		cv.So(cli.IsDown(), cv.ShouldBeTrue)
		_, err = cli.Call(context.Background(), "slow", nil)
		cv.So(errors.Is(err, ErrShutdown), cv.ShouldBeTrue)
	})

	cv.Convey("dialing nobody fails", t, func() {
		port := freePort()
		_, err := NewClient("test", fmt.Sprintf("127.0.0.1:%v", port), time.Second)
		cv.So(err, cv.ShouldNotBeNil)
	})
}

// freePort finds a port nobody listens on.
func freePort() int {
	lsn, err := net.Listen("tcp", "127.0.0.1:0")
	panicOn(err)
	port := lsn.Addr().(*net.TCPAddr).Port
	lsn.Close()
	return port
}

func Test320_acquire_over_tcp_survives_a_minority_of_dead_acceptors(t *testing.T) {

	cv.Convey("three acceptor servers: acquire works, keeps working with one shut down, and fails with two down", t, func() {
		ctx := context.Background()

		var srvs []*Server
		var accs []*Acceptor
		cfg := testConfig("remote-p")
		cfg.RoundTimeout = time.Second
		cfg.DialTimeout = 500 * time.Millisecond
		for i := 0; i < 3; i++ {
			srv, acc, addr := startAcceptorServer(fmt.Sprintf("acceptor-%v", i))
			srvs = append(srvs, srv)
			accs = append(accs, acc)
			cfg.Acceptors = append(cfg.Acceptors, addr)
		}
		remotes := NewRemoteAcceptors(cfg)
		defer func() {
			for _, r := range remotes {
				r.(*RemoteAcceptor).Close()
			}
		}()

		p, err := NewProposer(cfg, remotes)
		panicOn(err)

		tok, err := p.Acquire(ctx, "client-A")
		panicOn(err)
		cv.So(tok, cv.ShouldEqual, FencingToken(1))
		for _, a := range accs {
			cv.So(a.State().AcceptedValue, cv.ShouldEqual, "client-A")
		}

		srvs[2].Close()
		tok, err = p.Acquire(ctx, "client-B")
		panicOn(err)
		cv.So(tok, cv.ShouldEqual, FencingToken(2))

		srvs[1].Close()
		_, err = p.Acquire(ctx, "client-C")
		cv.So(errors.Is(err, ErrNoQuorum), cv.ShouldBeTrue)

		srvs[0].Close()
	})
}

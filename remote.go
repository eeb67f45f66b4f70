package paxlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	gjson "github.com/goccy/go-json"
)

// subjects the acceptor answers to.
const (
	PrepareSubject = "paxlock.Acceptor.Prepare"
	AcceptSubject  = "paxlock.Acceptor.Accept"
)

// RegisterAcceptor makes srv answer Prepare and
// Accept calls from remote proposers using acc.
func RegisterAcceptor(srv *Server, acc *Acceptor) {
	srv.Register2Func(PrepareSubject, func(req, reply *Message) error {
		var args PrepareReq
		if err := gjson.Unmarshal(req.JobSerz, &args); err != nil {
			return fmt.Errorf("bad PrepareReq: %w", err)
		}
		r, err := acc.Prepare(context.Background(), &args)
		if err != nil {
			return err
		}
		reply.JobSerz, err = gjson.Marshal(r)
		return err
	})
	srv.Register2Func(AcceptSubject, func(req, reply *Message) error {
		var args AcceptReq
		if err := gjson.Unmarshal(req.JobSerz, &args); err != nil {
			return fmt.Errorf("bad AcceptReq: %w", err)
		}
		r, err := acc.Accept(context.Background(), &args)
		if err != nil {
			return err
		}
		reply.JobSerz, err = gjson.Marshal(r)
		return err
	})
}

// RemoteAcceptor is an AcceptorClient for an
// acceptor served by RegisterAcceptor on another host.
// The connection is made on first use and remade after
// it fails, so an acceptor that is down simply fails
// its calls and is not counted toward quorum.
type RemoteAcceptor struct {
	addr        string
	dialTimeout time.Duration

	mut sync.Mutex
	cli *Client
}

// NewRemoteAcceptor does not dial; see RemoteAcceptor.
func NewRemoteAcceptor(addr string, dialTimeout time.Duration) *RemoteAcceptor {
	return &RemoteAcceptor{addr: addr, dialTimeout: dialTimeout}
}

// NewRemoteAcceptors makes one RemoteAcceptor per cfg.Acceptors entry.
func NewRemoteAcceptors(cfg *Config) (acc []AcceptorClient) {
	for _, addr := range cfg.Acceptors {
		acc = append(acc, NewRemoteAcceptor(addr, cfg.DialTimeout))
	}
	return
}

func (r *RemoteAcceptor) Name() string {
	return r.addr
}

func (r *RemoteAcceptor) client() (*Client, error) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.cli != nil && !r.cli.IsDown() {
		return r.cli, nil
	}
	if r.cli != nil {
		r.cli.Close()
		r.cli = nil
	}
	cli, err := NewClient("proposer", r.addr, r.dialTimeout)
	if err != nil {
		return nil, err
	}
	r.cli = cli
	return cli, nil
}

func (r *RemoteAcceptor) call(ctx context.Context, subject string, args, reply any) error {
	cli, err := r.client()
	if err != nil {
		return err
	}
	by, err := gjson.Marshal(args)
	if err != nil {
		return err
	}
	out, err := cli.Call(ctx, subject, by)
	if err != nil {
		return err
	}
	return gjson.Unmarshal(out, reply)
}

func (r *RemoteAcceptor) Prepare(ctx context.Context, req *PrepareReq) (*PrepareReply, error) {
	reply := &PrepareReply{}
	if err := r.call(ctx, PrepareSubject, req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (r *RemoteAcceptor) Accept(ctx context.Context, req *AcceptReq) (*AcceptReply, error) {
	reply := &AcceptReply{}
	if err := r.call(ctx, AcceptSubject, req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Close hangs up the connection, if any.
func (r *RemoteAcceptor) Close() error {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.cli != nil {
		r.cli.Close()
		r.cli = nil
	}
	return nil
}

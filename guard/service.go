package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	gjson "github.com/goccy/go-json"

	"github.com/glycerine/paxlock"
)

// subjects the guardian answers to.
const (
	WriteSubject = "paxlock.Guardian.Write"
	ReadSubject  = "paxlock.Guardian.Read"
)

type writeReq struct {
	Token   paxlock.FencingToken `json:"token"`
	Payload []byte               `json:"payload"`
}

// a stale token is an answer, not a failure, so it
// travels in the reply body rather than Hdr.Err.
type writeReply struct {
	Stale     bool                 `json:"stale"`
	LastToken paxlock.FencingToken `json:"last_token"`
}

// Register makes srv answer Write and Read calls using g.
func Register(srv *paxlock.Server, g *Guardian) {
	srv.Register2Func(WriteSubject, func(req, reply *paxlock.Message) error {
		var args writeReq
		if err := gjson.Unmarshal(req.JobSerz, &args); err != nil {
			return fmt.Errorf("bad guardian write: %w", err)
		}
		var r writeReply
		err := g.Write(args.Payload, args.Token)
		switch {
		case err == nil:
		case isStale(err):
			r.Stale = true
		default:
			return err
		}
		r.LastToken = g.LastToken()
		var err2 error
		reply.JobSerz, err2 = gjson.Marshal(&r)
		return err2
	})
	srv.Register2Func(ReadSubject, func(req, reply *paxlock.Message) (err error) {
		rec := g.Read()
		reply.JobSerz, err = gjson.Marshal(&rec)
		return
	})
}

// Remote calls a Guardian served by Register. The
// connection is made on first use and remade after it fails.
type Remote struct {
	addr        string
	dialTimeout time.Duration

	mut sync.Mutex
	cli *paxlock.Client
}

// NewRemote does not dial.
func NewRemote(addr string, dialTimeout time.Duration) *Remote {
	return &Remote{addr: addr, dialTimeout: dialTimeout}
}

func (r *Remote) client() (*paxlock.Client, error) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.cli != nil && !r.cli.IsDown() {
		return r.cli, nil
	}
	if r.cli != nil {
		r.cli.Close()
		r.cli = nil
	}
	cli, err := paxlock.NewClient("guard-client", r.addr, r.dialTimeout)
	if err != nil {
		return nil, err
	}
	r.cli = cli
	return cli, nil
}

// Write is Guardian.Write across the network. A stale
// token comes back as an error wrapping
// paxlock.ErrStaleToken, same as locally.
func (r *Remote) Write(ctx context.Context, payload []byte, token paxlock.FencingToken) error {
	cli, err := r.client()
	if err != nil {
		return err
	}
	by, err := gjson.Marshal(&writeReq{Token: token, Payload: payload})
	if err != nil {
		return err
	}
	out, err := cli.Call(ctx, WriteSubject, by)
	if err != nil {
		return err
	}
	var reply writeReply
	if err := gjson.Unmarshal(out, &reply); err != nil {
		return err
	}
	if reply.Stale {
		return fmt.Errorf("%w: token %v is not above the last accepted token %v",
			paxlock.ErrStaleToken, uint64(token), uint64(reply.LastToken))
	}
	return nil
}

// Read is Guardian.Read across the network.
func (r *Remote) Read(ctx context.Context) (rec Record, err error) {
	cli, err := r.client()
	if err != nil {
		return
	}
	out, err := cli.Call(ctx, ReadSubject, nil)
	if err != nil {
		return
	}
	err = gjson.Unmarshal(out, &rec)
	return
}

// Close hangs up the connection, if any.
func (r *Remote) Close() error {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.cli != nil {
		r.cli.Close()
		r.cli = nil
	}
	return nil
}

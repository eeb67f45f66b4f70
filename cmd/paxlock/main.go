package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glycerine/paxlock"
	"github.com/glycerine/paxlock/guard"
)

func main() {

	paxlock.Exit1IfVersionReq()

	log.SetFlags(log.LstdFlags | log.Lshortfile) // Add Lshortfile for short file names

	var configPath = flag.String("config", "", "path to a JSON config file; see paxlock.LoadConfig")
	var acceptors = flag.String("acceptors", "", "comma separated host:port list of paxlockd acceptors; overrides the config file")
	var proposerID = flag.String("id", "", "proposer id; must differ between concurrent proposers. Default is random")
	var clientID = flag.String("client", "", "client id recorded as the lock holder. Default is the hostname")
	var guardAddr = flag.String("guard", "", "host:port of a paxlockd -guard to write to under the acquired token")
	var payload = flag.String("write", "", "payload to write to the guardian under the acquired token")
	var release = flag.Bool("release", false, "release the lock after acquiring (and writing)")
	var releaseOnly = flag.Bool("release-only", false, "do not acquire; just release")
	var keepHighWater = flag.Bool("keep-high-water", false, "on release, write the highest seen token instead of 0")
	var roundTimeout = flag.Duration("timeout", 0, "per round timeout; 0 keeps the config value")
	var demo = flag.Bool("demo", false, "run the two client demo in process, with 5 acceptors, and exit")
	flag.Parse()

	if *demo {
		runDemo()
		return
	}

	cfg := paxlock.NewConfig()
	if *configPath != "" {
		var err error
		cfg, err = paxlock.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("could not load config: %v", err)
		}
	}
	if *acceptors != "" {
		cfg.Acceptors = strings.Split(*acceptors, ",")
	}
	if *proposerID != "" {
		cfg.ProposerID = *proposerID
	}
	if *roundTimeout > 0 {
		cfg.RoundTimeout = *roundTimeout
	}
	if *keepHighWater {
		cfg.ReleaseKeepsHighWater = true
	}
	if *clientID == "" {
		*clientID, _ = os.Hostname()
	}
	if len(cfg.Acceptors) == 0 {
		log.Fatalf("no acceptors given; use -acceptors or -config")
	}

	remotes := paxlock.NewRemoteAcceptors(cfg)
	defer func() {
		for _, r := range remotes {
			r.(*paxlock.RemoteAcceptor).Close()
		}
	}()
	prop, err := paxlock.NewProposer(cfg, remotes)
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx := context.Background()

	if *releaseOnly {
		if _, err := prop.Release(ctx, *clientID); err != nil {
			log.Fatalf("release failed: %v", err)
		}
		fmt.Printf("released.\n")
		return
	}

	tok, err := prop.Acquire(ctx, *clientID)
	if err != nil {
		log.Fatalf("acquire failed: %v", err)
	}
	fmt.Printf("client '%v' holds the lock with %v\n", *clientID, tok)

	if *guardAddr != "" {
		r := guard.NewRemote(*guardAddr, cfg.DialTimeout)
		err := r.Write(ctx, []byte(*payload), tok)
		r.Close()
		switch {
		case errors.Is(err, paxlock.ErrStaleToken):
			fmt.Printf("guardian refused our write: %v\n", err)
		case err != nil:
			log.Fatalf("guardian write failed: %v", err)
		default:
			fmt.Printf("guardian accepted %v bytes under %v\n", len(*payload), tok)
		}
	}

	if *release {
		if _, err := prop.Release(ctx, *clientID); err != nil {
			log.Fatalf("release failed: %v", err)
		}
		fmt.Printf("released.\n")
	}
	fmt.Printf("%v\n", prop.Stats())
}

// runDemo plays the paused client story: A gets the
// lock, stalls, B takes over and writes, then A wakes
// and tries to write with its old token.
func runDemo() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var acc []paxlock.AcceptorClient
	for i := 0; i < 5; i++ {
		acc = append(acc, paxlock.NewAcceptor(fmt.Sprintf("acceptor-%v", i)))
	}
	newProp := func(id string) *paxlock.Proposer {
		cfg := paxlock.NewConfig()
		cfg.ProposerID = id
		p, err := paxlock.NewProposer(cfg, acc)
		if err != nil {
			log.Fatalf("%v", err)
		}
		return p
	}
	propA := newProp("proposer-A")
	propB := newProp("proposer-B")
	storage := guard.New()

	tokA, err := propA.Acquire(ctx, "client-A")
	if err != nil {
		log.Fatalf("client-A acquire: %v", err)
	}
	fmt.Printf("client-A acquired the lock with %v\n", tokA)
	fmt.Printf("client-A pauses (think: a long GC)...\n")

	tokB, err := propB.Acquire(ctx, "client-B")
	if err != nil {
		log.Fatalf("client-B acquire: %v", err)
	}
	fmt.Printf("client-B acquired the lock with %v\n", tokB)

	if err := storage.Write([]byte("written by client-B"), tokB); err != nil {
		log.Fatalf("client-B write: %v", err)
	}
	fmt.Printf("client-B wrote under %v\n", tokB)

	fmt.Printf("client-A wakes up and writes under %v\n", tokA)
	err = storage.Write([]byte("written by client-A"), tokA)
	if errors.Is(err, paxlock.ErrStaleToken) {
		fmt.Printf("storage rejected client-A: %v\n", err)
	} else {
		fmt.Printf("unexpected: storage said %v\n", err)
	}

	rec := storage.Read()
	fmt.Printf("storage holds '%v' under token %v\n", string(rec.Data), uint64(rec.LastToken))
	fmt.Printf("proposer-A %v\n", propA.Stats())
	fmt.Printf("proposer-B %v\n", propB.Stats())
}

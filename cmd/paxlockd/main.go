package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof" // for web based profiling while running

	"github.com/glycerine/ipaddr"
	"github.com/glycerine/paxlock"
	"github.com/glycerine/paxlock/guard"
)

func noticeControlC(onExit func()) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		for range sigChan {
			onExit()
			os.Exit(0)
		}
	}()
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
}

func main() {

	paxlock.Exit1IfVersionReq()

	log.SetFlags(log.LstdFlags | log.Lshortfile) // Add Lshortfile for short file names

	var addr = flag.String("s", "", "address to bind and listen on; default is our external IP and a free port")
	var name = flag.String("name", "", "acceptor name used in logs; defaults to the listen address")
	var serveGuard = flag.Bool("guard", false, "also serve a fenced resource guardian on the same port")
	var snap = flag.String("snap", "", "path to the guardian snapshot file; empty means the guardian is in memory only")
	var profile = flag.String("prof", "", "host:port to start web profiler on. host can be empty for all localhost interfaces")
	flag.Parse()

	if *addr == "" {
		*addr = fmt.Sprintf("%v:%v", ipaddr.GetExternalIP(), ipaddr.GetAvailPort())
	}
	if *name == "" {
		*name = *addr
	}
	if *snap != "" && !*serveGuard {
		log.Fatalf("-snap needs -guard")
	}

	if *profile != "" {
		fmt.Printf("webprofile starting at '%v'...\n", *profile)
		go func() {
			http.ListenAndServe(*profile, nil)
		}()
	}

	srv := paxlock.NewServer(*name, *addr)
	acc := paxlock.NewAcceptor(*name)
	paxlock.RegisterAcceptor(srv, acc)

	var g *guard.Guardian
	if *serveGuard {
		var err error
		if *snap != "" {
			g, err = guard.Open(*snap)
			if err != nil {
				log.Fatalf("could not open guardian snapshot '%v': %v", *snap, err)
			}
		} else {
			g = guard.New()
		}
		guard.Register(srv, g)
	}

	bound, err := srv.Start()
	if err != nil {
		log.Fatalf("%v", err)
	}

	noticeControlC(func() {
		srv.Close()
		fmt.Printf("\npaxlockd '%v' final acceptor state: %v\n", *name, acc.State())
		if g != nil {
			fmt.Printf("paxlockd '%v' final guardian record: %v\n", *name, g.Read())
			g.Close()
		}
	})

	if g != nil {
		fmt.Printf("paxlockd '%v' serving acceptor and guardian (last token %v) on %v\n", *name, uint64(g.LastToken()), bound)
	} else {
		fmt.Printf("paxlockd '%v' serving acceptor on %v\n", *name, bound)
	}
	select {}
}

// Command mockwallet runs a simulated wallet service for development and
// demos. With no arguments it also runs an in-process relay; pass a relay URL
// to attach the wallet to an existing relay instead.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nwclink.dev/pkg/protocol/nwc"
	"nwclink.dev/pkg/protocol/relaytest"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/log"
)

func main() {
	var balance uint64
	var relayURL string
	flag.Uint64Var(
		&balance, "balance", 100_000_000,
		"starting wallet balance in millisatoshis",
	)
	flag.StringVar(
		&relayURL, "relay", "",
		"relay to attach to; empty runs an in-process relay",
	)
	flag.Parse()

	var srv *relaytest.Server
	if relayURL == "" {
		srv = relaytest.New()
		defer srv.Close()
		relayURL = srv.URL
		log.I.F("in-process relay listening at %s", relayURL)
	}

	wallet, err := nwc.NewMockWalletService(relayURL, balance)
	if chk.E(err) {
		fmt.Fprintf(os.Stderr, "failed to create wallet: %v\n", err)
		os.Exit(1)
	}
	if err = wallet.Start(); chk.E(err) {
		fmt.Fprintf(os.Stderr, "failed to start wallet: %v\n", err)
		os.Exit(1)
	}
	defer wallet.Stop()

	fmt.Printf("connection URI:\n\n\t%s\n\n", wallet.ConnectionURI())
	log.I.F("wallet service running, ctrl-c to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.I.F("shutting down")
}

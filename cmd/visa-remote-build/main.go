// Package main runs visa-finalize's compile-as-a-service server: an
// HTTP/3 front end around internal/remotebuild, modeled on
// internal/runtime/netstack/http3.go.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/0o001/visa-finalizer/internal/config"
	"github.com/0o001/visa-finalizer/internal/remotebuild"
)

func main() {
	addr := flag.String("addr", ":4433", "UDP address to bind the HTTP/3 listener to")
	flag.Parse()

	opts := config.DefaultBuildOptions()

	handler := remotebuild.NewHandler(opts, remotebuild.NewWireEncoder(), remotebuild.ConcatEmitter{})

	srv, err := remotebuild.NewServer(*addr, nil, handler)
	if err != nil {
		fmt.Fprintf(os.Stderr, "visa-remote-build: %v\n", err)
		os.Exit(1)
	}

	bound, err := srv.Start()
	if err != nil {
		fmt.Fprintf(os.Stderr, "visa-remote-build: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("visa-remote-build: serving HTTP/3 on %s\n", bound)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		fmt.Println("visa-remote-build: shutting down")
	case err := <-srv.Error():
		fmt.Fprintf(os.Stderr, "visa-remote-build: serve error: %v\n", err)
	}

	_ = srv.Stop()
}

// Command consultsim serves the consultation HTTP API from a canned script.
// It exists so the client can be developed and demoed without the real
// multi-agent service:
//
//	consultsim -addr :8000 -speed 10
//	medcouncil -backend http://localhost:8000
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/mzhao/medcouncil/internal/simserver"
)

func main() {
	var (
		addr  = flag.String("addr", ":8000", "listen address")
		speed = flag.Float64("speed", 1, "playback speed multiplier (>1 is faster)")
	)
	flag.Parse()

	server := simserver.New(simserver.WithSpeed(*speed))
	fmt.Printf("consultsim listening on %s (speed %gx)\n", *addr, *speed)
	if err := http.ListenAndServe(*addr, server.Router()); err != nil {
		fmt.Fprintf(os.Stderr, "consultsim: %v\n", err)
		os.Exit(1)
	}
}

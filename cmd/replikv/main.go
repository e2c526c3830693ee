package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/server"
	"github.com/thinkermao/replikv/transport/udp"
)

// replikv <id> <peer-id>...
//
// id and every peer-id are four-hex-digit participant identifiers.
// The process serves forever; it exits non-zero only on a fatal
// transport failure.
func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <id> <peer-id>...\n", os.Args[0])
		os.Exit(1)
	}

	log.SetLevel(log.InfoLevel)

	id := os.Args[1]
	peers := os.Args[2:]

	transport, err := udp.Listen(id)
	if err != nil {
		log.Fatalf("%v", err)
	}

	srv := server.New(server.Config{ID: id, Peers: peers}, transport)
	defer srv.Kill()

	if err := transport.Serve(srv.HandleMessage); err != nil {
		log.Fatalf("%v", err)
	}
}

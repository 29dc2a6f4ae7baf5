// Command insight-stub serves a fixture similarity-insight API for local
// development of the viewer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	pending     = flag.Int("pending", 3, "Number of EMBEDDING_NOT_READY answers per photo before the final answer")
	terminal    = flag.String("status", string(insight.StatusSuccess), "Final status to answer with")
	dim         = flag.Int("dim", 2, "Projection dimensionality (2 or 3)")
	models      = flag.Int("models", 8, "Number of model photos in the projection")
	seed        = flag.Uint64("seed", 1, "Seed for the generated projection")
	deny        = flag.Int("deny", 0, "Reject every request with this HTTP status (401 or 403)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *deny != 0 && *deny != http.StatusUnauthorized && *deny != http.StatusForbidden {
		log.Fatalf("invalid -deny %d: must be 401 or 403", *deny)
	}

	stub := newStubServer(stubOptions{
		Pending:  *pending,
		Terminal: insight.ParseStatus(*terminal),
		Dim:      *dim,
		Models:   *models,
		Seed:     *seed,
		Deny:     *deny,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              *listen,
		Handler:           stub.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("insight stub listening on %s (pending=%d status=%s dim=%d)", *listen, *pending, *terminal, stub.opts.Dim)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"coopweb/internal/request"
	"coopweb/internal/server"
)

func main() {
	var (
		addr    string
		root    string
		cfg     server.Config
		verbose bool
	)
	flag.StringVar(&addr, "addr", ":8080", "Listen address.")
	flag.StringVar(&root, "root", ".", "Directory to serve files from.")
	flag.IntVar(&cfg.Workers, "workers", 4, "Worker threads (0 = serve in the accept loop).")
	flag.IntVar(&cfg.MaxRequests, "queue", 16, "Maximum queued connections.")
	flag.IntVar(&cfg.MaxCacheBytes, "cache", 1<<20, "Cache capacity in bytes (0 = no cache).")
	flag.BoolVar(&verbose, "v", false, "Log debug events.")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Signal-aware context is the root of ownership for the accept loop.
	// When SIGINT/SIGTERM arrives, ctx is canceled and we initiate a clean shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	srv, err := server.New(cfg, request.NewFileOpener(root))
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	log.Printf("serving %s on %s", root, ln.Addr())
	log.Printf("config: workers=%d queue=%d cache=%d", cfg.Workers, cfg.MaxRequests, cfg.MaxCacheBytes)

	go func() {
		<-ctx.Done()
		log.Println("received shutdown signal")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			log.Printf("accept: %v", err)
			continue
		}
		srv.Request(conn)
	}

	if st, ok := srv.CacheStats(); ok {
		log.Printf("cache: hits=%d misses=%d evictions=%d bytes=%d/%d",
			st.Hits, st.Misses, st.Evictions, st.Used, st.Capacity)
	}
	// Exit drains queued connections before returning.
	srv.Exit()
	log.Println("server stopped")
}

// Package server is a multi-threaded caching file server.
//
// A dispatcher hands accepted connections to a fixed pool of workers
// through a bounded queue. Workers share one content cache.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"coopweb/internal/cache"
	"coopweb/internal/queue"
	"coopweb/internal/request"
)

// Config sizes the worker pool, request queue and cache.
//
//   - Workers == 0 serves each request synchronously in the caller of Request
//   - MaxRequests < 1 is treated as 1 when Workers > 0
//   - MaxCacheBytes <= 0 disables the cache
//   - Logger == nil discards server events
type Config struct {
	Workers       int
	MaxRequests   int
	MaxCacheBytes int

	Logger *slog.Logger
}

// Server owns its queue, workers and cache. Call Exit to release them.
type Server struct {
	cfg    Config
	log    *slog.Logger
	opener request.Opener

	conns   *queue.Bounded[net.Conn]
	workers errgroup.Group
	cache   *cache.Cache // nil when caching is disabled
}

var ErrConfig = errors.New("invalid server config")

// New starts cfg.Workers workers serving requests built by opener.
func New(cfg Config, opener request.Opener) (*Server, error) {
	if cfg.Workers < 0 {
		return nil, ErrConfig
	}
	if opener == nil {
		return nil, ErrConfig
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		cfg:    cfg,
		log:    logger,
		opener: opener,
		conns:  queue.New[net.Conn](cfg.MaxRequests),
	}
	if cfg.MaxCacheBytes > 0 {
		s.cache = cache.New(cache.Config{MaxBytes: cfg.MaxCacheBytes})
	}

	for i := 0; i < cfg.Workers; i++ {
		id := i
		s.workers.Go(func() error {
			s.work(id)
			return nil
		})
	}
	s.log.Debug("server started",
		"workers", cfg.Workers, "max_requests", cfg.MaxRequests, "max_cache_bytes", cfg.MaxCacheBytes)
	return s, nil
}

// Request hands conn to the worker pool, blocking while the queue is full.
// With no workers the request is served before Request returns.
func (s *Server) Request(conn net.Conn) {
	if s.cfg.Workers == 0 {
		s.serve(conn)
		return
	}
	if err := s.conns.Put(conn); err != nil {
		s.log.Warn("dropping connection after exit", "err", err)
		conn.Close()
	}
}

// Exit lets workers drain the queue, waits for all of them and frees the
// cache. In-flight requests always complete.
func (s *Server) Exit() {
	s.conns.Close()
	s.workers.Wait()
	if s.cache != nil {
		st := s.cache.Stats()
		s.log.Debug("server exiting",
			"hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions, "cached_bytes", st.Used)
		s.cache.Close()
	}
}

// CacheStats reports cache counters. ok is false when caching is disabled.
func (s *Server) CacheStats() (st cache.Stats, ok bool) {
	if s.cache == nil {
		return cache.Stats{}, false
	}
	return s.cache.Stats(), true
}

func (s *Server) work(id int) {
	s.log.Debug("worker started", "worker", id)
	for {
		conn, ok := s.conns.Get()
		if !ok {
			s.log.Debug("worker stopped", "worker", id)
			return
		}
		s.serve(conn)
	}
}

// serve handles one connection from parse to teardown.
//
// On a cache miss the file is read without holding the cache lock, so two
// workers may read the same file; the second Insert is a no-op.
func (s *Server) serve(conn net.Conn) {
	rq, err := s.opener.Open(conn)
	if err != nil {
		s.log.Warn("bad request", "err", err)
		return
	}
	defer rq.Close()

	name := rq.FileName()
	if s.cache != nil {
		if data, ok := s.cache.Get(name); ok {
			rq.SetData(data)
			s.send(rq)
			return
		}
	}

	if err := rq.ReadFile(); err != nil {
		s.log.Warn("read failed", "file", name, "err", err)
		return
	}

	if s.cache != nil {
		err := s.cache.Insert(name, rq.Data())
		switch {
		case errors.Is(err, cache.ErrTooLarge):
			s.log.Debug("serving uncached", "file", name, "bytes", len(rq.Data()))
		case err != nil:
			s.log.Warn("cache insert failed", "file", name, "err", err)
		}
	}
	s.send(rq)
}

func (s *Server) send(rq request.Request) {
	if err := rq.SendFile(); err != nil {
		s.log.Warn("send failed", "file", rq.FileName(), "err", err)
	}
}

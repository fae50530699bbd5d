// Package relay serves synthetic throttled downloads over HTTP, putting
// the shared bandwidth group in front of real sockets.
package relay

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/slink/bandwidth"
	"github.com/wesleyorama2/slink/internal/metrics"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"

	// DefaultMaxBytes caps a single synthetic download at 1 GiB.
	DefaultMaxBytes = 1 << 30

	// transferChunk is the producer write size for served payloads.
	transferChunk = 32 * 1024
)

// Options configures a relay server.
type Options struct {
	// Addr is the listen address (default ":8080").
	Addr string

	// Link configures the shared bandwidth group every download flows
	// through.
	Link []bandwidth.Option

	// SessionsPerSecond admits new download sessions at this rate;
	// zero or below disables admission control.
	SessionsPerSecond float64

	// SessionBurst is the admission burst size (default 1 when
	// admission control is on).
	SessionBurst int

	// MaxBytes caps the size of a synthetic download (default 1 GiB).
	MaxBytes int64

	// Root, when set, also serves files below this directory through
	// the link.
	Root string
}

// Server is a throttled download server.
//
// Every response body flows through its own throttle on one shared
// group, so concurrent downloads split the configured link rate the
// same way simulated streams do. A small control API reads and
// reconfigures the link at runtime.
type Server struct {
	group   *bandwidth.Group
	metrics *metrics.Engine
	admit   *rate.Limiter

	maxBytes int64
	root     string

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a relay server from opts. The link options are
// validated here; the listener is not opened until Start or
// ListenAndServe.
func NewServer(opts Options) (*Server, error) {
	group, err := bandwidth.NewGroup(opts.Link...)
	if err != nil {
		return nil, fmt.Errorf("invalid link configuration: %w", err)
	}

	s := &Server{
		group:    group,
		metrics:  metrics.NewEngine(),
		maxBytes: opts.MaxBytes,
		root:     opts.Root,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxBytes
	}

	if opts.SessionsPerSecond > 0 {
		burst := opts.SessionBurst
		if burst < 1 {
			burst = 1
		}
		s.admit = rate.NewLimiter(rate.Limit(opts.SessionsPerSecond), burst)
	}

	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /t/{size}", s.handleTransfer)
	if s.root != "" {
		mux.HandleFunc("GET /f/{path...}", s.handleFile)
	}
	mux.HandleFunc("GET /control/config", s.handleGetConfig)
	mux.HandleFunc("PATCH /control/config", s.handlePatchConfig)
	mux.HandleFunc("GET /control/stats", s.handleStats)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "healthy")
	})

	// No WriteTimeout: a throttled response is supposed to outlive any
	// fixed deadline.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	return s, nil
}

// Group returns the shared bandwidth group downloads flow through.
func (s *Server) Group() *bandwidth.Group {
	return s.group
}

// Start opens the listener and serves in the background. Use Addr to
// learn the bound address and Shutdown to stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("relay: serve error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// ListenAndServe blocks serving requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight handlers up
// to ctx's deadline, then destroys every remaining throttle.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.group.Shutdown()
	return err
}

// handleTransfer streams {size} synthetic bytes through a fresh
// throttle on the shared group.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if s.admit != nil && !s.admit.Allow() {
		http.Error(w, "session rate exceeded, retry later", http.StatusTooManyRequests)
		return
	}

	total, err := parseSize(r.PathValue("size"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid size: %v", err), http.StatusBadRequest)
		return
	}
	if total > s.maxBytes {
		http.Error(w, fmt.Sprintf("size exceeds limit of %s", humanize.IBytes(uint64(s.maxBytes))), http.StatusBadRequest)
		return
	}

	session := uuid.NewString()

	sink := metrics.Observe(bandwidth.NewWriterSink(w), s.metrics)
	th, err := s.group.CreateThrottle(sink)
	if err != nil {
		s.metrics.StreamAborted()
		http.Error(w, "link is shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
	w.Header().Set("X-Session-Id", session)

	start := time.Now()
	bw := bandwidth.NewWriter(r.Context(), th)
	buf := make([]byte, transferChunk)
	for i := range buf {
		buf[i] = byte(i)
	}

	var sent int64
	var runErr error
	for sent < total {
		n := int64(len(buf))
		if rem := total - sent; rem < n {
			n = rem
		}
		wrote, err := bw.Write(buf[:n])
		sent += int64(wrote)
		if err != nil {
			runErr = err
			break
		}
	}

	if err := s.finishStream(th, bw, runErr); err != nil {
		log.Printf("relay: session %s aborted after %s: %v", session, humanize.IBytes(uint64(sent)), err)
		return
	}
	log.Printf("relay: session %s served %s in %v", session, humanize.IBytes(uint64(total)), time.Since(start).Round(time.Millisecond))
}

// handleFile streams a file below the configured root through the
// shared group.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.admit != nil && !s.admit.Allow() {
		http.Error(w, "session rate exceeded, retry later", http.StatusTooManyRequests)
		return
	}

	// Collapse any traversal before touching the filesystem.
	clean := filepath.Clean("/" + r.PathValue("path"))
	full := filepath.Join(s.root, strings.TrimPrefix(clean, "/"))

	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}

	session := uuid.NewString()

	sink := metrics.Observe(bandwidth.NewWriterSink(w), s.metrics)
	th, err := s.group.CreateThrottle(sink)
	if err != nil {
		s.metrics.StreamAborted()
		http.Error(w, "link is shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.Header().Set("X-Session-Id", session)

	start := time.Now()
	bw := bandwidth.NewWriter(r.Context(), th)

	_, runErr := io.CopyBuffer(bw, f, make([]byte, transferChunk))
	if err := s.finishStream(th, bw, runErr); err != nil {
		log.Printf("relay: session %s aborted serving %s: %v", session, clean, err)
		return
	}
	log.Printf("relay: session %s served %s (%s) in %v", session, clean, humanize.IBytes(uint64(fi.Size())), time.Since(start).Round(time.Millisecond))
}

// finishStream closes out a download, aborting whatever did not drain.
// Returns the error that cut the stream short, if any.
func (s *Server) finishStream(th *bandwidth.Throttle, bw *bandwidth.Writer, runErr error) error {
	if runErr == nil {
		runErr = bw.Close()
	}
	if th.State() == bandwidth.StateActive {
		th.Abort()
	}
	if th.State() == bandwidth.StateAborted {
		// Aborted downloads bypass the sink's close path, so the
		// observer never sees them finish.
		s.metrics.StreamAborted()
	}
	return runErr
}

// parseSize reads a download size in humanized syntax ("4 MiB", "512K",
// "1000000").
func parseSize(text string) (int64, error) {
	n, err := humanize.ParseBytes(text)
	if err != nil {
		return 0, err
	}
	if n > uint64(math.MaxInt64) {
		return 0, fmt.Errorf("size %d out of range", n)
	}
	return int64(n), nil
}

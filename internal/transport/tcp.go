package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nictuku/voxelserver/internal/protocol"
)

// ErrAlreadyBound is returned by Bind when called a second time on
// the same Transport (§4.11 "double-bind is rejected").
var ErrAlreadyBound = errors.New("transport: already bound")

// StatsFactory builds a fresh StatsRecorder for one connection.
type StatsFactory func() protocol.StatsRecorder

// TCPTransport accepts plain TCP connections: one acceptor goroutine,
// plus a worker-pool-bounded handler per accepted connection
// (§4.11 "a worker pool sized to CPU parallelism handles established
// connections").
type TCPTransport struct {
	dispatcher   Dispatcher
	registry     *protocol.Registry
	statsFactory StatsFactory
	sem          chan struct{}

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Connection]struct{}

	log *logrus.Entry
}

// NewTCPTransport builds a TCPTransport bounding concurrently handled
// connections to workers (0 selects an unbounded pool, not
// recommended outside tests).
func NewTCPTransport(dispatcher Dispatcher, registry *protocol.Registry, statsFactory StatsFactory, workers int) *TCPTransport {
	var sem chan struct{}
	if workers > 0 {
		sem = make(chan struct{}, workers)
	}
	return &TCPTransport{
		dispatcher:   dispatcher,
		registry:     registry,
		statsFactory: statsFactory,
		sem:          sem,
		conns:        make(map[*Connection]struct{}),
		log:          logrus.WithField("component", "transport").WithField("transport", "tcp"),
	}
}

// Kind implements Transport.
func (t *TCPTransport) Kind() Kind { return KindTCP }

// Bind starts listening on addr and spawns the accept loop.
func (t *TCPTransport) Bind(addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return ErrAlreadyBound
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: tcp listen %s: %w", addr, err)
	}
	t.listener = ln
	go t.acceptLoop(ln)
	return nil
}

func (t *TCPTransport) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			t.log.WithError(err).Debug("accept loop exiting")
			return
		}
		if t.sem != nil {
			t.sem <- struct{}{}
		}
		go func() {
			if t.sem != nil {
				defer func() { <-t.sem }()
			}
			t.handle(conn)
		}()
	}
}

func (t *TCPTransport) handle(conn net.Conn) {
	var stats protocol.StatsRecorder
	if t.statsFactory != nil {
		stats = t.statsFactory()
	}
	c := newConnection(conn, conn.RemoteAddr().String(), KindTCP, t.registry, stats, t.dispatcher)

	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()

	c.run()

	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()
}

// Shutdown closes the listener and waits up to grace for in-flight
// connections to drain.
func (t *TCPTransport) Shutdown(grace time.Duration) error {
	t.mu.Lock()
	ln := t.listener
	conns := make([]*Connection, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	deadline := time.Now().Add(grace)
	for _, c := range conns {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		c.waitClosed(remaining)
	}
	return nil
}

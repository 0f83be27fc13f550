// Package command implements the CommandPump of §4.12: an incoming
// command, decoded on a network worker goroutine, must run on the
// tick thread of the world it targets. The pump resolves that target
// and re-enqueues execution there, returning a future-like handle
// whose completion is signaled when the command actually runs, not
// when it was merely queued.
package command

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nictuku/voxelserver/internal/entity"
	"github.com/nictuku/voxelserver/internal/protocol"
	"github.com/nictuku/voxelserver/internal/world"
)

// Context is the CommandContext of §6's control plane: who sent the
// command, its arguments, a reply sink, and a permission check — all
// supplied by the host (chat rendering, permission storage are out of
// scope per §1's non-goals).
type Context struct {
	Sender entity.ID
	Args   []string

	reply   func(message string)
	hasPerm func(perm string) bool
}

// NewContext builds a Context. reply and hasPerm may be nil (reply is
// then a no-op; every permission check then succeeds).
func NewContext(sender entity.ID, args []string, reply func(string), hasPerm func(string) bool) Context {
	return Context{Sender: sender, Args: args, reply: reply, hasPerm: hasPerm}
}

// SendReply delivers message to the command's sender.
func (c Context) SendReply(message string) {
	if c.reply != nil {
		c.reply(message)
	}
}

// RequirePermission returns ErrCommandPermissionDenied, surfaced only
// to the sender (§7), if the sender lacks perm.
func (c Context) RequirePermission(perm string) error {
	if c.hasPerm == nil || c.hasPerm(perm) {
		return nil
	}
	return protocol.ErrCommandPermissionDenied
}

// Handler is a command body. It runs on the target world's tick
// thread — the same thread-confinement guarantee any System gets.
type Handler func(ctx Context, w *world.World) error

// Future is the CompletableFuture-like handle of §5: Wait blocks
// until the dispatched handler has actually executed (or the pump
// rejected it before it was ever enqueued), not until it was queued.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done returns a channel closed once the command has executed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the command completes and returns its error, if
// any.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// Pump resolves command targets to worlds and re-enqueues execution
// onto each world's own tick thread (§4.12).
type Pump struct {
	mu     sync.RWMutex
	worlds map[string]*world.World

	log *logrus.Entry
}

// NewPump creates an empty Pump.
func NewPump() *Pump {
	return &Pump{
		worlds: make(map[string]*world.World),
		log:    logrus.WithField("component", "command"),
	}
}

// RegisterWorld makes w a valid Execute/Sudo target under its Name.
func (p *Pump) RegisterWorld(w *world.World) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.worlds[w.Name] = w
}

// UnregisterWorld removes name from the pump's target set (world
// shutdown).
func (p *Pump) UnregisterWorld(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.worlds, name)
}

func (p *Pump) lookup(name string) (*world.World, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.worlds[name]
	return w, ok
}

// Execute resolves worldName, enqueues h onto that world's tick
// thread, and returns a Future completed once h has run (§4.12 steps
// 1-3). An unresolvable world name fails the future immediately with
// ErrWorldMismatch without ever touching a tick thread.
func (p *Pump) Execute(worldName string, ctx Context, h Handler) *Future {
	future := newFuture()
	w, ok := p.lookup(worldName)
	if !ok {
		future.complete(protocol.ErrWorldMismatch)
		return future
	}
	w.Enqueue(func(w *world.World) {
		future.complete(h(ctx, w))
	})
	return future
}

// Sudo implements "/sudo" — execute a command as another player,
// potentially in another world. Per §4.12 it is a two-step enqueue:
// the target-world lookup happens on the caller's thread (here, the
// goroutine calling Sudo, which is the command's originating world's
// tick thread), and only the resolved handler body is re-enqueued
// onto the target world's own tick executor. This is the same
// primitive Execute uses; it is named separately because callers must
// reason about it as explicitly crossing a world boundary, unlike a
// command's ordinary (same-world) dispatch.
func (p *Pump) Sudo(targetWorldName string, ctx Context, h Handler) *Future {
	return p.Execute(targetWorldName, ctx, h)
}

// Broadcast fans h out to every registered world concurrently and
// collects per-world errors via a channel (never a bare slice
// appended to from multiple goroutines), resolving the
// ValidateCPBCommand race named in §9/§12.4. It blocks until every
// world has executed h.
func (p *Pump) Broadcast(ctx Context, h Handler) []error {
	p.mu.RLock()
	targets := make([]*world.World, 0, len(p.worlds))
	for _, w := range p.worlds {
		targets = append(targets, w)
	}
	p.mu.RUnlock()

	results := make(chan error, len(targets))
	var wg sync.WaitGroup
	for _, w := range targets {
		wg.Add(1)
		w.Enqueue(func(w *world.World) {
			defer wg.Done()
			results <- h(ctx, w)
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]error, 0, len(targets))
	for err := range results {
		if err != nil {
			collected = append(collected, err)
		}
	}
	return collected
}

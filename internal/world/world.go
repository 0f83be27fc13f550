// Package world owns one tick goroutine per running world: the single
// thread entity-store mutations, fluid ticks, command execution and
// replication for that world's entities all run on (§5 "One tick
// thread per world"). It generalizes the teacher's Game.Serve
// select-loop (_teacher_raw/src/chunkymonkey/game.go) from a single
// hardcoded world to any number of independently ticking worlds, each
// with its own entity store, fluid scheduler and replicator.
package world

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nictuku/voxelserver/internal/entity"
	"github.com/nictuku/voxelserver/internal/fluid"
	"github.com/nictuku/voxelserver/internal/replication"
)

// System runs once per tick, in the order it was registered with
// AddSystem (§5 "systems within a tick run in declared dependency
// order").
type System interface {
	Tick(store *entity.Store, tick uint64)
}

// SystemFunc adapts a plain function to System.
type SystemFunc func(store *entity.Store, tick uint64)

// Tick implements System.
func (f SystemFunc) Tick(store *entity.Store, tick uint64) { f(store, tick) }

// Player is what the world tracks about a connected player: its
// entity, a session identifier used as the typed attribute-map key
// the stats/logging layer attaches to (§9's UUID-shaped session
// identifier resolution), and the replication.Viewer it streams
// updates to.
type Player struct {
	ID        entity.ID
	SessionID uuid.UUID
	Viewer    replication.Viewer
}

// Prefab populates a freshly spawned entity's components via cb,
// deferring the actual column writes to the CommandBuffer's Apply so
// a Spawn call from outside the tick thread never races a system
// mid-tick.
type Prefab func(store *entity.Store, cb *entity.CommandBuffer, id entity.ID)

// World is the owning tick thread for one set of entities, backed by
// an entity.Store, a fluid.Scheduler over one fluid.Grid, and a
// replication.Replicator. All three are mutated exclusively from the
// tick goroutine started by Run.
type World struct {
	Name string

	store      *entity.Store
	commands   *entity.CommandBuffer
	scheduler  *fluid.Scheduler
	replicator *replication.Replicator
	systems    []System

	tickInterval time.Duration
	tick         uint64

	workQueue        chan func(*World)
	playerConnect    chan Player
	playerDisconnect chan entity.ID

	players map[entity.ID]Player

	stopCh    chan struct{}
	stoppedCh chan struct{}

	log *logrus.Entry
}

// New builds a World. scheduler and replicator may be nil for a world
// with no fluid simulation or no network viewers (tests, headless
// command targets).
func New(name string, store *entity.Store, scheduler *fluid.Scheduler, replicator *replication.Replicator, tickInterval time.Duration) *World {
	return &World{
		Name:             name,
		store:            store,
		commands:         entity.NewCommandBuffer(),
		scheduler:        scheduler,
		replicator:       replicator,
		tickInterval:     tickInterval,
		workQueue:        make(chan func(*World), 256),
		playerConnect:    make(chan Player),
		playerDisconnect: make(chan entity.ID),
		players:          make(map[entity.ID]Player),
		stopCh:           make(chan struct{}),
		stoppedCh:        make(chan struct{}),
		log:              logrus.WithField("component", "world").WithField("world", name),
	}
}

// AddSystem registers s to run every tick, after command-buffer
// application and before replication. Must be called before Run.
func (w *World) AddSystem(s System) {
	w.systems = append(w.systems, s)
}

// Store returns the world's entity store. Only safe to read/mutate
// from the tick goroutine, or via Enqueue/Buffer otherwise.
func (w *World) Store() *entity.Store { return w.store }

// Buffer returns the CommandBuffer used for off-tick-thread mutations
// (§4.5); its Spawn, Despawn, AddComponent and RemoveComponent calls
// are safe from any goroutine.
func (w *World) Buffer() *entity.CommandBuffer { return w.commands }

// Tick reports the current tick count (diagnostics, tests).
func (w *World) Tick() uint64 { return w.tick }

// Enqueue queues fn to run on the tick goroutine at the next
// iteration of Run's select loop (§12.1, generalizing Game.enqueue).
// It blocks if the queue is full, exactly as the teacher's unbounded
// wait on a buffered channel does.
func (w *World) Enqueue(fn func(*World)) {
	if fn == nil {
		return
	}
	w.workQueue <- fn
}

// Spawn allocates a new entity on the tick thread and applies prefab
// to it, returning a channel that receives the assigned ID once the
// enqueued work actually runs (§6 "World::spawn(prefab) -> EntityId").
func (w *World) Spawn(prefab Prefab) <-chan entity.ID {
	result := make(chan entity.ID, 1)
	w.Enqueue(func(w *World) {
		id := w.store.Spawn()
		if prefab != nil {
			prefab(w.store, w.commands, id)
			w.commands.Apply(w.store)
		}
		result <- id
	})
	return result
}

// Connect registers p as connected, to be observed on the tick thread
// before the next tick runs.
func (w *World) Connect(p Player) {
	select {
	case w.playerConnect <- p:
	case <-w.stopCh:
	}
}

// Disconnect removes the player occupying id.
func (w *World) Disconnect(id entity.ID) {
	select {
	case w.playerDisconnect <- id:
	case <-w.stopCh:
	}
}

// Run drives the tick loop until Stop is called. It must run in its
// own goroutine; callers get Stop/Wait to manage its lifetime.
func (w *World) Run() {
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case fn := <-w.workQueue:
			fn(w)
		case p := <-w.playerConnect:
			w.onPlayerConnect(p)
		case id := <-w.playerDisconnect:
			w.onPlayerDisconnect(id)
		case <-ticker.C:
			w.onTick()
		}
	}
}

// Stop signals Run to exit and waits for it to do so.
func (w *World) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *World) onPlayerConnect(p Player) {
	w.players[p.ID] = p
	if w.replicator != nil && p.Viewer != nil {
		w.replicator.AddViewer(p.Viewer)
		w.replicator.MarkEntered(p.Viewer, p.ID)
	}
	w.log.WithField("session_id", p.SessionID).Info("player connected")
}

func (w *World) onPlayerDisconnect(id entity.ID) {
	p, ok := w.players[id]
	if !ok {
		return
	}
	delete(w.players, id)
	if w.replicator != nil && p.Viewer != nil {
		w.replicator.RemoveViewer(p.Viewer)
	}
	w.log.WithField("session_id", p.SessionID).Info("player disconnected")
}

// onTick runs one tick in the order §5 mandates: apply command
// buffer, run systems in declared order, run replication, then flush
// outbound (left to the transport layer's own write-loop goroutines).
func (w *World) onTick() {
	w.tick++

	w.commands.Apply(w.store)

	for _, s := range w.systems {
		s.Tick(w.store, w.tick)
	}

	if w.scheduler != nil {
		w.scheduler.RunDue(w.tick)
		for _, evt := range w.scheduler.DrainSoundEvents() {
			w.log.WithFields(logrus.Fields{
				"x": evt.At.X, "y": evt.At.Y, "z": evt.At.Z, "sound_index": evt.Index,
			}).Debug("fluid collision sound event")
		}
	}

	if w.replicator != nil {
		w.replicator.Tick(w.store)
	}
}

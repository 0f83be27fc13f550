package replication

import (
	"github.com/nictuku/voxelserver/internal/entity"
	"github.com/nictuku/voxelserver/internal/protocol"
)

// Viewer is a single player-connection's outward packet sink. Send
// must not block the caller's tick thread for long; transports are
// expected to queue internally.
type Viewer interface {
	Send(pkt protocol.Packet) error
}

type tracker struct {
	viewer  Viewer
	visible map[uint32]entity.ID
	entered []entity.ID
	exited  []entity.ID
}

// Replicator drives §4.6: per tick, every viewer is sent an Init for
// entities that just entered its view, a Remove (plus an optional
// DynamicLightCleanupPacket) for entities that just left, and a
// ComponentUpdate carrying whatever was dirty for everything else it
// still observes.
type Replicator struct {
	sources    []ComponentSource
	lightClass map[entity.ComponentType]bool
	trackers   map[Viewer]*tracker
}

// New creates a Replicator with no registered component sources or
// viewers.
func New() *Replicator {
	return &Replicator{
		lightClass: make(map[entity.ComponentType]bool),
		trackers:   make(map[Viewer]*tracker),
	}
}

// RegisterSource adds a component type to the set the Replicator
// includes in Init/ComponentUpdate packets. Order of registration
// does not affect wire output (components are encoded by type-id, not
// position), but should happen once at startup before any Tick.
func (r *Replicator) RegisterSource(src ComponentSource) {
	r.sources = append(r.sources, src)
}

// RegisterLightClass marks typeID as a "DynamicLight-class" component
// per §4.6 step 3: its removal alongside a view-exit triggers a
// secondary DynamicLightCleanupPacket.
func (r *Replicator) RegisterLightClass(typeID entity.ComponentType) {
	r.lightClass[typeID] = true
}

// AddViewer registers viewer with an empty observation set.
func (r *Replicator) AddViewer(viewer Viewer) {
	if _, ok := r.trackers[viewer]; ok {
		return
	}
	r.trackers[viewer] = &tracker{visible: make(map[uint32]entity.ID)}
}

// RemoveViewer drops viewer and forgets everything it was observing.
// It does not emit Remove packets — the viewer is gone, there is
// nowhere to send them.
func (r *Replicator) RemoveViewer(viewer Viewer) {
	delete(r.trackers, viewer)
}

// MarkEntered records that id just became observable to viewer. The
// corresponding Init packet is sent on the next Tick.
func (r *Replicator) MarkEntered(viewer Viewer, id entity.ID) {
	t, ok := r.trackers[viewer]
	if !ok {
		return
	}
	if _, already := t.visible[id.Index()]; already {
		return
	}
	t.entered = append(t.entered, id)
}

// MarkExited records that id just stopped being observable to viewer.
// The corresponding Remove packet is sent on the next Tick.
func (r *Replicator) MarkExited(viewer Viewer, id entity.ID) {
	t, ok := r.trackers[viewer]
	if !ok {
		return
	}
	if _, ok := t.visible[id.Index()]; !ok {
		return
	}
	t.exited = append(t.exited, id)
}

// Tick runs one full replication pass against store: apply queued
// entry/exit transitions, snapshot every dirty component of every
// currently-observed entity, deliver Init/Remove/ComponentUpdate
// packets to every viewer, then consume the dirty bits that were
// delivered.
func (r *Replicator) Tick(store *entity.Store) {
	dirtyByIndex := r.snapshotDirty(store)

	for _, t := range r.trackers {
		r.deliverExits(t, store)
		r.deliverUpdates(t, dirtyByIndex)
		r.deliverEnters(t)
	}

	r.consumeDelivered(dirtyByIndex)
}

// snapshotDirty gathers, for every entity any tracker currently
// observes (or is about to start observing), every dirty component's
// encoded payload — read-only, not yet consumed. This is phase (a) of
// §4.6's two-phase dirty consumption: the dirty bit is read-only
// until every viewer has been served.
func (r *Replicator) snapshotDirty(store *entity.Store) map[uint32]componentSet {
	watched := make(map[uint32]bool)
	for _, t := range r.trackers {
		for idx := range t.visible {
			watched[idx] = true
		}
		for _, id := range t.entered {
			watched[id.Index()] = true
		}
	}

	dirty := make(map[uint32]componentSet)
	for _, src := range r.sources {
		for idx := range watched {
			payload, isDirty, ok := src.Snapshot(idx)
			if !ok || !isDirty {
				continue
			}
			set, exists := dirty[idx]
			if !exists {
				set = make(componentSet)
				dirty[idx] = set
			}
			set[src.TypeID()] = payload
		}
	}
	return dirty
}

func (r *Replicator) consumeDelivered(dirty map[uint32]componentSet) {
	for idx, set := range dirty {
		for typeID := range set {
			for _, src := range r.sources {
				if src.TypeID() == typeID {
					src.ConsumeDirty(idx)
					break
				}
			}
		}
	}
}

func (r *Replicator) fullState(index uint32) componentSet {
	set := make(componentSet)
	for _, src := range r.sources {
		payload, _, ok := src.Snapshot(index)
		if !ok {
			continue
		}
		set[src.TypeID()] = payload
	}
	return set
}

func (r *Replicator) deliverEnters(t *tracker) {
	if len(t.entered) == 0 {
		return
	}
	for _, id := range t.entered {
		t.visible[id.Index()] = id
		_ = t.viewer.Send(&InitPacket{Entity: id, Components: r.fullState(id.Index())})
	}
	t.entered = t.entered[:0]
}

func (r *Replicator) deliverExits(t *tracker, store *entity.Store) {
	if len(t.exited) == 0 {
		return
	}
	for _, id := range t.exited {
		delete(t.visible, id.Index())
		_ = t.viewer.Send(&RemovePacket{Entity: id})

		if store.Alive(id) && r.hadLightClassComponent(id.Index()) {
			_ = t.viewer.Send(&DynamicLightCleanupPacket{Entity: id})
		}
	}
	t.exited = t.exited[:0]
}

func (r *Replicator) hadLightClassComponent(index uint32) bool {
	for _, src := range r.sources {
		if r.lightClass[src.TypeID()] && src.Has(index) {
			return true
		}
	}
	return false
}

func (r *Replicator) deliverUpdates(t *tracker, dirty map[uint32]componentSet) {
	for idx, id := range t.visible {
		set, ok := dirty[idx]
		if !ok || len(set) == 0 {
			continue
		}
		_ = t.viewer.Send(&ComponentUpdatePacket{Entity: id, Components: set})
	}
}

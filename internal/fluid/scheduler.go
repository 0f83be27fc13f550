package fluid

import "container/heap"

// scheduledEntry is one pending cell tick, ordered by the absolute
// tick it becomes due.
type scheduledEntry struct {
	at       Coord
	due      uint64
	fluidID  uint8
	index    int // heap.Interface bookkeeping
	canceled bool
}

type entryHeap []*scheduledEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].index < h[j].index
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*scheduledEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler drives a Grid's fluid cells through their Tickers,
// throttling and staggering updates across loaded chunks (§4.9). It
// owns a min-heap of pending (coord, due-tick) entries plus a
// waiting-on-chunk set that OnChunkLoaded drains.
type Scheduler struct {
	tickers map[uint8]*Ticker
	grid    *Grid
	acc     *CachedAccessor

	pending entryHeap
	byCoord map[Coord]*scheduledEntry

	waitingForChunks map[ChunkCoord][]Coord

	soundEvents []SoundEventAt

	now uint64
}

// NewScheduler builds a Scheduler over grid, with one Ticker per
// configured fluid-id.
func NewScheduler(grid *Grid, configs []Config) *Scheduler {
	tickers := make(map[uint8]*Ticker, len(configs))
	for _, cfg := range configs {
		tickers[cfg.FluidID] = NewTicker(cfg)
	}
	s := &Scheduler{
		tickers:          tickers,
		grid:             grid,
		acc:              NewCachedAccessor(grid),
		byCoord:          make(map[Coord]*scheduledEntry),
		waitingForChunks: make(map[ChunkCoord][]Coord),
	}
	heap.Init(&s.pending)
	return s
}

// Schedule enqueues (or reschedules) the cell at `at`, owned by
// fluidID, to tick at absolute tick `due`. An existing entry for the
// same coordinate is replaced rather than duplicated — only one
// pending tick per cell exists at a time.
func (s *Scheduler) Schedule(at Coord, fluidID uint8, due uint64) {
	if existing, ok := s.byCoord[at]; ok {
		existing.canceled = true
	}
	e := &scheduledEntry{at: at, due: due, fluidID: fluidID}
	s.byCoord[at] = e
	heap.Push(&s.pending, e)
}

// Wake implements Ticker's Waker interface: reschedule `c` for the
// very next tick, if a cell carrying fluid is present there and it
// isn't already due sooner. Wake is a no-op for empty cells or cells
// with no configured Ticker, since there is nothing to tick.
func (s *Scheduler) Wake(c Coord) {
	cell, status := s.acc.Get(c)
	if status == StatusUnloaded || cell.IsEmpty() {
		return
	}
	if _, ok := s.tickers[cell.FluidID]; !ok {
		return
	}
	if existing, ok := s.byCoord[c]; ok && !existing.canceled && existing.due <= s.now+1 {
		return
	}
	s.Schedule(c, cell.FluidID, s.now+1)
}

// OnChunkLoaded releases every cell that had been parked waiting for
// cc to load, rescheduling each for the very next tick.
func (s *Scheduler) OnChunkLoaded(cc ChunkCoord) {
	waiting, ok := s.waitingForChunks[cc]
	if !ok {
		return
	}
	delete(s.waitingForChunks, cc)
	for _, at := range waiting {
		cell, status := s.acc.Get(at)
		if status == StatusUnloaded || cell.IsEmpty() {
			continue
		}
		s.Schedule(at, cell.FluidID, s.now+1)
	}
}

// RunDue pops and ticks every entry due at or before `tick`,
// interpreting each Ticker's returned Strategy to decide what happens
// next to that cell.
func (s *Scheduler) RunDue(tick uint64) {
	s.now = tick
	for s.pending.Len() > 0 && s.pending[0].due <= tick {
		e := heap.Pop(&s.pending).(*scheduledEntry)
		if e.canceled {
			continue
		}
		if s.byCoord[e.at] == e {
			delete(s.byCoord, e.at)
		}

		ticker, ok := s.tickers[e.fluidID]
		if !ok {
			continue
		}
		strategy := ticker.Tick(s.acc, s, tick, e.at)
		if strategy.Sound != nil {
			s.soundEvents = append(s.soundEvents, *strategy.Sound)
		}
		switch strategy.Kind {
		case KindSleep:
			n := strategy.Ticks
			if n <= 0 {
				n = 1
			}
			s.Schedule(e.at, e.fluidID, tick+uint64(n))
		case KindRetick:
			s.Schedule(e.at, e.fluidID, tick+1)
		case KindWaitForChunks:
			// Park under every unloaded chunk of the cell's 3x3x3
			// neighborhood, which holds every cell Tick reads.
			parked := make(map[ChunkCoord]bool)
			for dx := int32(-1); dx <= 1; dx++ {
				for dy := int32(-1); dy <= 1; dy++ {
					for dz := int32(-1); dz <= 1; dz++ {
						cc := ChunkOf(e.at.Add(dx, dy, dz))
						if !parked[cc] && !s.grid.Loaded(cc) {
							parked[cc] = true
							s.waitingForChunks[cc] = append(s.waitingForChunks[cc], e.at)
						}
					}
				}
			}
		case KindDead:
			// drop; no further scheduling for this cell.
		}
	}
}

// Pending reports how many cells currently have a pending tick
// entry, for tests and diagnostics.
func (s *Scheduler) Pending() int { return len(s.byCoord) }

// DrainSoundEvents returns every collision sound event queued by
// RunDue since the last call and clears the queue, mirroring the
// replicator's two-phase dirty-consumption pattern so a caller can
// forward them to nearby clients once per tick without double-sending.
func (s *Scheduler) DrainSoundEvents() []SoundEventAt {
	if len(s.soundEvents) == 0 {
		return nil
	}
	drained := s.soundEvents
	s.soundEvents = nil
	return drained
}

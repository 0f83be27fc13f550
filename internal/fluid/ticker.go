package fluid

// cardinalOffsets is the fixed tie-break order this implementation's
// resolution of the finite-fluid horizontal-distribution open
// question (§9) requires: "(-1,0),(1,0),(0,-1),(0,1)".
var cardinalOffsets = [4][2]int32{
	{-1, 0},
	{1, 0},
	{0, -1},
	{0, 1},
}

// Waker lets a Ticker ask the Scheduler to re-examine a cell at the
// next eligible tick, without the (stateless) Ticker holding any
// scheduling state itself.
type Waker interface {
	Wake(c Coord)
}

// Ticker is one fluid-id's immutable tick rule. It holds no mutable
// state of its own (§4.9 "Stateless-per-instance"); everything it
// reads and writes lives in the Grid via the Accessor passed to Tick.
type Ticker struct {
	Config Config
}

// NewTicker wraps cfg.
func NewTicker(cfg Config) *Ticker { return &Ticker{Config: cfg} }

// Tick runs the six-step update rule of §4.9 for the cell at `at`,
// assumed to already carry this ticker's fluid-id.
func (t *Ticker) Tick(acc Accessor, waker Waker, tick uint64, at Coord) Strategy {
	flowRate := t.Config.FlowRate
	if flowRate <= 0 {
		flowRate = 1
	}

	// Step 1: stagger updates by cell position so every fluid cell in
	// the world doesn't re-evaluate on the same tick.
	phase := int(uint32(at.X)^uint32(at.Y)^uint32(at.Z)) % flowRate
	if phase < 0 {
		phase += flowRate
	}
	current := int(tick % uint64(flowRate))
	if current != phase {
		wait := phase - current
		if wait <= 0 {
			wait += flowRate
		}
		return Sleep(wait)
	}

	// Step 2: read the cell and its neighborhood.
	self, status := acc.Get(at)
	if status == StatusUnloaded {
		return WaitForChunks()
	}
	if self.FluidID != t.Config.FluidID {
		// No longer this ticker's concern (consumed by another
		// fluid, overwritten by a block, etc).
		return Dead()
	}

	up, s1 := acc.Get(at.Add(0, 1, 0))
	down, s2 := acc.Get(at.Add(0, -1, 0))
	west, s3 := acc.Get(at.Add(-1, 0, 0))
	east, s4 := acc.Get(at.Add(1, 0, 0))
	north, s5 := acc.Get(at.Add(0, 0, -1))
	south, s6 := acc.Get(at.Add(0, 0, 1))
	for _, s := range []Status{s1, s2, s3, s4, s5, s6} {
		if s == StatusUnloaded {
			return WaitForChunks()
		}
	}
	horiz := map[[2]int32]Cell{
		{-1, 0}: west,
		{1, 0}:  east,
		{0, -1}: north,
		{0, 1}:  south,
	}
	belowHoriz := make(map[[2]int32]Cell, 4)
	for _, off := range cardinalOffsets {
		cell, s := acc.Get(at.Add(off[0], -1, off[1]))
		if s == StatusUnloaded {
			return WaitForChunks()
		}
		belowHoriz[off] = cell
	}

	changed := false

	// Step 3: demotion when not alive.
	if !t.isAlive(self, up, down, horiz) {
		if t.Config.CanDemote {
			if self.Level <= 1 {
				self = Cell{}
			} else {
				self.Level--
			}
			acc.Set(at, self)
			changed = true
			if self.IsEmpty() {
				wakeSurrounding(waker, at)
				return Dead()
			}
		}
	}

	// Step 4: downward flow. A configured collision rule (§4.9
	// "Collision rules") takes priority over ordinary merging: flowing
	// into a different fluid-id replaces the target cell's contents
	// instead of averaging levels; the flowing cell is left unchanged.
	if rule, ok := t.collisionRule(down.FluidID); ok {
		target := at.Add(0, -1, 0)
		t.applyCollision(acc, waker, target, rule)
		waker.Wake(at)
		wakeSurrounding(waker, at)
		strategy := Sleep(flowRate)
		strategy.Sound = soundEventFor(rule, target)
		return strategy
	}
	if t.canFlowInto(down) {
		room := MaxLevel
		if !down.IsEmpty() {
			room = MaxLevel - int(down.Level)
		}
		amount := int(self.Level)
		if amount > room {
			amount = room
		}
		if amount > 0 {
			newBelow := Cell{FluidID: t.Config.FluidID, Level: uint8(min(MaxLevel, int(down.Level)+amount))}
			acc.Set(at.Add(0, -1, 0), newBelow)

			if t.Config.Variant == VariantFinite {
				self.Level -= uint8(amount)
			}
			if self.Level == 0 {
				self = Cell{}
			}
			acc.Set(at, self)

			waker.Wake(at) // "mark self for re-tick"
			wakeSurrounding(waker, at)
			wakeSurrounding(waker, at.Add(0, -1, 0))
			return Sleep(flowRate)
		}
	}

	// Step 5: horizontal flow, two-step greedy-sink lookahead.
	type candidate struct {
		off         [2]int32
		level       int
		hasDownhill bool
	}
	var best *candidate
	var bestFallback *candidate
	for _, off := range cardinalOffsets {
		n := horiz[off]
		if rule, ok := t.collisionRule(n.FluidID); ok {
			target := at.Add(off[0], 0, off[1])
			t.applyCollision(acc, waker, target, rule)
			wakeSurrounding(waker, at)
			strategy := Sleep(flowRate)
			strategy.Sound = soundEventFor(rule, target)
			return strategy
		}
		if !t.eligibleHorizontalTarget(self, n) {
			continue
		}
		below := belowHoriz[off]
		hasDownhill := passable(below) || (below.FluidID == t.Config.FluidID && below.Level < n.Level)
		c := candidate{off: off, level: int(n.Level), hasDownhill: hasDownhill}

		if bestFallback == nil || c.level < bestFallback.level {
			bestFallback = &c
		}
		if hasDownhill && (best == nil || c.level < best.level) {
			best = &c
		}
	}
	chosen := best
	if chosen == nil {
		chosen = bestFallback
	}
	if chosen != nil {
		target := at.Add(chosen.off[0], 0, chosen.off[1])
		n := horiz[chosen.off]
		newLevel := n.Level + 1
		if int(self.Level)-1 < int(newLevel) {
			newLevel = self.Level - 1
		}
		acc.Set(target, Cell{FluidID: t.Config.FluidID, Level: newLevel})

		if t.Config.Variant == VariantFinite {
			delivered := newLevel - n.Level
			if delivered > self.Level {
				delivered = self.Level
			}
			self.Level -= delivered
			if self.Level == 0 {
				self = Cell{}
			}
			acc.Set(at, self)
		}
		changed = true
		wakeSurrounding(waker, at)
		wakeSurrounding(waker, target)
	}

	if changed {
		return Sleep(flowRate)
	}
	return Sleep(flowRate)
}

func (t *Ticker) isAlive(self, up, down Cell, horiz map[[2]int32]Cell) bool {
	if self.IsSource() {
		return true
	}
	if up.FluidID == t.Config.FluidID && up.Level > 0 {
		return true
	}
	for _, n := range horiz {
		if n.FluidID == t.Config.FluidID && n.Level > self.Level {
			return true
		}
	}
	if t.Config.SupportedBy != 0 && down.BlockID == t.Config.SupportedBy {
		return true
	}
	return false
}

// passable reports whether cell has neither a solid block nor a
// fluid — unlike Cell.IsEmpty, which only checks for the absence of
// fluid and so still reports true for a solid block sitting under no
// fluid.
func passable(cell Cell) bool {
	return cell.BlockID == 0 && cell.FluidID == 0
}

// canFlowInto reports whether a downward or horizontal flow may
// target cell: passable (no block, no fluid), the same fluid with
// spare room, or a different fluid this ticker has a collision rule
// for (§4.9 "Collision rules") — the caller applies the collision
// instead of merging levels.
func (t *Ticker) canFlowInto(cell Cell) bool {
	if passable(cell) {
		return true
	}
	if cell.FluidID == t.Config.FluidID && cell.Level < MaxLevel {
		return true
	}
	_, ok := t.collisionRule(cell.FluidID)
	return ok
}

func (t *Ticker) eligibleHorizontalTarget(self, n Cell) bool {
	if self.Level == 0 {
		return false
	}
	if passable(n) {
		return true
	}
	if n.FluidID == t.Config.FluidID && n.Level < self.Level-1 {
		return true
	}
	_, ok := t.collisionRule(n.FluidID)
	return ok
}

// collisionRule looks up the rule this ticker's fluid applies when
// flowing into a cell occupied by targetFluidID, per §4.9 "Collision
// rules". It never matches fluid-id 0 (empty) or this ticker's own
// fluid-id.
func (t *Ticker) collisionRule(targetFluidID uint8) (CollisionRule, bool) {
	if targetFluidID == 0 || targetFluidID == t.Config.FluidID {
		return CollisionRule{}, false
	}
	rule, ok := t.Config.Collisions[targetFluidID]
	return rule, ok
}

// applyCollision replaces target's contents per rule: either the
// plain solid block named by BlockToPlace, or, if PlaceFluid is set,
// a resulting fluid cell.
func (t *Ticker) applyCollision(acc Accessor, waker Waker, target Coord, rule CollisionRule) {
	result := Cell{BlockID: rule.BlockToPlace}
	if rule.PlaceFluid != nil {
		result = *rule.PlaceFluid
	}
	acc.Set(target, result)
	wakeSurrounding(waker, target)
}

// soundEventFor reports rule's sound event at target, or nil if the
// rule names no sound (SoundEventIndex's zero value).
func soundEventFor(rule CollisionRule, target Coord) *SoundEventAt {
	if rule.SoundEventIndex == 0 {
		return nil
	}
	return &SoundEventAt{At: target, Index: rule.SoundEventIndex}
}

func wakeSurrounding(w Waker, c Coord) {
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				w.Wake(c.Add(dx, dy, dz))
			}
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

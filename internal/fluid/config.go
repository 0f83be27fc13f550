package fluid

// Variant selects whether a fluid's total volume is conserved
// (finite) or not (default/infinite-source).
type Variant int

const (
	// VariantDefault is the infinite-source behavior: spreading does
	// not deplete the originating cell.
	VariantDefault Variant = iota
	// VariantFinite subtracts every dispersed level from a running
	// budget (the source cell's own level), so total volume is
	// conserved except where CanDemote allows decay.
	VariantFinite
)

// CollisionRule describes what happens when this fluid flows into a
// cell already occupied by a different fluid-id (§4.9 "Collision
// rules").
type CollisionRule struct {
	// BlockToPlace is the solid block placed into the target cell; the
	// flowing cell is left unchanged.
	BlockToPlace uint16
	// PlaceFluid optionally overrides BlockToPlace with a resulting
	// fluid cell instead of a plain solid block.
	PlaceFluid *Cell
	// SoundEventIndex is the interned integer index (assigned by
	// internal/asset at load time) of the collision's sound event.
	SoundEventIndex int
}

// Config is one fluid-id's immutable, data-driven tick behavior. A
// Ticker holds only a Config; all mutable state lives in the Grid
// (§4.9 "Stateless-per-instance").
type Config struct {
	FluidID   uint8
	FlowRate  int // ticks between updates
	CanDemote bool
	Variant   Variant
	// Collisions maps another fluid-id to the rule applied when this
	// fluid flows into a cell it occupies.
	Collisions map[uint8]CollisionRule
	// SupportedBy, if nonzero, names a block-id that — if present
	// immediately below this fluid's cell — keeps the cell alive (it
	// is treated as fed) independent of the usual adjacent/above
	// source checks. Zero means unused.
	SupportedBy uint16
}

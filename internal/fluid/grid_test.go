package fluid

import "testing"

func TestChunkOfHandlesNegativeCoords(t *testing.T) {
	cases := []struct {
		c    Coord
		want ChunkCoord
	}{
		{Coord{0, 0, 0}, ChunkCoord{0, 0, 0}},
		{Coord{15, 15, 15}, ChunkCoord{0, 0, 0}},
		{Coord{16, 0, 0}, ChunkCoord{1, 0, 0}},
		{Coord{-1, 0, 0}, ChunkCoord{-1, 0, 0}},
		{Coord{-16, 0, 0}, ChunkCoord{-1, 0, 0}},
		{Coord{-17, 0, 0}, ChunkCoord{-2, 0, 0}},
	}
	for _, c := range cases {
		if got := ChunkOf(c.c); got != c.want {
			t.Errorf("ChunkOf(%+v) = %+v, want %+v", c.c, got, c.want)
		}
	}
}

func TestGridGetUnloadedReportsStatus(t *testing.T) {
	g := NewGrid()
	_, status := g.Get(Coord{0, 0, 0})
	if status != StatusUnloaded {
		t.Fatalf("expected StatusUnloaded, got %v", status)
	}
}

func TestGridSetGetRoundTrip(t *testing.T) {
	g := NewGrid()
	g.LoadSection(ChunkCoord{0, 0, 0})

	cell := Cell{BlockID: 9, FluidID: 1, Level: 5}
	if status := g.Set(Coord{1, 2, 3}, cell); status != StatusOK {
		t.Fatalf("Set: got status %v", status)
	}
	got, status := g.Get(Coord{1, 2, 3})
	if status != StatusOK {
		t.Fatalf("Get: got status %v", status)
	}
	if got != cell {
		t.Fatalf("Get = %+v, want %+v", got, cell)
	}
}

func TestGridUnloadSection(t *testing.T) {
	g := NewGrid()
	g.LoadSection(ChunkCoord{0, 0, 0})
	g.UnloadSection(ChunkCoord{0, 0, 0})
	if g.Loaded(ChunkCoord{0, 0, 0}) {
		t.Fatal("expected section to be unloaded")
	}
	_, status := g.Get(Coord{0, 0, 0})
	if status != StatusUnloaded {
		t.Fatalf("expected StatusUnloaded after unload, got %v", status)
	}
}

func TestCachedAccessorMatchesGridAcrossSections(t *testing.T) {
	g := NewGrid()
	g.LoadSection(ChunkCoord{0, 0, 0})
	g.LoadSection(ChunkCoord{1, 0, 0})

	acc := NewCachedAccessor(g)
	acc.Set(Coord{1, 1, 1}, Cell{FluidID: 1, Level: 3})
	acc.Set(Coord{17, 1, 1}, Cell{FluidID: 2, Level: 4})

	got, status := acc.Get(Coord{1, 1, 1})
	if status != StatusOK || got.FluidID != 1 || got.Level != 3 {
		t.Fatalf("unexpected cell after cache-crossing reads: %+v, %v", got, status)
	}
	got, status = acc.Get(Coord{17, 1, 1})
	if status != StatusOK || got.FluidID != 2 || got.Level != 4 {
		t.Fatalf("unexpected cell after cache-crossing reads: %+v, %v", got, status)
	}

	direct, _ := g.Get(Coord{1, 1, 1})
	if direct.FluidID != 1 || direct.Level != 3 {
		t.Fatalf("direct grid read diverged from cached accessor write: %+v", direct)
	}
}

func TestCellIsSourceAndIsEmpty(t *testing.T) {
	empty := Cell{}
	if !empty.IsEmpty() {
		t.Fatal("zero-value cell should be empty")
	}
	if empty.IsSource() {
		t.Fatal("empty cell cannot be a source")
	}
	source := Cell{FluidID: 1, Level: MaxLevel}
	if source.IsEmpty() {
		t.Fatal("source cell should not be empty")
	}
	if !source.IsSource() {
		t.Fatal("level == MaxLevel should be a source")
	}
	flowing := Cell{FluidID: 1, Level: 3}
	if flowing.IsSource() {
		t.Fatal("level below MaxLevel should not be a source")
	}
}

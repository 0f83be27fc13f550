package protocol

import (
	"fmt"
	"reflect"
	"sort"
)

// Packet is implemented by every payload type that can travel inside a
// Frame. Encode/Decode only handle the payload bytes; framing,
// compression and the packet ID are the FrameCodec's job.
type Packet interface {
	// PacketID returns the id this packet type was registered under.
	PacketID() uint32
}

// Encoder serializes a packet's payload into dst, returning the
// extended slice.
type Encoder func(p Packet, dst []byte) ([]byte, error)

// Decoder parses a payload into a fresh Packet value. FrameCodec hands
// it the whole payload and does not check whether every byte was
// consumed; leftover bytes are not reported.
type Decoder func(payload []byte) (Packet, error)

// CompressionPolicy decides, given an uncompressed payload length,
// whether FrameCodec should attempt Zstd compression at all. The
// actual "only keep it if strictly smaller" decision in §4.2 step 4
// always applies on top of this.
type CompressionPolicy func(uncompressedLen int) bool

// Never disables compression for a packet type regardless of size.
func Never(int) bool { return false }

// IfLargerThan returns a CompressionPolicy that attempts compression
// only once the uncompressed payload exceeds threshold bytes.
func IfLargerThan(threshold int) CompressionPolicy {
	return func(n int) bool { return n > threshold }
}

// Descriptor is everything the registry knows about one packet ID.
type Descriptor struct {
	ID          uint32
	MaxSize     int
	Compression CompressionPolicy
	Encode      Encoder
	Decode      Decoder
	goType      reflect.Type
}

// Registry maps packet IDs to Descriptors. Registration is bulk and
// single-threaded at startup (§4.3); after Seal() it is immutable and
// safe for concurrent lock-free reads from I/O worker goroutines.
type Registry struct {
	byID   map[uint32]*Descriptor
	byType map[reflect.Type]*Descriptor
	sealed bool
	maxID  uint32
}

// NewRegistry creates an empty, unsealed Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uint32]*Descriptor),
		byType: make(map[reflect.Type]*Descriptor),
	}
}

// Register adds a packet descriptor. It is a startup error (not a
// runtime one) to register the same ID twice, or to register after
// Seal.
func (r *Registry) Register(id uint32, sample Packet, maxSize int, policy CompressionPolicy, enc Encoder, dec Decoder) error {
	if r.sealed {
		return fmt.Errorf("protocol: registry sealed, cannot register id %d", id)
	}
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("protocol: id %d: %w", id, ErrDuplicatePacketID)
	}
	if policy == nil {
		policy = Never
	}
	t := reflect.TypeOf(sample)
	desc := &Descriptor{
		ID:          id,
		MaxSize:     maxSize,
		Compression: policy,
		Encode:      enc,
		Decode:      dec,
		goType:      t,
	}
	r.byID[id] = desc
	r.byType[t] = desc
	if id > r.maxID {
		r.maxID = id
	}
	return nil
}

// Seal freezes the registry against further registration.
func (r *Registry) Seal() { r.sealed = true }

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool { return r.sealed }

// Lookup returns the descriptor for id, if registered.
func (r *Registry) Lookup(id uint32) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// DescriptorFor returns the descriptor registered for p's concrete Go
// type (the "descriptor_for<P>() -> Descriptor" static-type lookup of
// §4.3).
func (r *Registry) DescriptorFor(p Packet) (*Descriptor, bool) {
	d, ok := r.byType[reflect.TypeOf(p)]
	return d, ok
}

// MaxID returns the largest registered packet ID. StatsRecorder uses
// this to size a bounded, indexable counter array instead of a map.
func (r *Registry) MaxID() uint32 { return r.maxID }

// IDs returns every registered packet ID, ascending.
func (r *Registry) IDs() []uint32 {
	ids := make([]uint32, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

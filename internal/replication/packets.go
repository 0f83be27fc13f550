package replication

import (
	"fmt"
	"sort"

	"github.com/nictuku/voxelserver/internal/entity"
	"github.com/nictuku/voxelserver/internal/protocol"
	"github.com/nictuku/voxelserver/internal/varint"
)

// Packet IDs for the four shapes §4.6 synthesizes. Chosen from a
// block reserved for entity replication; cmd/voxelserver registers
// them alongside every other packet type at startup.
const (
	PacketEntityInit          uint32 = 0x20
	PacketEntityUpdate        uint32 = 0x21
	PacketEntityRemove        uint32 = 0x22
	PacketDynamicLightCleanup uint32 = 0x23
)

// componentSet is the (type-id -> encoded payload) map carried by
// Init and ComponentUpdate. Both packets share this wire shape.
type componentSet map[entity.ComponentType][]byte

// InitPacket is sent when an entity first becomes observable to a
// viewer: the full set of its replicatable components.
type InitPacket struct {
	Entity     entity.ID
	Components componentSet
}

// PacketID implements protocol.Packet.
func (p *InitPacket) PacketID() uint32 { return PacketEntityInit }

// ComponentUpdatePacket carries only the components that were dirty
// this tick for an already-observable entity.
type ComponentUpdatePacket struct {
	Entity     entity.ID
	Components componentSet
}

// PacketID implements protocol.Packet.
func (p *ComponentUpdatePacket) PacketID() uint32 { return PacketEntityUpdate }

// RemovePacket tells a viewer an entity has left its view or the
// world entirely.
type RemovePacket struct {
	Entity entity.ID
}

// PacketID implements protocol.Packet.
func (p *RemovePacket) PacketID() uint32 { return PacketEntityRemove }

// DynamicLightCleanupPacket is a secondary packet following a Remove
// when the removed entity carried a DynamicLight-class component, so
// client-side light state is torn down explicitly (§4.6 step 3).
type DynamicLightCleanupPacket struct {
	Entity entity.ID
}

// PacketID implements protocol.Packet.
func (p *DynamicLightCleanupPacket) PacketID() uint32 { return PacketDynamicLightCleanup }

func encodeEntityID(dst []byte, id entity.ID) []byte {
	dst = varint.Write(dst, id.Index())
	return dst
}

func decodeEntityID(payload []byte) (entity.ID, int, error) {
	index, n, err := varint.Read(payload)
	if err != nil {
		return entity.ID{}, 0, err
	}
	return entity.IndexOnlyID(index), n, nil
}

func encodeComponentSet(dst []byte, set componentSet) []byte {
	ids := make([]entity.ComponentType, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dst = varint.Write(dst, uint32(len(ids)))
	for _, id := range ids {
		payload := set[id]
		dst = varint.Write(dst, uint32(id))
		dst = varint.Write(dst, uint32(len(payload)))
		dst = append(dst, payload...)
	}
	return dst
}

func decodeComponentSet(payload []byte) (componentSet, int, error) {
	count, n, err := varint.Read(payload)
	if err != nil {
		return nil, 0, err
	}
	offset := n

	set := make(componentSet, count)
	for i := uint32(0); i < count; i++ {
		typeID, n, err := varint.Read(payload[offset:])
		if err != nil {
			return nil, 0, err
		}
		offset += n

		length, n, err := varint.Read(payload[offset:])
		if err != nil {
			return nil, 0, err
		}
		offset += n

		if offset+int(length) > len(payload) {
			return nil, 0, fmt.Errorf("replication: component set payload truncated")
		}
		raw := append([]byte(nil), payload[offset:offset+int(length)]...)
		offset += int(length)
		set[entity.ComponentType(typeID)] = raw
	}
	return set, offset, nil
}

// EncodeInit is the protocol.Encoder for InitPacket.
func EncodeInit(p protocol.Packet, dst []byte) ([]byte, error) {
	pkt := p.(*InitPacket)
	dst = encodeEntityID(dst, pkt.Entity)
	dst = encodeComponentSet(dst, pkt.Components)
	return dst, nil
}

// DecodeInit is the protocol.Decoder for InitPacket.
func DecodeInit(payload []byte) (protocol.Packet, error) {
	id, n, err := decodeEntityID(payload)
	if err != nil {
		return nil, err
	}
	set, _, err := decodeComponentSet(payload[n:])
	if err != nil {
		return nil, err
	}
	return &InitPacket{Entity: id, Components: set}, nil
}

// EncodeComponentUpdate is the protocol.Encoder for ComponentUpdatePacket.
func EncodeComponentUpdate(p protocol.Packet, dst []byte) ([]byte, error) {
	pkt := p.(*ComponentUpdatePacket)
	dst = encodeEntityID(dst, pkt.Entity)
	dst = encodeComponentSet(dst, pkt.Components)
	return dst, nil
}

// DecodeComponentUpdate is the protocol.Decoder for ComponentUpdatePacket.
func DecodeComponentUpdate(payload []byte) (protocol.Packet, error) {
	id, n, err := decodeEntityID(payload)
	if err != nil {
		return nil, err
	}
	set, _, err := decodeComponentSet(payload[n:])
	if err != nil {
		return nil, err
	}
	return &ComponentUpdatePacket{Entity: id, Components: set}, nil
}

// EncodeRemove is the protocol.Encoder for RemovePacket.
func EncodeRemove(p protocol.Packet, dst []byte) ([]byte, error) {
	return encodeEntityID(dst, p.(*RemovePacket).Entity), nil
}

// DecodeRemove is the protocol.Decoder for RemovePacket.
func DecodeRemove(payload []byte) (protocol.Packet, error) {
	id, _, err := decodeEntityID(payload)
	if err != nil {
		return nil, err
	}
	return &RemovePacket{Entity: id}, nil
}

// EncodeDynamicLightCleanup is the protocol.Encoder for DynamicLightCleanupPacket.
func EncodeDynamicLightCleanup(p protocol.Packet, dst []byte) ([]byte, error) {
	return encodeEntityID(dst, p.(*DynamicLightCleanupPacket).Entity), nil
}

// DecodeDynamicLightCleanup is the protocol.Decoder for DynamicLightCleanupPacket.
func DecodeDynamicLightCleanup(payload []byte) (protocol.Packet, error) {
	id, _, err := decodeEntityID(payload)
	if err != nil {
		return nil, err
	}
	return &DynamicLightCleanupPacket{Entity: id}, nil
}

// Register installs all four packet descriptors into reg. maxSize
// bounds each payload; compress applies to Init (the largest,
// full-state case) and ComponentUpdate, while Remove and
// DynamicLightCleanup, which carry only an entity index, are never
// compressed.
func Register(reg *protocol.Registry, maxSize int, compress protocol.CompressionPolicy) error {
	if err := reg.Register(PacketEntityInit, &InitPacket{}, maxSize, compress, EncodeInit, DecodeInit); err != nil {
		return err
	}
	if err := reg.Register(PacketEntityUpdate, &ComponentUpdatePacket{}, maxSize, compress, EncodeComponentUpdate, DecodeComponentUpdate); err != nil {
		return err
	}
	if err := reg.Register(PacketEntityRemove, &RemovePacket{}, maxSize, protocol.Never, EncodeRemove, DecodeRemove); err != nil {
		return err
	}
	if err := reg.Register(PacketDynamicLightCleanup, &DynamicLightCleanupPacket{}, maxSize, protocol.Never, EncodeDynamicLightCleanup, DecodeDynamicLightCleanup); err != nil {
		return err
	}
	return nil
}

package asset

import (
	"fmt"

	"github.com/nictuku/voxelserver/internal/protocol"
	"github.com/nictuku/voxelserver/internal/varint"
)

// Packet IDs for the three asset sync shapes of §4.8.
const (
	PacketAssetInit       uint32 = 0x30
	PacketAssetAddOrUpdate uint32 = 0x31
	PacketAssetRemove     uint32 = 0x32
)

// Entry is one asset's wire representation: its string key, the
// stable integer index a client must remember it by, and its encoded
// payload.
type Entry struct {
	Key     string
	Index   int
	Payload []byte
}

// InitPacket carries the full contents of one indexed asset type,
// sent when a client first connects or when it requests a resync.
type InitPacket struct {
	TypeName string
	Entries  []Entry
}

// PacketID implements protocol.Packet.
func (p *InitPacket) PacketID() uint32 { return PacketAssetInit }

// AddOrUpdatePacket carries a subset of one asset type's entries,
// sent after a hot-reload.
type AddOrUpdatePacket struct {
	TypeName string
	Entries  []Entry
}

// PacketID implements protocol.Packet.
func (p *AddOrUpdatePacket) PacketID() uint32 { return PacketAssetAddOrUpdate }

// RemovePacket tells clients to forget the given keys of one type.
// The indices those keys held are never reused.
type RemovePacket struct {
	TypeName string
	Keys     []string
}

// PacketID implements protocol.Packet.
func (p *RemovePacket) PacketID() uint32 { return PacketAssetRemove }

func writeString(dst []byte, s string) []byte {
	dst = varint.Write(dst, uint32(len(s)))
	return append(dst, s...)
}

func readString(payload []byte) (string, int, error) {
	length, n, err := varint.Read(payload)
	if err != nil {
		return "", 0, err
	}
	if n+int(length) > len(payload) {
		return "", 0, fmt.Errorf("asset: truncated string")
	}
	return string(payload[n : n+int(length)]), n + int(length), nil
}

func writeEntries(dst []byte, entries []Entry) []byte {
	dst = varint.Write(dst, uint32(len(entries)))
	for _, e := range entries {
		dst = writeString(dst, e.Key)
		dst = varint.Write(dst, uint32(e.Index))
		dst = varint.Write(dst, uint32(len(e.Payload)))
		dst = append(dst, e.Payload...)
	}
	return dst
}

func readEntries(payload []byte) ([]Entry, int, error) {
	count, n, err := varint.Read(payload)
	if err != nil {
		return nil, 0, err
	}
	offset := n

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, n, err := readString(payload[offset:])
		if err != nil {
			return nil, 0, err
		}
		offset += n

		index, n, err := varint.Read(payload[offset:])
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
			return nil, 0, fmt.Errorf("asset: truncated entry payload")
		}
		raw := append([]byte(nil), payload[offset:offset+int(length)]...)
		offset += int(length)

		entries = append(entries, Entry{Key: key, Index: int(index), Payload: raw})
	}
	return entries, offset, nil
}

// EncodeInit is the protocol.Encoder for InitPacket.
func EncodeInit(p protocol.Packet, dst []byte) ([]byte, error) {
	pkt := p.(*InitPacket)
	dst = writeString(dst, pkt.TypeName)
	dst = writeEntries(dst, pkt.Entries)
	return dst, nil
}

// DecodeInit is the protocol.Decoder for InitPacket.
func DecodeInit(payload []byte) (protocol.Packet, error) {
	typeName, n, err := readString(payload)
	if err != nil {
		return nil, err
	}
	entries, _, err := readEntries(payload[n:])
	if err != nil {
		return nil, err
	}
	return &InitPacket{TypeName: typeName, Entries: entries}, nil
}

// EncodeAddOrUpdate is the protocol.Encoder for AddOrUpdatePacket.
func EncodeAddOrUpdate(p protocol.Packet, dst []byte) ([]byte, error) {
	pkt := p.(*AddOrUpdatePacket)
	dst = writeString(dst, pkt.TypeName)
	dst = writeEntries(dst, pkt.Entries)
	return dst, nil
}

// DecodeAddOrUpdate is the protocol.Decoder for AddOrUpdatePacket.
func DecodeAddOrUpdate(payload []byte) (protocol.Packet, error) {
	typeName, n, err := readString(payload)
	if err != nil {
		return nil, err
	}
	entries, _, err := readEntries(payload[n:])
	if err != nil {
		return nil, err
	}
	return &AddOrUpdatePacket{TypeName: typeName, Entries: entries}, nil
}

// EncodeRemove is the protocol.Encoder for RemovePacket.
func EncodeRemove(p protocol.Packet, dst []byte) ([]byte, error) {
	pkt := p.(*RemovePacket)
	dst = writeString(dst, pkt.TypeName)
	dst = varint.Write(dst, uint32(len(pkt.Keys)))
	for _, k := range pkt.Keys {
		dst = writeString(dst, k)
	}
	return dst, nil
}

// DecodeRemove is the protocol.Decoder for RemovePacket.
func DecodeRemove(payload []byte) (protocol.Packet, error) {
	typeName, n, err := readString(payload)
	if err != nil {
		return nil, err
	}
	offset := n
	count, n, err := varint.Read(payload[offset:])
	if err != nil {
		return nil, err
	}
	offset += n

	keys := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		key, n, err := readString(payload[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		keys = append(keys, key)
	}
	return &RemovePacket{TypeName: typeName, Keys: keys}, nil
}

// Register installs the three asset sync packet descriptors into reg.
func Register(reg *protocol.Registry, maxSize int, compress protocol.CompressionPolicy) error {
	if err := reg.Register(PacketAssetInit, &InitPacket{}, maxSize, compress, EncodeInit, DecodeInit); err != nil {
		return err
	}
	if err := reg.Register(PacketAssetAddOrUpdate, &AddOrUpdatePacket{}, maxSize, compress, EncodeAddOrUpdate, DecodeAddOrUpdate); err != nil {
		return err
	}
	if err := reg.Register(PacketAssetRemove, &RemovePacket{}, maxSize, protocol.Never, EncodeRemove, DecodeRemove); err != nil {
		return err
	}
	return nil
}

// BuildInit assembles an InitPacket with b's full, indexed contents,
// using encode to turn each decoded value into wire bytes.
func BuildInit[T any](b *Bucket[T], typeName string, encode func(T) ([]byte, error)) (*InitPacket, error) {
	entries, err := snapshotEntries(b, encode)
	if err != nil {
		return nil, err
	}
	return &InitPacket{TypeName: typeName, Entries: entries}, nil
}

// BuildAddOrUpdate assembles an AddOrUpdatePacket for exactly the
// given keys of b.
func BuildAddOrUpdate[T any](b *Bucket[T], typeName string, keys []string, encode func(T) ([]byte, error)) (*AddOrUpdatePacket, error) {
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value, ok := b.values.Get(key)
		if !ok {
			continue
		}
		payload, err := encode(value)
		if err != nil {
			return nil, fmt.Errorf("asset: encode %s/%s: %w", typeName, key, err)
		}
		idx, _ := b.indexOf(key)
		entries = append(entries, Entry{Key: key, Index: idx, Payload: payload})
	}
	return &AddOrUpdatePacket{TypeName: typeName, Entries: entries}, nil
}

func snapshotEntries[T any](b *Bucket[T], encode func(T) ([]byte, error)) ([]Entry, error) {
	entries := make([]Entry, 0, len(b.keyOfIndex))
	for idx, key := range b.keyOfIndex {
		if key == "" {
			continue // tombstoned
		}
		value, ok := b.values.Get(key)
		if !ok {
			continue
		}
		payload, err := encode(value)
		if err != nil {
			return nil, fmt.Errorf("asset: encode %s#%d: %w", b.name, idx, err)
		}
		entries = append(entries, Entry{Key: key, Index: idx, Payload: payload})
	}
	return entries, nil
}

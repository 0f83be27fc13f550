// Package protocol implements the wire framing, packet registry and
// per-connection statistics described in §3 and §4.1-§4.4 of the
// protocol spec: VarUInt-prefixed, optionally Zstd-compressed,
// registry-dispatched packet frames.
package protocol

import (
	"github.com/nictuku/voxelserver/internal/varint"
)

// FrameCodec reads and writes framed packets against a sealed
// Registry. It holds no per-connection state of its own — scratch
// buffers come from the package-level pool (§5) — so one FrameCodec
// can be shared, or a fresh zero-value one constructed per connection
// at negligible cost.
type FrameCodec struct {
	Registry *Registry
}

// NewFrameCodec builds a FrameCodec bound to a sealed registry.
func NewFrameCodec(reg *Registry) *FrameCodec {
	return &FrameCodec{Registry: reg}
}

// WriteFramedPacket serializes p, optionally compresses it, and
// appends the framed bytes to out, per §4.2's write_framed_packet.
func (fc *FrameCodec) WriteFramedPacket(p Packet, out []byte, stats StatsRecorder) ([]byte, error) {
	desc, ok := fc.Registry.DescriptorFor(p)
	if !ok {
		return out, ErrUnknownPacketID(p.PacketID())
	}

	payloadBuf := getScratch()
	defer putScratch(payloadBuf)

	encoded, err := desc.Encode(p, payloadBuf.b)
	if err != nil {
		return out, fatal("encode payload", err)
	}
	payloadBuf.b = encoded
	uncompressedLen := len(encoded)

	if uncompressedLen > desc.MaxSize {
		return out, ErrPayloadTooLarge{Size: uncompressedLen, Max: desc.MaxSize}
	}

	compressed := false
	payload := encoded
	var compBuf *scratchBuffer
	if desc.Compression(uncompressedLen) {
		compBuf = getScratch()
		defer putScratch(compBuf)
		candidate := zstdCompress(compBuf.b, encoded)
		compBuf.b = candidate
		if len(candidate) < uncompressedLen {
			compressed = true
			payload = candidate
		}
	}

	// packet_id_with_compression_bit: the compression flag occupies the
	// top bit of the 32-bit id value (id | 1<<31), not the low bit, so
	// an uncompressed id below 2^31 serializes identically to the bare
	// id (§4.2 open question resolution, documented in SPEC_FULL.md
	// §4.2; required by §8 scenario 1's bit-exact framing).
	idWithBit := desc.ID
	if compressed {
		idWithBit |= compressionBit
	}

	var header []byte
	header = varint.Write(header, idWithBit)
	if compressed {
		header = varint.Write(header, uint32(uncompressedLen))
	}
	frameLen := len(header) + len(payload)

	out = varint.Write(out, uint32(frameLen))
	out = append(out, header...)
	out = append(out, payload...)

	if stats != nil {
		stats.RecordSend(desc.ID, uncompressedLen, len(header)+len(payload))
	}
	return out, nil
}

// compressionBit is the top bit of the packet-id-with-compression-bit
// VarUInt. Packet IDs are expected to stay well below this value, so
// an uncompressed frame's id varint is byte-identical to the bare id.
const compressionBit = uint32(1) << 31

// ReadFramedPacket attempts to decode one frame from the front of buf.
//
// Returns (packet, consumed, true, nil) on success; (nil, 0, false,
// nil) when buf holds an incomplete frame and the caller should
// suspend without consuming anything; or a non-nil protocol-fatal
// error, again without having consumed any bytes, per §4.2 step 1/2's
// "must suspend without consuming anything" and §7's "partial reads
// must never mutate the reader cursor".
func (fc *FrameCodec) ReadFramedPacket(buf []byte, stats StatsRecorder) (pkt Packet, consumed int, ok bool, err error) {
	frameLen, lenSize, have, err := varint.Peek(buf, 0)
	if err != nil {
		return nil, 0, false, fatal("frame length varint", err)
	}
	if !have {
		return nil, 0, false, nil // suspend: need more bytes for the length prefix itself
	}

	frameStart := int(lenSize)
	frameEnd := frameStart + int(frameLen)
	if len(buf) < frameEnd {
		return nil, 0, false, nil // suspend: frame body hasn't fully arrived
	}
	body := buf[frameStart:frameEnd]

	idWithBit, idSize, err := varint.Read(body)
	if err != nil {
		return nil, 0, false, fatal("packet id varint", err)
	}
	packetID := idWithBit &^ compressionBit
	compressed := idWithBit&compressionBit != 0
	rest := body[idSize:]

	desc, ok := fc.Registry.Lookup(packetID)
	if !ok {
		return nil, 0, false, ErrUnknownPacketID(packetID)
	}

	var payload []byte
	var uncompressedLen int
	if compressed {
		declaredLen, n, rerr := varint.Read(rest)
		if rerr != nil {
			return nil, 0, false, fatal("uncompressed length varint", rerr)
		}
		compressedPayload := rest[n:]
		payload, err = zstdDecompress(compressedPayload, int(declaredLen), desc.MaxSize)
		if err != nil {
			return nil, 0, false, err
		}
		uncompressedLen = int(declaredLen)
	} else {
		payload = rest
		uncompressedLen = len(rest)
	}

	decoded, err := desc.Decode(payload)
	if err != nil {
		return nil, 0, false, fatal("decode payload", err)
	}

	if stats != nil {
		stats.RecordRecv(packetID, uncompressedLen, frameEnd)
	}

	return decoded, frameEnd, true, nil
}

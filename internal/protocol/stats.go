package protocol

import "sync/atomic"

// StatsEntry is a value-copy snapshot of one packet ID's counters (§3).
type StatsEntry struct {
	SentCount            uint64
	ReceivedCount        uint64
	SentUncompressedBytes uint64
	SentCompressedBytes   uint64
	RecvUncompressedBytes uint64
	RecvCompressedBytes   uint64
}

// StatsRecorder is attached to a connection to count packets and
// bytes without ever blocking, allocating, or logging (§4.4).
type StatsRecorder interface {
	RecordSend(packetID uint32, uncompressedLen, wireLen int)
	RecordRecv(packetID uint32, uncompressedLen, wireLen int)
	Snapshot(packetID uint32) StatsEntry
}

// NoOpStats implements StatsRecorder with empty methods, for
// deployments that don't want even the atomic-counter overhead.
type NoOpStats struct{}

func (NoOpStats) RecordSend(uint32, int, int)          {}
func (NoOpStats) RecordRecv(uint32, int, int)          {}
func (NoOpStats) Snapshot(uint32) StatsEntry           { return StatsEntry{} }

type atomicEntry struct {
	sentCount            uint64
	receivedCount         uint64
	sentUncompressedBytes uint64
	sentCompressedBytes   uint64
	recvUncompressedBytes uint64
	recvCompressedBytes   uint64
}

// AtomicStats is a lock-free StatsRecorder backed by one atomicEntry
// per registered packet ID, indexed by the registry's bounded ID
// space (§4.4).
type AtomicStats struct {
	entries []atomicEntry
}

// NewAtomicStats allocates counters for every ID in [0, reg.MaxID()].
func NewAtomicStats(reg *Registry) *AtomicStats {
	return &AtomicStats{entries: make([]atomicEntry, reg.MaxID()+1)}
}

func (s *AtomicStats) slot(packetID uint32) *atomicEntry {
	if int(packetID) >= len(s.entries) {
		return nil
	}
	return &s.entries[packetID]
}

// RecordSend is O(1), never blocks, never allocates.
func (s *AtomicStats) RecordSend(packetID uint32, uncompressedLen, wireLen int) {
	e := s.slot(packetID)
	if e == nil {
		return
	}
	atomic.AddUint64(&e.sentCount, 1)
	atomic.AddUint64(&e.sentUncompressedBytes, uint64(uncompressedLen))
	atomic.AddUint64(&e.sentCompressedBytes, uint64(wireLen))
}

// RecordRecv is O(1), never blocks, never allocates.
func (s *AtomicStats) RecordRecv(packetID uint32, uncompressedLen, wireLen int) {
	e := s.slot(packetID)
	if e == nil {
		return
	}
	atomic.AddUint64(&e.receivedCount, 1)
	atomic.AddUint64(&e.recvUncompressedBytes, uint64(uncompressedLen))
	atomic.AddUint64(&e.recvCompressedBytes, uint64(wireLen))
}

// Snapshot is the only read path, and it's lock-free: each field is
// loaded independently so a concurrent writer can never corrupt a
// single field, though the six fields of one snapshot may not be
// perfectly mutually consistent under concurrent writes.
func (s *AtomicStats) Snapshot(packetID uint32) StatsEntry {
	e := s.slot(packetID)
	if e == nil {
		return StatsEntry{}
	}
	return StatsEntry{
		SentCount:             atomic.LoadUint64(&e.sentCount),
		ReceivedCount:          atomic.LoadUint64(&e.receivedCount),
		SentUncompressedBytes:  atomic.LoadUint64(&e.sentUncompressedBytes),
		SentCompressedBytes:    atomic.LoadUint64(&e.sentCompressedBytes),
		RecvUncompressedBytes:  atomic.LoadUint64(&e.recvUncompressedBytes),
		RecvCompressedBytes:    atomic.LoadUint64(&e.recvCompressedBytes),
	}
}

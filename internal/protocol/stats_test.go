package protocol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpStatsIsInert(t *testing.T) {
	var s NoOpStats
	s.RecordSend(1, 10, 10)
	s.RecordRecv(1, 10, 10)
	assert.Equal(t, StatsEntry{}, s.Snapshot(1))
}

func TestAtomicStatsConcurrentRecordSend(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(9, &echoPacket{id: 9}, 100, Never, echoEncoder, echoDecoderFor(9))
	reg.Seal()

	stats := NewAtomicStats(reg)

	var wg sync.WaitGroup
	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.RecordSend(9, 10, 12)
		}()
	}
	wg.Wait()

	snap := stats.Snapshot(9)
	assert.Equal(t, uint64(n), snap.SentCount)
	assert.Equal(t, uint64(n*10), snap.SentUncompressedBytes)
	assert.Equal(t, uint64(n*12), snap.SentCompressedBytes)
}

func TestAtomicStatsOutOfRangeIDIsIgnored(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(2, &echoPacket{id: 2}, 100, Never, echoEncoder, echoDecoderFor(2))
	reg.Seal()
	stats := NewAtomicStats(reg)

	assert.NotPanics(t, func() {
		stats.RecordSend(999, 1, 1)
		stats.RecordRecv(999, 1, 1)
	})
	assert.Equal(t, StatsEntry{}, stats.Snapshot(999))
}

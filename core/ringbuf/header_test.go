package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeader(t *testing.T, ecc bool) *header {
	t.Helper()
	lay := newLayout(ecc)
	return &header{buf: make([]byte, lay.headerSize+64), lay: lay}
}

func TestHeader_ReinitializeProducesValidBlock(t *testing.T) {
	h := newTestHeader(t, false)
	h.reinitialize(64)

	assert.Equal(t, uint32(HEADER_MAGIC), h.magic())
	assert.Equal(t, uint16(HEADER_VERSION), h.version())
	assert.Equal(t, uint32(64), h.capacity())
	assert.Zero(t, h.head())
	assert.Zero(t, h.tail())
	assert.Equal(t, h.checksum(), h.computeChecksum())
	assert.True(t, h.recover(64))
}

func TestHeader_RecoverRejectsWrongCapacity(t *testing.T) {
	h := newTestHeader(t, false)
	h.reinitialize(64)
	assert.False(t, h.recover(32))
}

func TestHeader_RecoverRejectsOveruse(t *testing.T) {
	h := newTestHeader(t, false)
	h.reinitialize(64)
	h.setHead(100)
	h.setHeadMirror(100)
	h.seal()
	assert.False(t, h.recover(64), "head-tail beyond capacity must not validate")
}

func TestHeader_SealOrderMatters(t *testing.T) {
	h := newTestHeader(t, false)
	h.reinitialize(64)

	// An index store without the matching seal leaves the block invalid,
	// which is exactly what a reset inside an update should look like.
	h.setHead(8)
	h.setHeadMirror(8)
	assert.NotEqual(t, h.checksum(), h.computeChecksum())

	h.seal()
	assert.True(t, h.recover(64))
}

func TestHeader_TornHeadRollsBackToMirror(t *testing.T) {
	h := newTestHeader(t, false)
	h.reinitialize(64)
	h.setHead(20)
	h.setHeadMirror(20)
	h.seal()

	h.setHead(32) // mirror store never happened

	require.True(t, h.recover(64))
	assert.Equal(t, uint32(20), h.head())
	assert.Equal(t, uint32(20), h.headMirror())
	assert.Equal(t, h.checksum(), h.computeChecksum(), "repair reseals")
}

func TestHeader_TornMirrorAheadOfIndexRollsForwardNothing(t *testing.T) {
	h := newTestHeader(t, false)
	h.reinitialize(64)
	h.setHead(20)
	h.setHeadMirror(20)
	h.seal()

	// The index can also lag its mirror (a rolled-back index image); the
	// smaller value always wins, so the index is never rolled forward.
	h.setHead(12)

	require.True(t, h.recover(64))
	assert.Equal(t, uint32(12), h.head())
}

func TestHeader_SerialBefore(t *testing.T) {
	assert.True(t, serialBefore(1, 2))
	assert.False(t, serialBefore(2, 1))
	assert.False(t, serialBefore(5, 5))
	// Across the 32-bit wrap.
	assert.True(t, serialBefore(0xFFFFFFF0, 0x10))
	assert.False(t, serialBefore(0x10, 0xFFFFFFF0))
}

func TestHeader_NormalizePreservesUsedSpanAndPositions(t *testing.T) {
	h := newTestHeader(t, false)
	h.reinitialize(64)
	h.setTail(1000)
	h.setTailMirror(1000)
	h.setHead(1040)
	h.setHeadMirror(1040)
	h.seal()

	h.normalize(64)

	assert.Equal(t, uint32(1000%64), h.tail())
	assert.Equal(t, uint32(40), h.head()-h.tail())
	assert.Equal(t, h.head()%64, uint32(1040%64), "physical positions unchanged")
	assert.True(t, h.recover(64))
}

func TestHeader_EccLayoutFieldsDoNotShareGranules(t *testing.T) {
	lay := newLayout(true)
	offsets := []int{
		lay.flags, lay.capacity, lay.head, lay.tail,
		lay.headMirror, lay.tailMirror, lay.checksum, lay.identifier,
	}
	seen := map[int]bool{lay.magic / ECC_GRANULE: true}
	for _, off := range offsets {
		granule := off / ECC_GRANULE
		assert.False(t, seen[granule], "offset %d shares a granule", off)
		seen[granule] = true
	}
	assert.Equal(t, 0, lay.headerSize%ECC_GRANULE)
}

// Package testutil fabricates regions in arbitrary pre-boot states:
// valid with carried-over data, torn mid-update, corrupt, or cold-boot
// garbage. Tests use it to exercise the attach paths without replaying
// the writes that would produce each state.
package testutil

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/korken89/persistlog/core/region"
	"github.com/korken89/persistlog/core/ringbuf"
)

// RegionBuilder assembles a region image field by field.
type RegionBuilder struct {
	buf []byte
	ecc bool
}

// NewRegionBuilder starts from a zeroed region of the given total size.
func NewRegionBuilder(size int) *RegionBuilder {
	return &RegionBuilder{buf: make([]byte, size)}
}

// WithECC switches the builder to the ECC-granule header layout.
func (b *RegionBuilder) WithECC() *RegionBuilder {
	b.ecc = true
	return b
}

func (b *RegionBuilder) headerSize() int {
	if b.ecc {
		return ringbuf.ECC_HEADER_SIZE
	}
	return ringbuf.HEADER_SIZE
}

func (b *RegionBuilder) offsets() (magic, version, flags, capacity, head, tail, headMirror, tailMirror, checksum, identifier int) {
	if b.ecc {
		return ringbuf.ECC_OFFSET_MAGIC, ringbuf.ECC_OFFSET_VERSION, ringbuf.ECC_OFFSET_FLAGS,
			ringbuf.ECC_OFFSET_CAPACITY, ringbuf.ECC_OFFSET_HEAD, ringbuf.ECC_OFFSET_TAIL,
			ringbuf.ECC_OFFSET_HEAD_MIRROR, ringbuf.ECC_OFFSET_TAIL_MIRROR,
			ringbuf.ECC_OFFSET_CHECKSUM, ringbuf.ECC_OFFSET_IDENTIFIER
	}
	return ringbuf.OFFSET_MAGIC, ringbuf.OFFSET_VERSION, ringbuf.OFFSET_FLAGS,
		ringbuf.OFFSET_CAPACITY, ringbuf.OFFSET_HEAD, ringbuf.OFFSET_TAIL,
		ringbuf.OFFSET_HEAD_MIRROR, ringbuf.OFFSET_TAIL_MIRROR,
		ringbuf.OFFSET_CHECKSUM, ringbuf.OFFSET_IDENTIFIER
}

// Capacity returns the payload size the built region will carry.
func (b *RegionBuilder) Capacity() int {
	return len(b.buf) - b.headerSize()
}

// Fill sets every region byte, header included. Use before WithHeader to
// model cold-boot garbage.
func (b *RegionBuilder) Fill(v byte) *RegionBuilder {
	for i := range b.buf {
		b.buf[i] = v
	}
	return b
}

// WithHeader writes a coherent control block with the given indices:
// magic, version, capacity, mirrors matching, checksum sealed.
func (b *RegionBuilder) WithHeader(head, tail uint32) *RegionBuilder {
	magic, version, _, capacity, headOff, tailOff, headMirror, tailMirror, _, _ := b.offsets()
	binary.LittleEndian.PutUint32(b.buf[magic:], ringbuf.HEADER_MAGIC)
	binary.LittleEndian.PutUint16(b.buf[version:], ringbuf.HEADER_VERSION)
	binary.LittleEndian.PutUint32(b.buf[capacity:], uint32(b.Capacity()))
	binary.LittleEndian.PutUint32(b.buf[headOff:], head)
	binary.LittleEndian.PutUint32(b.buf[tailOff:], tail)
	binary.LittleEndian.PutUint32(b.buf[headMirror:], head)
	binary.LittleEndian.PutUint32(b.buf[tailMirror:], tail)
	return b.Seal()
}

// WithData writes a coherent header holding data as the committed
// stream, starting at tail 0.
func (b *RegionBuilder) WithData(data []byte) *RegionBuilder {
	copy(b.buf[b.headerSize():], data)
	return b.WithHeader(uint32(len(data)), 0)
}

// WithIdentifier stores the firmware identifier slot.
func (b *RegionBuilder) WithIdentifier(id [ringbuf.IDENTIFIER_SIZE]byte) *RegionBuilder {
	_, _, _, _, _, _, _, _, _, identifier := b.offsets()
	copy(b.buf[identifier:identifier+ringbuf.IDENTIFIER_SIZE], id[:])
	return b
}

// WithPanicFlag sets the panic-frame flag and reseals.
func (b *RegionBuilder) WithPanicFlag() *RegionBuilder {
	_, _, flags, _, _, _, _, _, _, _ := b.offsets()
	v := binary.LittleEndian.Uint16(b.buf[flags:])
	binary.LittleEndian.PutUint16(b.buf[flags:], v|ringbuf.FLAG_PANIC_FRAME)
	return b.Seal()
}

// Seal recomputes the header checksum over the current field bytes.
func (b *RegionBuilder) Seal() *RegionBuilder {
	_, _, _, _, _, _, _, _, checksum, _ := b.offsets()
	binary.LittleEndian.PutUint32(b.buf[checksum:], crc32.ChecksumIEEE(b.buf[:checksum]))
	return b
}

// CorruptMagic flips the magic word.
func (b *RegionBuilder) CorruptMagic() *RegionBuilder {
	magic, _, _, _, _, _, _, _, _, _ := b.offsets()
	binary.LittleEndian.PutUint32(b.buf[magic:], 0xDEADBEEF)
	return b
}

// CorruptChecksum invalidates the stored checksum without touching the
// fields it covers.
func (b *RegionBuilder) CorruptChecksum() *RegionBuilder {
	_, _, _, _, _, _, _, _, checksum, _ := b.offsets()
	v := binary.LittleEndian.Uint32(b.buf[checksum:])
	binary.LittleEndian.PutUint32(b.buf[checksum:], v^0xFFFFFFFF)
	return b
}

// TearHeadMirror rewinds the head mirror to an older value, as a reset
// between the head store and the mirror store would leave it.
func (b *RegionBuilder) TearHeadMirror(older uint32) *RegionBuilder {
	_, _, _, _, _, _, headMirror, _, _, _ := b.offsets()
	binary.LittleEndian.PutUint32(b.buf[headMirror:], older)
	return b
}

// TearTailMirror rewinds the tail mirror to an older value.
func (b *RegionBuilder) TearTailMirror(older uint32) *RegionBuilder {
	_, _, _, _, _, _, _, tailMirror, _, _ := b.offsets()
	binary.LittleEndian.PutUint32(b.buf[tailMirror:], older)
	return b
}

// Bytes returns the raw image for direct inspection or mutation.
func (b *RegionBuilder) Bytes() []byte {
	return b.buf
}

// Build binds the image as a region.
func (b *RegionBuilder) Build() (*region.Region, error) {
	return region.NewSlice(b.buf)
}

package logsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korken89/persistlog/core/region"
	"github.com/korken89/persistlog/core/ringbuf"
	"github.com/korken89/persistlog/core/testutil"
)

func newRegion(t *testing.T) *region.Region {
	t.Helper()
	r, err := region.Create(ringbuf.HEADER_SIZE + 256)
	require.NoError(t, err)
	return r
}

func drainAll(c *ringbuf.Consumer) []byte {
	g := c.Read()
	p, s := g.Bufs()
	out := append(append([]byte{}, p...), s...)
	g.Release(len(out))
	return out
}

func TestInit_OneShot(t *testing.T) {
	t.Cleanup(reset)
	r := newRegion(t)

	c, rec, err := Init(r, Options{})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, rec.Reinitialized)

	_, _, err = Init(r, Options{})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	// Even with a different region.
	_, _, err = Init(newRegion(t), Options{})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInit_FailedAttachLeavesSinkUninitialized(t *testing.T) {
	t.Cleanup(reset)

	// Region too small for the ECC layout: Init must fail and remain
	// retryable.
	r, err := region.Create(64)
	require.NoError(t, err)
	_, _, err = Init(r, Options{Ring: ringbuf.Options{ECCPadding: true}})
	require.ErrorIs(t, err, ringbuf.ErrRegionTooSmall)

	c, _, err := Init(newRegion(t), Options{})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestWrite_BeforeInitIsDropped(t *testing.T) {
	t.Cleanup(reset)
	Write([]byte("nobody home"))

	c, _, err := Init(newRegion(t), Options{})
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestWrite_ReachesRingAndMirrors(t *testing.T) {
	t.Cleanup(reset)

	var mirrored []byte
	c, _, err := Init(newRegion(t), Options{
		Mirrors: []Mirror{FuncMirror(func(b []byte) {
			mirrored = append(mirrored, b...)
		})},
	})
	require.NoError(t, err)

	Write([]byte("frame-1|"))
	Write([]byte("frame-2|"))

	assert.Equal(t, []byte("frame-1|frame-2|"), drainAll(c))
	assert.Equal(t, []byte("frame-1|frame-2|"), mirrored)
}

func TestWrite_ReentrantCallIsDropped(t *testing.T) {
	t.Cleanup(reset)

	var fromMirror int
	c, _, err := Init(newRegion(t), Options{
		Mirrors: []Mirror{FuncMirror(func(b []byte) {
			// A mirror that logs: the nested write must vanish instead
			// of recursing or deadlocking.
			fromMirror++
			if fromMirror < 3 {
				Write([]byte("nested"))
			}
		})},
	})
	require.NoError(t, err)

	Write([]byte("outer"))

	assert.Equal(t, 1, fromMirror)
	assert.Equal(t, []byte("outer"), drainAll(c))
}

func TestMarkPanic_SurfacesOnNextInit(t *testing.T) {
	t.Cleanup(reset)
	r := newRegion(t)

	_, _, err := Init(r, Options{})
	require.NoError(t, err)
	Write([]byte("last words"))
	MarkPanic()

	// Reset: new process, same region bytes.
	reset()
	c, rec, err := Init(r, Options{})
	require.NoError(t, err)
	assert.True(t, rec.PanicFramePresent)
	assert.Equal(t, []byte("last words"), drainAll(c))
}

func TestMarkPanic_BeforeInitIsIgnored(t *testing.T) {
	t.Cleanup(reset)
	MarkPanic()
}

func TestInit_RecoversBuiltRegion(t *testing.T) {
	t.Cleanup(reset)

	id := [ringbuf.IDENTIFIER_SIZE]byte{'f', 'w', '1'}
	r, err := testutil.NewRegionBuilder(ringbuf.HEADER_SIZE + 128).
		WithData([]byte("carried over")).
		WithIdentifier(id).
		WithPanicFlag().
		Build()
	require.NoError(t, err)

	c, rec, err := Init(r, Options{})
	require.NoError(t, err)
	assert.False(t, rec.Reinitialized)
	assert.Equal(t, 12, rec.RecoveredBytes)
	assert.Equal(t, id, rec.RecoveredIdentifier)
	assert.True(t, rec.PanicFramePresent)
	assert.Equal(t, []byte("carried over"), drainAll(c))
}

func TestInit_CorruptBuiltRegionReinitializes(t *testing.T) {
	t.Cleanup(reset)

	r, err := testutil.NewRegionBuilder(ringbuf.HEADER_SIZE + 128).
		Fill(0xA5).
		WithData([]byte("doomed")).
		CorruptChecksum().
		Build()
	require.NoError(t, err)

	c, rec, err := Init(r, Options{})
	require.NoError(t, err)
	assert.True(t, rec.Reinitialized)
	assert.True(t, c.IsEmpty())
}

func TestInit_TornBuiltRegionRollsBack(t *testing.T) {
	t.Cleanup(reset)

	r, err := testutil.NewRegionBuilder(ringbuf.HEADER_SIZE + 128).
		WithData([]byte("0123456789")).
		TearHeadMirror(4).
		Build()
	require.NoError(t, err)

	c, rec, err := Init(r, Options{})
	require.NoError(t, err)
	assert.False(t, rec.Reinitialized)
	assert.Equal(t, 4, rec.RecoveredBytes)
	assert.Equal(t, []byte("0123"), drainAll(c))
}

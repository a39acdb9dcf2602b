package cmdlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogBuffer_EmptyInitially(t *testing.T) {
	b := newLogBuffer(64)
	require.True(t, b.empty())
}

func TestLogBuffer_ReserveAdvancesTail(t *testing.T) {
	b := newLogBuffer(64)
	off, wrapped, ok := b.tryReserve(16)
	require.True(t, ok)
	require.False(t, wrapped)
	require.Equal(t, 0, off)
	require.Equal(t, 16, b.tail)
	require.False(t, b.empty())
}

func TestLogBuffer_WrapsWhenTailRunsOut(t *testing.T) {
	b := newLogBuffer(28)
	// Fill most of the buffer, then advance head so there's room to wrap
	// into but not enough room at the tail to satisfy a further request.
	_, _, ok := b.tryReserve(20)
	require.True(t, ok)
	b.advanceHead(10) // head=10, tail=20

	off, wrapped, ok := b.tryReserve(8)
	require.True(t, ok)
	require.True(t, wrapped)
	require.Equal(t, 0, off)
	require.Equal(t, 20, b.last)
	require.Equal(t, 8, b.tail)
}

func TestLogBuffer_RejectsWhenNoRoom(t *testing.T) {
	b := newLogBuffer(16)
	// A reservation spanning the whole buffer is always rejected: the
	// ring never reports itself full, and head==0 leaves nothing behind
	// the tail to wrap into.
	_, _, ok := b.tryReserve(16)
	require.False(t, ok)

	_, _, ok = b.tryReserve(15)
	require.True(t, ok)
	// No room left at the tail (1 byte spare, and a reservation must be
	// strictly smaller than the spare space),
	// and head is still 0 so there's nothing to wrap into.
	_, _, ok = b.tryReserve(1)
	require.False(t, ok)
}

func TestLogBuffer_ReclaimOnFullDrain(t *testing.T) {
	b := newLogBuffer(28)
	_, _, _ = b.tryReserve(20)
	b.advanceHead(10) // head=10, tail=20
	_, wrapped, ok := b.tryReserve(8)
	require.True(t, ok)
	require.True(t, wrapped)

	b.advanceHead(10) // head=20 == last(20) -> reclaim
	require.Equal(t, -1, b.last)
	require.Equal(t, 0, b.head)
}

package cmdlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFqueue_EmptyInitially(t *testing.T) {
	q := newFqueue(320)
	require.True(t, q.empty())
}

func TestFqueue_AppendAccumulatesInOneSlot(t *testing.T) {
	q := newFqueue(320)
	q.append(100, false, false)
	require.False(t, q.empty())
	require.Equal(t, uint16(100), q.slots[q.fbgn].nflush)
	require.Equal(t, q.fbgn, q.fend)
}

func TestFqueue_AppendClosesSlotOnDualWriteChange(t *testing.T) {
	q := newFqueue(320)
	q.append(50, false, false)
	first := q.fend
	q.append(50, true, false)
	require.NotEqual(t, first, q.fend)
	require.Equal(t, uint16(50), q.slots[first].nflush)
	require.False(t, q.slots[first].dualWrite)
	require.Equal(t, uint16(50), q.slots[q.fend].nflush)
	require.True(t, q.slots[q.fend].dualWrite)
}

func TestFqueue_AppendClosesSlotOnWrap(t *testing.T) {
	q := newFqueue(320)
	q.append(50, false, false)
	first := q.fend
	q.append(50, false, true) // wrapped forces a new slot even though dual_write didn't change
	require.NotEqual(t, first, q.fend)
}

func TestFqueue_AppendSplitsAcrossFullSlot(t *testing.T) {
	q := newFqueue(320)
	q.append(FlushAutoSize, false, false)
	firstClosed := q.fbgn != q.fend
	require.True(t, firstClosed)
	require.Equal(t, uint16(FlushAutoSize), q.slots[q.fbgn].nflush)

	q.append(10, false, false)
	require.Equal(t, uint16(10), q.slots[q.fend].nflush)
}

func TestFqueue_ClearDualWriteFrom(t *testing.T) {
	q := newFqueue(320)
	q.append(20, true, false)
	q.closeTailIfNonEmpty()
	q.append(30, true, false)
	q.clearDualWriteFrom()
	for i := q.fbgn; ; i = (i + 1) % q.size {
		if q.slots[i].nflush > 0 {
			require.False(t, q.slots[i].dualWrite)
		}
		if i == q.fend {
			break
		}
	}
}

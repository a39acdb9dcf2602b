package cmdlog

// fqSlot is a single flush-request: a contiguous, ≤32KiB byte range in
// the ring buffer, uniform in its dual-write flag, awaiting one write()
// call from the flusher (spec §3, §4.2).
type fqSlot struct {
	nflush    uint16
	dualWrite bool
}

// fqueue is the parallel ring of flush requests. Its index space is
// deliberately distinct from logBuffer's byte offsets (spec §9: "do not
// reuse the byte ring's indices — the queue's index space is distinct").
// Like logBuffer, it carries no lock of its own: every method here
// assumes the CmdLog write lock is held.
type fqueue struct {
	slots []fqSlot
	size  int
	fbgn  int
	fend  int
	// dwEnd is the slot index marking the end of a completed dual-write
	// region, or -1 if no cleanup window is outstanding (spec §4.4).
	dwEnd int
}

// newFqueue sizes the queue per spec §6: buffer_size/16, which a
// RecordMinSize of 16 bytes makes always large enough to avoid fbgn
// lapping fend for any single record.
func newFqueue(bufferSize int) *fqueue {
	size := bufferSize / 16
	if size < 2 {
		size = 2
	}
	return &fqueue{
		slots: make([]fqSlot, size),
		size:  size,
		dwEnd: -1,
	}
}

func (q *fqueue) empty() bool {
	return q.fbgn == q.fend && q.slots[q.fend].nflush == 0
}

// closeTail advances fend to a fresh, empty slot.
func (q *fqueue) closeTail() {
	q.fend = (q.fend + 1) % q.size
}

// append splits total bytes across consecutive slots, closing slots
// whenever a wrap already closed one, whenever the dual-write flag
// changes, or whenever a slot fills to FlushAutoSize (spec §4.2).
// wrapped tells append that the write path already forced a slot
// closure this call because the ring buffer wrapped underneath it.
func (q *fqueue) append(total int, dualWrite bool, wrapped bool) {
	if q.slots[q.fend].nflush > 0 && (wrapped || q.slots[q.fend].dualWrite != dualWrite) {
		q.closeTail()
	}

	remaining := total
	for remaining > 0 {
		spare := FlushAutoSize - int(q.slots[q.fend].nflush)
		n := remaining
		if spare < n {
			n = spare
		}
		q.slots[q.fend].nflush += uint16(n)
		q.slots[q.fend].dualWrite = dualWrite
		remaining -= n
		if int(q.slots[q.fend].nflush) == FlushAutoSize {
			q.closeTail()
		}
	}
}

// clearDualWriteFrom walks the queue from fbgn to fend clearing the
// dual-write flag on every non-empty slot, used when a rotation is
// aborted (spec §4.4 complete_dual_write(success=false)).
func (q *fqueue) clearDualWriteFrom() {
	i := q.fbgn
	for {
		if q.slots[i].nflush > 0 {
			q.slots[i].dualWrite = false
		}
		if i == q.fend {
			break
		}
		i = (i + 1) % q.size
	}
}

// closeTailIfNonEmpty closes the current tail slot if it has pending
// bytes, leaving fend on a fresh, empty slot. Used by
// completeDualWrite to pin down dwEnd precisely at the rotation
// boundary.
func (q *fqueue) closeTailIfNonEmpty() {
	if q.slots[q.fend].nflush > 0 {
		q.closeTail()
	}
}

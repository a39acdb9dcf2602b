package cmdlog

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// CmdLog is the owning singleton of the whole command-log buffer
// subsystem (spec §3 "Lifecycle", §9 "Global singleton state"): one
// instance is created by Init and destroyed by Final, and passed
// explicitly to every caller rather than reached for as a package-level
// global.
type CmdLog struct {
	cfg   Config
	codec Codec

	// writeMu covers the ring buffer, the flush-request queue and
	// nxt_write_lsn (spec §5 lock #2).
	writeMu  sync.Mutex
	buf      *logBuffer
	fq       *fqueue
	writeLSN LogSN

	// flushMu covers disk I/O and LogFile mutations (spec §5 lock #1).
	// Lock order: flushMu before writeMu, always.
	flushMu sync.Mutex
	files   *logFileSet

	flushLSNMu sync.Mutex
	flushLSN   LogSN

	fsyncLSNMu sync.Mutex
	fsyncLSN   LogSN

	flusher *flusher

	scratch *scratchPool

	initialized int32 // atomic bool, gates RecordWrite et al.

	// fatal is invoked for the §7 FATAL error class. It defaults to
	// klog.Fatalf (log then os.Exit); tests override it to make the
	// otherwise-unrecoverable path observable.
	fatal func(format string, args ...interface{})

	stats stats
}

// Init allocates the ring buffer and flush-request queue, zeros the LSN
// triple to (1, 0), starts the flusher, and marks the instance ready to
// accept writers (spec §3 "Lifecycle").
func Init(cfg Config, codec Codec) (*CmdLog, error) {
	if codec == nil {
		return nil, fmt.Errorf("cmdlog: codec is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = DefaultConfig().MaxRecordSize
	}
	if cfg.MaxRecordSize >= cfg.BufferSize {
		return nil, fmt.Errorf("cmdlog: MaxRecordSize must be less than BufferSize")
	}

	start := LogSN{Filenum: 1, Roffset: 0}
	l := &CmdLog{
		cfg:      cfg,
		codec:    codec,
		buf:      newLogBuffer(cfg.BufferSize),
		fq:       newFqueue(cfg.BufferSize),
		files:    newLogFileSet(),
		writeLSN: start,
		flushLSN: start,
		fsyncLSN: start,
		scratch:  newScratchPool(RecordMinSize * 4),
		fatal:    func(format string, args ...interface{}) { klog.Fatalf(format, args...) },
	}
	l.flusher = newFlusher(l)
	if err := l.flusher.start(); err != nil {
		return nil, fmt.Errorf("cmdlog: starting flusher: %w", err)
	}
	atomic.StoreInt32(&l.initialized, 1)
	klog.Infof("cmdlog: initialized buffer_size=%d max_record_size=%d", cfg.BufferSize, cfg.MaxRecordSize)
	return l, nil
}

// Final stops the flusher and closes the current log file. It panics if
// a rotation or cleanup window is still open, matching
// cmdlog_file_final's precondition (spec §9 Open Question 3): callers
// must resolve any in-flight rotation first.
func (l *CmdLog) Final() {
	atomic.StoreInt32(&l.initialized, 0)
	l.flusher.stop()

	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	if l.files.next.open() {
		panic("cmdlog: Final called with an open rotation (next.fd present)")
	}
	if l.files.cleanup.open() {
		panic("cmdlog: Final called with a cleanup window still draining")
	}
	if err := closeFile(l.files.curr.fd); err != nil {
		l.fatal("%v", err)
	}
	l.files.curr.reset()
	klog.Infof("cmdlog: shutdown complete")
}

// AcquireScratch borrows a pooled byte slice of length n, for a caller
// assembling a record body before handing it to RecordWrite. Release it
// with ReleaseScratch once the record has been written.
func (l *CmdLog) AcquireScratch(n int) []byte {
	return l.scratch.get(n)
}

// ReleaseScratch returns a slice obtained from AcquireScratch to the pool.
func (l *CmdLog) ReleaseScratch(buf []byte) {
	l.scratch.put(buf)
}

// RecordWrite reserves space for record in the ring buffer, serializes
// it via the codec, enqueues the bytes for the flusher, and stamps
// waiter with the LSN assigned to it (spec §4.1).
func (l *CmdLog) RecordWrite(record Record, waiter Waiter, dualWrite bool) error {
	if atomic.LoadInt32(&l.initialized) == 0 {
		return ErrNotInitialized
	}

	headerSize := l.codec.HeaderSize()
	total := headerSize + record.BodyLength()
	if total >= l.cfg.BufferSize || total > l.cfg.MaxRecordSize {
		return ErrRecordTooLarge
	}

	l.writeMu.Lock()
	for {
		if waiter != nil {
			waiter.SetLSN(l.writeLSN)
		}

		offset, wrapped, ok := l.buf.tryReserve(total)
		if ok {
			if wrapped {
				l.fq.closeTailIfNonEmpty()
			}
			out := l.buf.slice(offset, total)
			if err := l.codec.Serialize(record, out); err != nil {
				l.writeMu.Unlock()
				return fmt.Errorf("cmdlog: serialize record: %w", err)
			}
			l.writeLSN = l.writeLSN.advance(uint64(total))
			l.fq.append(total, dualWrite, wrapped)
			l.writeMu.Unlock()

			l.flusher.signal()
			atomic.AddUint64(&l.stats.bytesWritten, uint64(total))
			atomic.AddUint64(&l.stats.recordsWritten, 1)
			return nil
		}

		// Insufficient contiguous space: drop the write lock, take the
		// flush lock, force progress, and retry. Lock order is always
		// flush before write (spec §5), so we must fully release
		// writeMu before taking flushMu.
		l.writeMu.Unlock()
		l.flushMu.Lock()
		l.flushOnce(false)
		l.flushMu.Unlock()
		l.writeMu.Lock()
	}
}

// flushOnce implements spec §4.3. Callers must hold flushMu; it takes
// and releases writeMu and the LSN locks itself, per the lock-order
// rule (flush before write, LSN locks are leaves).
func (l *CmdLog) flushOnce(flushAll bool) int {
	l.writeMu.Lock()

	cleanupProcess := false
	nextFhlsnFlag := false
	if l.fq.dwEnd != -1 {
		cleanupProcess = true
		if l.fq.fbgn == l.fq.dwEnd {
			l.fq.dwEnd = -1
			nextFhlsnFlag = true
			cleanupProcess = false
		}
	}

	haveWork := false
	if l.fq.fbgn != l.fq.fend {
		haveWork = true
	} else if flushAll && l.fq.slots[l.fq.fend].nflush > 0 {
		l.fq.closeTail()
		haveWork = true
	}

	if haveWork && l.buf.head == l.buf.last {
		l.buf.reclaimIfDrained()
	}

	var nflush int
	var dualWrite bool
	var headOffset int
	if haveWork {
		slot := l.fq.slots[l.fq.fbgn]
		nflush = int(slot.nflush)
		dualWrite = slot.dualWrite
		headOffset = l.buf.head
	}
	l.writeMu.Unlock()

	if nextFhlsnFlag {
		l.flushLSNMu.Lock()
		l.flushLSN = l.flushLSN.nextFile()
		l.flushLSNMu.Unlock()
		l.closeCleanupFD()
	}

	if !haveWork {
		return 0
	}

	data := l.buf.slice(headOffset, nflush)

	if cleanupProcess {
		// Pre-rotation bytes queued before complete_dual_write(true)
		// completed. Every such slot has dual_write=true (they were
		// queued during the Dual regime). Invariant 6 requires them to
		// land in both files: curr.fd now holds the new file, and
		// files.cleanup holds the saved pre-rotation file (this
		// implementation's resolution of §9 Open Question 1).
		if dualWrite {
			if l.files.curr.open() {
				if err := writeFull(l.files.curr.fd, data); err != nil {
					l.fatal("%v", err)
				}
				l.files.curr.size += int64(nflush)
			}
			if l.files.cleanup.open() {
				if err := writeFull(l.files.cleanup.fd, data); err != nil {
					l.fatal("%v", err)
				}
				l.files.cleanup.size += int64(nflush)
			}
		}
	} else {
		if err := writeFull(l.files.curr.fd, data); err != nil {
			l.fatal("%v", err)
		}
		l.files.curr.size += int64(nflush)
		if dualWrite && l.files.next.open() {
			if err := writeFull(l.files.next.fd, data); err != nil {
				l.fatal("%v", err)
			}
			l.files.next.size += int64(nflush)
		}
	}

	l.flushLSNMu.Lock()
	l.flushLSN = l.flushLSN.advance(uint64(nflush))
	l.flushLSNMu.Unlock()

	l.writeMu.Lock()
	l.buf.advanceHead(nflush)
	l.fq.slots[l.fq.fbgn] = fqSlot{}
	l.fq.fbgn = (l.fq.fbgn + 1) % l.fq.size
	l.writeMu.Unlock()

	atomic.AddUint64(&l.stats.bytesFlushed, uint64(nflush))
	return nflush
}

// closeCleanupFD closes the saved pre-rotation file once its cleanup
// window has fully drained. Callers must already hold flushMu (it is
// only ever invoked from within flushOnce).
func (l *CmdLog) closeCleanupFD() {
	if !l.files.cleanup.open() {
		return
	}
	if l.files.cleanup.fsyncOngoing {
		return
	}
	if err := closeFile(l.files.cleanup.fd); err != nil {
		l.fatal("%v", err)
	}
	l.files.cleanup.reset()
	if l.files.state == stateCleanup {
		l.files.state = stateSingle
	}
}

// BufferFlush blocks until nxt_flush_lsn has advanced to cover uptoLSN,
// forcing exhaustive flush_once calls in the meantime (spec §4.5). The
// loop terminates once the flush LSN is no longer strictly behind
// uptoLSN: a literal "continue while flush_lsn <= upto_lsn" reading
// never terminates for the common case where uptoLSN is exactly the
// caller's own write LSN and nothing more arrives, since flush_lsn
// settles there rather than passing it.
func (l *CmdLog) BufferFlush(uptoLSN LogSN) {
	for {
		l.flushMu.Lock()
		cur := l.getFlushLSNLocked()
		if uptoLSN.LessEqual(cur) {
			l.flushMu.Unlock()
			return
		}
		l.flushOnce(true)
		l.flushMu.Unlock()
	}
}

// FileSync fsyncs the current file(s), advancing nxt_fsync_lsn to the
// flush LSN sampled at the start of the call (spec §4.5).
func (l *CmdLog) FileSync() error {
	l.flushMu.Lock()
	now := l.getFlushLSNLocked()
	fd := l.files.curr.fd
	nextFd := l.files.next.fd
	if fd != nil {
		l.files.curr.fsyncOngoing = true
	}
	if nextFd != nil {
		l.files.next.fsyncOngoing = true
	}
	l.flushMu.Unlock()

	if fd != nil {
		if err := fsyncFile(fd); err != nil {
			l.fatal("%v", err)
			return err
		}
	}
	if nextFd != nil {
		if err := fsyncFile(nextFd); err != nil {
			l.fatal("%v", err)
			return err
		}
	}

	l.fsyncLSNMu.Lock()
	l.fsyncLSN = now
	l.fsyncLSNMu.Unlock()

	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	if fd != nil {
		if l.files.curr.fd == fd {
			l.files.curr.fsyncOngoing = false
		} else {
			closeFile(fd)
		}
	}
	if nextFd != nil {
		if l.files.next.fd == nextFd {
			l.files.next.fsyncOngoing = false
		} else {
			closeFile(nextFd)
		}
	}
	return nil
}

func (l *CmdLog) getFlushLSNLocked() LogSN {
	l.flushLSNMu.Lock()
	defer l.flushLSNMu.Unlock()
	return l.flushLSN
}

// GetFlushLSN returns an atomic snapshot of nxt_flush_lsn.
func (l *CmdLog) GetFlushLSN() LogSN {
	l.flushLSNMu.Lock()
	defer l.flushLSNMu.Unlock()
	return l.flushLSN
}

// GetFsyncLSN returns an atomic snapshot of nxt_fsync_lsn.
func (l *CmdLog) GetFsyncLSN() LogSN {
	l.fsyncLSNMu.Lock()
	defer l.fsyncLSNMu.Unlock()
	return l.fsyncLSN
}

// GetWriteLSN returns an atomic snapshot of nxt_write_lsn.
func (l *CmdLog) GetWriteLSN() LogSN {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.writeLSN
}

// FilePrepare opens path and installs it as curr (first call) or next
// (entering the Dual rotation state), per spec §4.4.
func (l *CmdLog) FilePrepare(path string) error {
	if len(path) > MaxFilepathLength {
		return fmt.Errorf("cmdlog: path exceeds MaxFilepathLength: %q", path)
	}

	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	f, err := openLogFile(path)
	if err != nil {
		klog.Warningf("cmdlog: file_prepare(%s): %v", path, err)
		return err
	}

	if !l.files.curr.open() {
		l.files.curr = fileSlot{fd: f}
		l.files.state = stateSingle
		return nil
	}
	if l.files.next.open() {
		closeFile(f)
		return ErrRotationBusy
	}
	l.files.next = fileSlot{fd: f}
	l.files.state = stateDual
	klog.Infof("cmdlog: rotation started, next=%s", path)
	return nil
}

// CompleteDualWrite finishes (success) or aborts (failure) a rotation
// started by FilePrepare, per spec §4.4.
func (l *CmdLog) CompleteDualWrite(success bool) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	if l.files.state != stateDual || !l.files.next.open() {
		return ErrNoRotation
	}

	if success {
		l.writeMu.Lock()
		l.fq.closeTailIfNonEmpty()
		if l.fq.dwEnd != -1 {
			l.writeMu.Unlock()
			return fmt.Errorf("cmdlog: a cleanup window is already draining")
		}
		l.fq.dwEnd = l.fq.fend
		l.writeLSN = l.writeLSN.nextFile()
		l.writeMu.Unlock()

		prev := l.files.curr
		l.files.curr = l.files.next
		l.files.next.reset()
		l.files.cleanup = prev
		l.files.state = stateCleanup
		klog.Infof("cmdlog: rotation completed, write_lsn.filenum=%d", l.writeLSN.Filenum)
		return nil
	}

	l.writeMu.Lock()
	l.fq.clearDualWriteFrom()
	l.writeMu.Unlock()

	if l.files.next.fsyncOngoing {
		// FileSync captured the fd before we get here; it will notice
		// the mismatch once l.files.next.fd no longer matches and close
		// it itself.
	} else {
		closeFile(l.files.next.fd)
	}
	l.files.next.reset()
	l.files.state = stateSingle
	klog.Infof("cmdlog: rotation aborted")
	return nil
}

// FileGetSize returns curr's size, or 0 while a cleanup window is
// draining (spec §6).
func (l *CmdLog) FileGetSize() uint64 {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	if l.files.state == stateCleanup {
		return 0
	}
	return uint64(l.files.curr.size)
}

// FileApply replays every complete record in curr.fd through the
// codec's Redo hook, for crash recovery (spec §6, §7, §8 invariants 8-9,
// §9 Open Question 2).
func (l *CmdLog) FileApply() error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	f := l.files.curr.fd
	if f == nil {
		return ErrNotInitialized
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek start: %v", ErrIOFailed, err)
	}

	headerSize := l.codec.HeaderSize()
	var offset int64

	for {
		header, n, err := readHeader(f, headerSize)
		if n == 0 && (err == nil || err == io.EOF) {
			break
		}
		if n < headerSize {
			if err := f.Truncate(offset); err != nil {
				return fmt.Errorf("%w: truncate torn header: %v", ErrIOFailed, err)
			}
			l.files.curr.size = offset
			klog.Warningf("cmdlog: recovery found a torn header at offset %d, truncated", offset)
			return l.syncLSNsToOffset(offset)
		}

		bodyLength, derr := l.codec.DecodeHeader(header)
		if derr != nil {
			closeFile(f)
			return fmt.Errorf("%w: decode header at offset %d: %v", ErrRecoveryCorrupt, offset, derr)
		}
		if int(bodyLength) > l.cfg.MaxRecordSize {
			closeFile(f)
			return fmt.Errorf("%w: body length %d exceeds max record size", ErrRecoveryCorrupt, bodyLength)
		}

		body := make([]byte, bodyLength)
		bn, berr := io.ReadFull(f, body)
		if berr != nil {
			if berr == io.ErrUnexpectedEOF || berr == io.EOF {
				// Torn body: rewind only by the header size (matching
				// the source exactly), then truncate there so no stale
				// trailing bytes survive (this implementation's one
				// deliberate deviation, §9 Open Question 2).
				if _, serr := f.Seek(offset, io.SeekStart); serr != nil {
					return fmt.Errorf("%w: seek torn body: %v", ErrIOFailed, serr)
				}
				if err := f.Truncate(offset); err != nil {
					return fmt.Errorf("%w: truncate torn body: %v", ErrIOFailed, err)
				}
				l.files.curr.size = offset
				klog.Warningf("cmdlog: recovery found a torn body at offset %d (%d of %d bytes present), truncated", offset, bn, bodyLength)
				return l.syncLSNsToOffset(offset)
			}
			return fmt.Errorf("%w: read body at offset %d: %v", ErrIOFailed, offset, berr)
		}

		if rerr := l.codec.Redo(header, body); rerr != nil {
			if errors.Is(rerr, ErrOutOfMemory) {
				return ErrOutOfMemory
			}
			closeFile(f)
			return fmt.Errorf("%w: redo at offset %d: %v", ErrRecoveryCorrupt, offset, rerr)
		}
		offset += int64(headerSize) + int64(bodyLength)
	}

	l.files.curr.size = offset
	return l.syncLSNsToOffset(offset)
}

// syncLSNsToOffset advances all three LSNs to the end of the recovered
// log, keeping their filenum unchanged. Callers must hold flushMu.
func (l *CmdLog) syncLSNsToOffset(offset int64) error {
	l.writeMu.Lock()
	l.writeLSN.Roffset = uint64(offset)
	fnum := l.writeLSN.Filenum
	l.writeMu.Unlock()

	l.flushLSNMu.Lock()
	l.flushLSN = LogSN{Filenum: fnum, Roffset: uint64(offset)}
	l.flushLSNMu.Unlock()

	l.fsyncLSNMu.Lock()
	l.fsyncLSN = LogSN{Filenum: fnum, Roffset: uint64(offset)}
	l.fsyncLSNMu.Unlock()

	return nil
}

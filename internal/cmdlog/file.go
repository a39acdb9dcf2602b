package cmdlog

import "os"

// rotationState names the two-file handover state machine of spec §4.4,
// replacing the sentinel-fd encoding the source uses with an explicit
// enum (spec §9: "model as a small explicit state machine {Single,
// Dual, Cleanup} with a single variant-typed field rather than sentinel
// -1 fd values").
type rotationState int

const (
	// stateSingle: no rotation in progress, all writes go to curr only.
	stateSingle rotationState = iota
	// stateDual: next.fd is open; every record whose caller passed
	// dual_write=true must reach both curr and next.
	stateDual
	// stateCleanup: the checkpoint completed (curr now IS the new
	// file), but flush-request slots queued before completion still
	// need to reach the pre-rotation file, held open in logFileSet.cleanup.
	stateCleanup
)

func (s rotationState) String() string {
	switch s {
	case stateSingle:
		return "single"
	case stateDual:
		return "dual"
	case stateCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// fileSlot holds one open log file descriptor and its bookkeeping
// (spec §3 LogFile).
type fileSlot struct {
	fd           *os.File
	fsyncOngoing bool
	size         int64
}

func (s *fileSlot) open() bool { return s.fd != nil }

func (s *fileSlot) reset() {
	s.fd = nil
	s.fsyncOngoing = false
	s.size = 0
}

// logFileSet is the owning struct for curr/next plus the cleanup-window
// fd saved across a completed rotation. All of it is only ever touched
// under the CmdLog flush lock.
type logFileSet struct {
	curr  fileSlot
	next  fileSlot
	state rotationState

	// cleanup is the pre-rotation file, kept open from the moment
	// completeDualWrite(true) hands curr over to the new file until the
	// flusher drains the last queued pre-rotation bytes to it. This is
	// this implementation's resolution of spec §9 Open Question 1: the
	// source closes the pre-rotation fd immediately at handover and then
	// tries to address it as curr.fd during cleanup, which by then
	// points at the new file. Saving it explicitly here is the fix.
	cleanup fileSlot
}

func newLogFileSet() *logFileSet {
	return &logFileSet{state: stateSingle}
}

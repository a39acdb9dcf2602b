package cmdlog

import "errors"

// Error taxonomy for the command-log buffer subsystem (spec §7).
//
// ErrOutOfMemory and ErrIOFailed are recoverable: the caller gets them
// back and decides what to do. FATAL conditions (fsync failure, a short
// or failed write to a live file, a close failure on a live fd) are not
// returned as errors at all — they are logged and the process aborts,
// since a WAL that cannot guarantee its own durability contract has no
// local recovery path; see the CmdLog.fatal field.
var (
	ErrOutOfMemory    = errors.New("cmdlog: out of memory")
	ErrIOFailed       = errors.New("cmdlog: io failed")
	ErrRecoveryCorrupt = errors.New("cmdlog: recovery found corrupt record")
	ErrNotInitialized = errors.New("cmdlog: not initialized")
	ErrRecordTooLarge = errors.New("cmdlog: record exceeds buffer or max record size")
	ErrRotationBusy   = errors.New("cmdlog: rotation already in progress")
	ErrNoRotation     = errors.New("cmdlog: no rotation in progress")
)

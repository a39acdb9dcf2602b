package cmdlog

import "io"

// Record is produced by the external command codec (spec §1: "out of
// scope... the record codec"). CmdLog never interprets a record's bytes
// itself; it only needs to know how many body bytes it must reserve and
// hands the actual serialization off to a Codec.
type Record interface {
	// BodyLength returns the length, in bytes, of the record's body.
	// Total on-wire length is Codec.HeaderSize() + BodyLength().
	BodyLength() int
}

// Waiter is stamped with the LSN assigned to a record before it is
// appended, so a foreground caller can later block on that LSN via
// BufferFlush or compare it against GetFsyncLSN.
type Waiter interface {
	SetLSN(sn LogSN)
}

// Codec is the injected capability that knows how to lay a Record out as
// bytes and how to replay a previously-written record during recovery.
// It is the only collaborator CmdLog needs from the command-record
// subsystem, which otherwise lives entirely outside this package (spec
// §9: "Polymorphism over log record").
type Codec interface {
	// HeaderSize returns the fixed size, in bytes, of every record's
	// header.
	HeaderSize() int

	// Serialize writes header+body for rec into out, which has exactly
	// HeaderSize()+rec.BodyLength() bytes available.
	Serialize(rec Record, out []byte) error

	// DecodeHeader parses a header previously read from disk and
	// returns the body length it encodes. It must not allocate the body
	// itself; FileApply reads the body separately once it knows the
	// length.
	DecodeHeader(header []byte) (bodyLength uint32, err error)

	// Redo replays one on-disk record (header and body, as read from a
	// file being recovered) against whatever engine state the caller
	// owns. Returning ErrOutOfMemory aborts recovery hard per spec §7;
	// any other error is treated as a corrupt record.
	Redo(header, body []byte) error
}

// readHeader is a small helper recovery uses to pull exactly
// codec.HeaderSize() bytes from r, distinguishing a clean EOF (no more
// records) from a torn header (some bytes present, not enough).
func readHeader(r io.Reader, headerSize int) (header []byte, n int, err error) {
	header = make([]byte, headerSize)
	n, err = io.ReadFull(r, header)
	return header, n, err
}

package cmdlog

import (
	"encoding/binary"
	"fmt"
)

// testRecord is the package's own test record type: out of scope per
// spec.md §1 ("the record codec"), but the package needs *some*
// concrete Record/Codec pair to exercise RecordWrite/FileApply.
type testRecord struct {
	body []byte
}

func (r testRecord) BodyLength() int { return len(r.body) }

// testWaiter captures the LSN RecordWrite stamps it with.
type testWaiter struct {
	lsn LogSN
}

func (w *testWaiter) SetLSN(sn LogSN) { w.lsn = sn }

// testCodec is a minimal fixed 8-byte header: 4 bytes body length, 4
// bytes reserved. Redo appends every replayed (header, body) pair to
// redone for assertions, and can be made to fail on a configured record
// index to exercise the RECOVERY_CORRUPT and OUT_OF_MEMORY paths.
type testCodec struct {
	redone  [][]byte
	failAt  int // -1 disables
	failErr error
}

func newTestCodec() *testCodec {
	return &testCodec{failAt: -1}
}

func (c *testCodec) HeaderSize() int { return 8 }

func (c *testCodec) Serialize(rec Record, out []byte) error {
	r, ok := rec.(testRecord)
	if !ok {
		return fmt.Errorf("testCodec: unexpected record type %T", rec)
	}
	binary.BigEndian.PutUint32(out[0:4], uint32(len(r.body)))
	binary.BigEndian.PutUint32(out[4:8], 0)
	copy(out[8:], r.body)
	return nil
}

func (c *testCodec) DecodeHeader(header []byte) (uint32, error) {
	if len(header) < 8 {
		return 0, fmt.Errorf("testCodec: short header")
	}
	return binary.BigEndian.Uint32(header[0:4]), nil
}

func (c *testCodec) Redo(header, body []byte) error {
	if c.failAt == len(c.redone) {
		if c.failErr != nil {
			return c.failErr
		}
		return ErrOutOfMemory
	}
	rec := make([]byte, 0, len(header)+len(body))
	rec = append(rec, header...)
	rec = append(rec, body...)
	c.redone = append(c.redone, rec)
	return nil
}

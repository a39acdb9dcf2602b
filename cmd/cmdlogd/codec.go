package main

import (
	"encoding/binary"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/nyasuto/cmdlogbuf/internal/cmdlog"
)

// jsonLineCodec is a minimal demonstration codec: the real record
// layout is explicitly out of this subsystem's scope (spec.md §1), so
// cmdlogd supplies the simplest possible stand-in — a 4-byte big-endian
// length header followed by an opaque body — rather than shipping any
// production framing inside internal/cmdlog itself.
type jsonLineCodec struct{}

func newJSONLineCodec() *jsonLineCodec { return &jsonLineCodec{} }

// logLine is the Record this codec knows how to serialize.
type logLine []byte

func (l logLine) BodyLength() int { return len(l) }

func (c *jsonLineCodec) HeaderSize() int { return 4 }

func (c *jsonLineCodec) Serialize(rec cmdlog.Record, out []byte) error {
	line, ok := rec.(logLine)
	if !ok {
		return fmt.Errorf("jsonLineCodec: unexpected record type %T", rec)
	}
	binary.BigEndian.PutUint32(out[0:4], uint32(len(line)))
	copy(out[4:], line)
	return nil
}

func (c *jsonLineCodec) DecodeHeader(header []byte) (uint32, error) {
	if len(header) < 4 {
		return 0, fmt.Errorf("jsonLineCodec: short header")
	}
	return binary.BigEndian.Uint32(header[0:4]), nil
}

// Redo has no engine to replay into here — cmdlogd only operates the
// log itself, not the cache it would feed in a full deployment — so it
// just logs what it would have replayed.
func (c *jsonLineCodec) Redo(header, body []byte) error {
	klog.Infof("cmdlogd: recovered record: %s", string(body))
	return nil
}

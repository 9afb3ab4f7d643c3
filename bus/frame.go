package bus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frame is the wire representation of any bus event: a kind tag, a
// fixed-int encoded metadata block, and the kind-specific payload bytes.
// Trailing bytes after the payload are explicitly allowed on decode (spec
// §4.1) so future fields can be appended without breaking older readers.
type Frame struct {
	Kind     EventKind
	Metadata Metadata
	Payload  []byte
}

// Encode serializes f deterministically: decoding then re-encoding the
// same logical event yields byte-equal output (spec §4.1 contract).
func (f Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(f.Kind))
	encodeMetadata(&buf, f.Metadata)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Payload)))
	buf.Write(lenBuf[:])
	buf.Write(f.Payload)
	return buf.Bytes()
}

// DecodeFrame parses a Frame from data. Trailing bytes beyond the declared
// payload length are returned as extra and are not an error.
func DecodeFrame(data []byte) (f Frame, extra []byte, err error) {
	r := bytes.NewReader(data)
	kindByte, err := r.ReadByte()
	if err != nil {
		return Frame{}, nil, deserializationError("truncated frame: kind tag", err)
	}
	f.Kind = EventKind(kindByte)

	meta, err := decodeMetadata(r)
	if err != nil {
		return Frame{}, nil, deserializationError("truncated frame: metadata", err)
	}
	f.Metadata = meta

	var payloadLen uint32
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return Frame{}, nil, deserializationError("truncated frame: payload length", err)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, nil, deserializationError("truncated frame: payload", err)
	}
	f.Payload = payload

	rest, _ := io.ReadAll(r)
	return f, rest, nil
}

// expectKind is a helper for typed decoders: it returns KindMismatch when
// the frame's declared kind does not match what the caller expected.
func expectKind(f Frame, expected EventKind) error {
	if f.Kind != expected {
		return mismatchError(expected, f.Kind)
	}
	return nil
}

func encodeMetadata(buf *bytes.Buffer, m Metadata) {
	writeUUID(buf, m.CorrelationID)
	writeUUID(buf, m.SpanID)
	writeUUID(buf, m.ParentSpanID)
	writeUint64(buf, m.Sequence)
	writeInt64(buf, m.Timestamp.UnixNano())
	buf.WriteByte(byte(m.Priority))
	writeString(buf, m.Source.Module)
	writeString(buf, m.Source.Instance)
}

func decodeMetadata(r io.Reader) (Metadata, error) {
	var m Metadata
	var err error
	if m.CorrelationID, err = readUUID(r); err != nil {
		return m, err
	}
	if m.SpanID, err = readUUID(r); err != nil {
		return m, err
	}
	if m.ParentSpanID, err = readUUID(r); err != nil {
		return m, err
	}
	if m.Sequence, err = readUint64(r); err != nil {
		return m, err
	}
	nanos, err := readInt64(r)
	if err != nil {
		return m, err
	}
	m.Timestamp = time.Unix(0, nanos).UTC()
	var p [1]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return m, err
	}
	m.Priority = Priority(p[0])
	if m.Source.Module, err = readString(r); err != nil {
		return m, err
	}
	if m.Source.Instance, err = readString(r); err != nil {
		return m, err
	}
	return m, nil
}

// --- primitive codec helpers (fixed-int, length-prefix-safe) ---

func writeUUID(buf *bytes.Buffer, id uuid.UUID) { buf.Write(id[:]) }

func readUUID(r io.Reader) (uuid.UUID, error) {
	var id uuid.UUID
	_, err := io.ReadFull(r, id[:])
	return id, err
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeInt64(buf *bytes.Buffer, v int64) { writeUint64(buf, uint64(v)) }

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeDecimal(buf *bytes.Buffer, d decimal.Decimal) { writeString(buf, d.String()) }

func readDecimal(r io.Reader) (decimal.Decimal, error) {
	s, err := readString(r)
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode decimal %q: %w", s, err)
	}
	return d, nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func writeLevels(buf *bytes.Buffer, levels []OrderBookLevel) {
	writeUint64(buf, uint64(len(levels)))
	for _, l := range levels {
		writeDecimal(buf, l.Price)
		writeDecimal(buf, l.Size)
	}
}

func readLevels(r io.Reader) ([]OrderBookLevel, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	levels := make([]OrderBookLevel, 0, n)
	for i := uint64(0); i < n; i++ {
		price, err := readDecimal(r)
		if err != nil {
			return nil, err
		}
		size, err := readDecimal(r)
		if err != nil {
			return nil, err
		}
		levels = append(levels, OrderBookLevel{Price: price, Size: size})
	}
	return levels, nil
}

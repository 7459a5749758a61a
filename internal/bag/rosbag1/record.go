package rosbag1

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Record op codes.
const (
	opMsgData    byte = 0x02
	opBagHeader  byte = 0x03
	opIndexData  byte = 0x04
	opChunk      byte = 0x05
	opChunkInfo  byte = 0x06
	opConnection byte = 0x07
)

const (
	// maxRecordPart bounds a single header or data section. Point clouds and
	// images are large, but a length past this is a corrupt file.
	maxRecordPart = 1 << 30

	indexVersion     = 1
	chunkInfoVersion = 1
)

var errMissingField = errors.New("missing header field")

// header is a decoded record header.
type header map[string][]byte

// field is one name=value pair, kept in a slice so encoding is ordered.
type field struct {
	name  string
	value []byte
}

func (h header) op() (byte, error) {
	v, ok := h["op"]
	if !ok || len(v) != 1 {
		return 0, fmt.Errorf("op: %w", errMissingField)
	}

	return v[0], nil
}

func (h header) uint32(name string) (uint32, error) {
	v, ok := h[name]
	if !ok || len(v) != 4 {
		return 0, fmt.Errorf("%s: %w", name, errMissingField)
	}

	return binary.LittleEndian.Uint32(v), nil
}

func (h header) uint64(name string) (uint64, error) {
	v, ok := h[name]
	if !ok || len(v) != 8 {
		return 0, fmt.Errorf("%s: %w", name, errMissingField)
	}

	return binary.LittleEndian.Uint64(v), nil
}

func (h header) time(name string) (int64, error) {
	v, ok := h[name]
	if !ok || len(v) != 8 {
		return 0, fmt.Errorf("%s: %w", name, errMissingField)
	}

	return decodeTime(v), nil
}

func (h header) string(name string) (string, error) {
	v, ok := h[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, errMissingField)
	}

	return string(v), nil
}

// optString returns the field value or "" when absent.
func (h header) optString(name string) string {
	return string(h[name])
}

// decodeHeader parses a sequence of length-prefixed name=value fields.
func decodeHeader(buf []byte) (header, error) {
	h := make(header)

	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, fmt.Errorf("truncated header field length")
		}

		n := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]

		if uint64(n) > uint64(len(buf)) {
			return nil, fmt.Errorf("header field length %d exceeds remaining %d bytes", n, len(buf))
		}

		kv := buf[:n]
		buf = buf[n:]

		eq := bytes.IndexByte(kv, '=')
		if eq < 0 {
			return nil, fmt.Errorf("header field without '=' separator")
		}

		h[string(kv[:eq])] = kv[eq+1:]
	}

	return h, nil
}

// encodeHeader serializes fields in order, without the outer length prefix.
func encodeHeader(fields []field) []byte {
	var buf bytes.Buffer

	for _, f := range fields {
		var n [4]byte

		binary.LittleEndian.PutUint32(n[:], uint32(len(f.name)+1+len(f.value)))
		buf.Write(n[:])
		buf.WriteString(f.name)
		buf.WriteByte('=')
		buf.Write(f.value)
	}

	return buf.Bytes()
}

// readPart reads one u32-length-prefixed section.
func readPart(r io.Reader) ([]byte, error) {
	n, err := readLen(r)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, unexpectedEOF(err)
	}

	return buf, nil
}

func readLen(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}

	n := binary.LittleEndian.Uint32(b[:])
	if n > maxRecordPart {
		return 0, fmt.Errorf("record section of %d bytes exceeds limit", n)
	}

	return n, nil
}

// readRecordHeader reads the header of the next record. It returns io.EOF
// only when the stream ends cleanly on a record boundary.
func readRecordHeader(r io.Reader) (header, error) {
	raw, err := readPart(r)
	if err != nil {
		return nil, err
	}

	return decodeHeader(raw)
}

// readRecord reads a full record.
func readRecord(r io.Reader) (header, []byte, error) {
	h, err := readRecordHeader(r)
	if err != nil {
		return nil, nil, err
	}

	data, err := readPart(r)
	if err != nil {
		return nil, nil, unexpectedEOF(err)
	}

	return h, data, nil
}

// skipData discards the data section of a record whose header was read.
func skipData(r io.Reader) error {
	n, err := readLen(r)
	if err != nil {
		return unexpectedEOF(err)
	}

	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		return unexpectedEOF(err)
	}

	return nil
}

// appendRecord appends a framed record to buf.
func appendRecord(buf *bytes.Buffer, fields []field, data []byte) {
	hdr := encodeHeader(fields)

	var n [4]byte

	binary.LittleEndian.PutUint32(n[:], uint32(len(hdr)))
	buf.Write(n[:])
	buf.Write(hdr)
	binary.LittleEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.Write(data)
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}

// Time values are (sec u32, nsec u32) pairs.

func decodeTime(b []byte) int64 {
	sec := binary.LittleEndian.Uint32(b[:4])
	nsec := binary.LittleEndian.Uint32(b[4:8])

	return int64(sec)*1e9 + int64(nsec)
}

func encodeTime(ts int64) ([]byte, error) {
	if ts < 0 || ts/1e9 > math.MaxUint32 {
		return nil, fmt.Errorf("timestamp %d out of range for ROS1 time", ts)
	}

	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[:4], uint32(ts/1e9))
	binary.LittleEndian.PutUint32(b[4:], uint32(ts%1e9))

	return b, nil
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return b
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)

	return b
}

func opField(op byte) field {
	return field{name: "op", value: []byte{op}}
}

package rosbag1

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/hupe1980/bagfilter/internal/bag"
)

const magicPrefix = "#ROSBAG V"

// supportedVersions gates the on-disk format revision.
var supportedVersions = mustConstraint(">= 2.0, < 3.0")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}

	return cs
}

type chunkInfo struct {
	pos    int64
	start  int64
	end    int64
	counts map[uint32]uint32
}

// Reader reads a single-file bag. Message iteration streams one chunk at a
// time through a decompressor and never loads a whole chunk.
type Reader struct {
	path   string
	f      *os.File
	size   int64
	conns  []bag.Connection
	byID   map[uint32]int
	chunks []chunkInfo
	closed bool
}

// Open opens the bag at path and loads its index section.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided bag path
	if err != nil {
		return nil, &bag.NotFoundError{Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &bag.NotFoundError{Path: path, Err: err}
	}

	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, &bag.NotFoundError{Path: path, Err: errors.New("not a regular file")}
	}

	r := &Reader{
		path: path,
		f:    f,
		size: info.Size(),
		byID: make(map[uint32]int),
	}

	if err := r.load(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return r, nil
}

func (r *Reader) load() error {
	br := bufio.NewReader(io.NewSectionReader(r.f, 0, r.size))

	if err := readMagic(r.path, br); err != nil {
		return err
	}

	h, err := readRecordHeader(br)
	if err != nil {
		return &bag.NotFoundError{Path: r.path, Err: fmt.Errorf("reading bag header: %w", unexpectedEOF(err))}
	}

	if op, opErr := h.op(); opErr != nil || op != opBagHeader {
		return &bag.FormatError{Path: r.path, Reason: "first record is not a bag header"}
	}

	indexPos, err := h.uint64("index_pos")
	if err != nil {
		return &bag.FormatError{Path: r.path, Reason: err.Error()}
	}

	if indexPos == 0 {
		return &bag.FormatError{Path: r.path, Reason: "bag is unindexed (was the recording interrupted?)"}
	}

	if indexPos > uint64(r.size) {
		return &bag.FormatError{Path: r.path, Reason: fmt.Sprintf("index position %d past end of file", indexPos)}
	}

	return r.loadIndex(int64(indexPos))
}

func readMagic(path string, br *bufio.Reader) error {
	line, err := br.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, magicPrefix) {
		return &bag.FormatError{Path: path, Reason: "missing #ROSBAG magic"}
	}

	raw := strings.TrimSpace(strings.TrimPrefix(line, magicPrefix))

	v, err := semver.NewVersion(raw)
	if err != nil {
		return &bag.FormatError{Path: path, Reason: fmt.Sprintf("invalid format version %q", raw)}
	}

	if !supportedVersions.Check(v) {
		return &bag.FormatError{Path: path, Reason: fmt.Sprintf("format version %s not supported", raw)}
	}

	return nil
}

// loadIndex reads the connection and chunk-info records after indexPos.
func (r *Reader) loadIndex(indexPos int64) error {
	br := bufio.NewReader(io.NewSectionReader(r.f, indexPos, r.size-indexPos))

	for {
		h, data, err := readRecord(br)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("reading index of %s: %w", r.path, err)
		}

		op, err := h.op()
		if err != nil {
			return fmt.Errorf("reading index of %s: %w", r.path, err)
		}

		switch op {
		case opConnection:
			if err := r.addConnection(h, data); err != nil {
				return fmt.Errorf("reading connection of %s: %w", r.path, err)
			}
		case opChunkInfo:
			if err := r.addChunkInfo(h, data); err != nil {
				return fmt.Errorf("reading chunk info of %s: %w", r.path, err)
			}
		}
	}

	sort.Slice(r.chunks, func(i, j int) bool { return r.chunks[i].pos < r.chunks[j].pos })

	for _, ci := range r.chunks {
		for id, n := range ci.counts {
			if i, ok := r.byID[id]; ok {
				r.conns[i].MessageCount += uint64(n)
			}
		}
	}

	return nil
}

func (r *Reader) addConnection(h header, data []byte) error {
	id, err := h.uint32("conn")
	if err != nil {
		return err
	}

	topic, err := h.string("topic")
	if err != nil {
		return err
	}

	fields, err := decodeHeader(data)
	if err != nil {
		return err
	}

	if _, dup := r.byID[id]; dup {
		return nil
	}

	r.byID[id] = len(r.conns)
	r.conns = append(r.conns, bag.Connection{
		ID:                int(id),
		Topic:             topic,
		MsgType:           fields.optString("type"),
		Serialization:     bag.SerializationROS1,
		MD5Sum:            fields.optString("md5sum"),
		MessageDefinition: fields.optString("message_definition"),
		CallerID:          fields.optString("callerid"),
		Latching:          fields.optString("latching") == "1",
	})

	return nil
}

func (r *Reader) addChunkInfo(h header, data []byte) error {
	pos, err := h.uint64("chunk_pos")
	if err != nil {
		return err
	}

	start, err := h.time("start_time")
	if err != nil {
		return err
	}

	end, err := h.time("end_time")
	if err != nil {
		return err
	}

	count, err := h.uint32("count")
	if err != nil {
		return err
	}

	if uint64(len(data)) < uint64(count)*8 {
		return fmt.Errorf("chunk info holds %d bytes for %d connections", len(data), count)
	}

	counts := make(map[uint32]uint32, count)

	for i := uint32(0); i < count; i++ {
		entry := data[i*8 : i*8+8]
		counts[binary.LittleEndian.Uint32(entry[:4])] += binary.LittleEndian.Uint32(entry[4:])
	}

	r.chunks = append(r.chunks, chunkInfo{pos: int64(pos), start: start, end: end, counts: counts})

	return nil
}

// Path returns the bag file path.
func (r *Reader) Path() string { return r.path }

// Connections returns the channel table in index order.
func (r *Reader) Connections() []bag.Connection {
	out := make([]bag.Connection, len(r.conns))
	copy(out, r.conns)

	return out
}

// Topics returns the unique topic names in index order.
func (r *Reader) Topics() []string {
	return bag.TopicsOf(r.conns)
}

// MessageCount returns the number of message records according to the index.
func (r *Reader) MessageCount() uint64 {
	var n uint64
	for _, c := range r.conns {
		n += c.MessageCount
	}

	return n
}

// TimeRange returns the earliest and latest message timestamps.
func (r *Reader) TimeRange() (start, end int64) {
	if len(r.chunks) == 0 {
		return 0, 0
	}

	start = math.MaxInt64

	for _, ci := range r.chunks {
		start = min(start, ci.start)
		end = max(end, ci.end)
	}

	return start, end
}

// Messages streams every message record in file order.
func (r *Reader) Messages(ctx context.Context) (bag.MessageIterator, error) {
	if r.closed {
		return nil, bag.ErrClosed
	}

	return &messageIterator{ctx: ctx, r: r}, nil
}

// Close releases the file handle.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true

	return r.f.Close()
}

type messageIterator struct {
	ctx   context.Context
	r     *Reader
	next  int
	chunk *bufio.Reader
	msg   bag.Message
	err   error
	done  bool
}

func (it *messageIterator) Next() bool {
	if it.done {
		return false
	}

	for {
		if err := it.ctx.Err(); err != nil {
			return it.fail(err)
		}

		if it.chunk == nil {
			if it.next >= len(it.r.chunks) {
				it.done = true
				return false
			}

			chunk, err := it.r.openChunk(it.r.chunks[it.next].pos)
			if err != nil {
				return it.fail(err)
			}

			it.chunk = chunk
			it.next++
		}

		h, err := readRecordHeader(it.chunk)
		if errors.Is(err, io.EOF) {
			it.chunk = nil
			continue
		}

		if err != nil {
			return it.fail(fmt.Errorf("reading chunk %d of %s: %w", it.next-1, it.r.path, err))
		}

		op, err := h.op()
		if err != nil {
			return it.fail(err)
		}

		// Connection records repeated inside chunks are already known from
		// the index section.
		if op != opMsgData {
			if err := skipData(it.chunk); err != nil {
				return it.fail(fmt.Errorf("reading chunk %d of %s: %w", it.next-1, it.r.path, err))
			}

			continue
		}

		data, err := readPart(it.chunk)
		if err != nil {
			return it.fail(fmt.Errorf("reading chunk %d of %s: %w", it.next-1, it.r.path, unexpectedEOF(err)))
		}

		conn, err := h.uint32("conn")
		if err != nil {
			return it.fail(err)
		}

		ts, err := h.time("time")
		if err != nil {
			return it.fail(err)
		}

		it.msg = bag.Message{ConnID: int(conn), Timestamp: ts, Data: data}

		return true
	}
}

func (it *messageIterator) fail(err error) bool {
	it.err = err
	it.done = true
	it.chunk = nil

	return false
}

func (it *messageIterator) Message() bag.Message { return it.msg }

func (it *messageIterator) Err() error { return it.err }

func (it *messageIterator) Close() error {
	it.done = true
	it.chunk = nil

	return nil
}

// openChunk positions a decompressing reader on the records of the chunk at pos.
func (r *Reader) openChunk(pos int64) (*bufio.Reader, error) {
	if r.closed {
		return nil, bag.ErrClosed
	}

	br := bufio.NewReader(io.NewSectionReader(r.f, pos, r.size-pos))

	h, err := readRecordHeader(br)
	if err != nil {
		return nil, fmt.Errorf("reading chunk header at %d: %w", pos, unexpectedEOF(err))
	}

	if op, opErr := h.op(); opErr != nil || op != opChunk {
		return nil, fmt.Errorf("record at %d is not a chunk", pos)
	}

	compression, err := h.string("compression")
	if err != nil {
		return nil, err
	}

	size, err := h.uint32("size")
	if err != nil {
		return nil, err
	}

	dataLen, err := readLen(br)
	if err != nil {
		return nil, unexpectedEOF(err)
	}

	dec, err := newChunkReader(compression, io.LimitReader(br, int64(dataLen)))
	if err != nil {
		return nil, &bag.FormatError{Path: r.path, Reason: err.Error()}
	}

	return bufio.NewReader(io.LimitReader(dec, int64(size))), nil
}

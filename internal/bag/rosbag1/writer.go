package rosbag1

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/hupe1980/bagfilter/internal/bag"
)

const (
	// DefaultChunkSize matches the threshold used by the ROS1 recorder.
	DefaultChunkSize = 768 * 1024

	magic           = magicPrefix + "2.0\n"
	bagHeaderLength = 4096
)

type indexEntry struct {
	ts     int64
	offset uint32
}

type chunkInfoRecord struct {
	pos    uint64
	start  int64
	end    int64
	counts map[int]uint32
}

// Writer writes a single-file bag. Memory use is bounded by one chunk.
type Writer struct {
	path        string
	f           *os.File
	w           *bufio.Writer
	pos         int64
	compression string
	chunkSize   int

	conns []bag.Connection

	chunk      bytes.Buffer
	chunkConns map[int]bool
	chunkIndex map[int][]indexEntry
	chunkStart int64
	chunkEnd   int64

	// chunkMessages counts records in the open chunk.
	chunkMessages int
	infos         []chunkInfoRecord

	closed bool
}

// Create creates a new bag file at path. The file must not exist.
func Create(path string, opts bag.WriteOptions) (*Writer, error) {
	compression, ok := writableCompression(opts.Compression)
	if !ok {
		return nil, &bag.FormatError{Path: path, Reason: fmt.Sprintf("cannot write %q compressed chunks (supported: none, lz4)", opts.Compression)}
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // user-provided bag path
	if err != nil {
		return nil, fmt.Errorf("creating bag %s: %w", path, err)
	}

	w := &Writer{
		path:        path,
		f:           f,
		w:           bufio.NewWriter(f),
		compression: compression,
		chunkSize:   chunkSize,
	}
	w.resetChunk()

	if err := w.writeRaw([]byte(magic)); err != nil {
		_ = f.Close()
		return nil, err
	}

	// Placeholder, rewritten with the real index position on Close.
	if err := w.writeRaw(bagHeaderRecord(0, 0, 0)); err != nil {
		_ = f.Close()
		return nil, err
	}

	return w, nil
}

// AddConnection registers a connection and returns its identifier.
func (w *Writer) AddConnection(c bag.Connection) (int, error) {
	if w.closed {
		return 0, bag.ErrClosed
	}

	if c.Serialization != "" && c.Serialization != bag.SerializationROS1 {
		return 0, &bag.FormatError{
			Path:   w.path,
			Reason: fmt.Sprintf("topic %s carries %q payloads; legacy bags hold ros1 payloads only", c.Topic, c.Serialization),
		}
	}

	c.ID = len(w.conns)
	c.Serialization = bag.SerializationROS1
	c.MessageCount = 0
	w.conns = append(w.conns, c)

	return c.ID, nil
}

// Write appends a message record to the current chunk.
func (w *Writer) Write(connID int, timestamp int64, data []byte) error {
	if w.closed {
		return bag.ErrClosed
	}

	if connID < 0 || connID >= len(w.conns) {
		return fmt.Errorf("connection %d: %w", connID, bag.ErrUnknownConnection)
	}

	t, err := encodeTime(timestamp)
	if err != nil {
		return err
	}

	if !w.chunkConns[connID] {
		appendConnectionRecord(&w.chunk, w.conns[connID])
		w.chunkConns[connID] = true
	}

	offset := uint32(w.chunk.Len())
	appendRecord(&w.chunk, []field{
		opField(opMsgData),
		{name: "conn", value: u32(uint32(connID))},
		{name: "time", value: t},
	}, data)

	w.chunkIndex[connID] = append(w.chunkIndex[connID], indexEntry{ts: timestamp, offset: offset})

	if w.chunkMessages == 0 || timestamp < w.chunkStart {
		w.chunkStart = timestamp
	}

	if w.chunkMessages == 0 || timestamp > w.chunkEnd {
		w.chunkEnd = timestamp
	}

	w.chunkMessages++

	if w.chunk.Len() >= w.chunkSize {
		return w.flushChunk()
	}

	return nil
}

// Close flushes the last chunk, writes the index section and patches the
// bag header. The file handle is released even when writing fails.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	w.closed = true

	err := w.finish()
	if cerr := w.f.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("closing bag %s: %w", w.path, cerr))
	}

	return err
}

func (w *Writer) finish() error {
	if err := w.flushChunk(); err != nil {
		return err
	}

	indexPos := w.pos

	var index bytes.Buffer

	for _, c := range w.conns {
		appendConnectionRecord(&index, c)
	}

	for _, ci := range w.infos {
		appendChunkInfoRecord(&index, ci)
	}

	if err := w.writeRaw(index.Bytes()); err != nil {
		return err
	}

	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flushing bag %s: %w", w.path, err)
	}

	hdr := bagHeaderRecord(uint64(indexPos), uint32(len(w.conns)), uint32(len(w.infos)))
	if _, err := w.f.WriteAt(hdr, int64(len(magic))); err != nil {
		return fmt.Errorf("writing bag header of %s: %w", w.path, err)
	}

	return nil
}

func (w *Writer) flushChunk() error {
	if w.chunk.Len() == 0 {
		return nil
	}

	payload, err := compressChunk(w.compression, w.chunk.Bytes())
	if err != nil {
		return err
	}

	info := chunkInfoRecord{
		pos:    uint64(w.pos),
		start:  w.chunkStart,
		end:    w.chunkEnd,
		counts: make(map[int]uint32, len(w.chunkIndex)),
	}

	var rec bytes.Buffer

	appendRecord(&rec, []field{
		opField(opChunk),
		{name: "compression", value: []byte(w.compression)},
		{name: "size", value: u32(uint32(w.chunk.Len()))},
	}, payload)

	for _, id := range sortedKeys(w.chunkIndex) {
		entries := w.chunkIndex[id]
		info.counts[id] = uint32(len(entries))

		data := make([]byte, 0, len(entries)*12)
		for _, e := range entries {
			t, _ := encodeTime(e.ts)
			data = append(data, t...)
			data = append(data, u32(e.offset)...)
		}

		appendRecord(&rec, []field{
			opField(opIndexData),
			{name: "ver", value: u32(indexVersion)},
			{name: "conn", value: u32(uint32(id))},
			{name: "count", value: u32(uint32(len(entries)))},
		}, data)
	}

	if err := w.writeRaw(rec.Bytes()); err != nil {
		return err
	}

	w.infos = append(w.infos, info)
	w.resetChunk()

	return nil
}

func (w *Writer) resetChunk() {
	w.chunk.Reset()
	w.chunkConns = make(map[int]bool)
	w.chunkIndex = make(map[int][]indexEntry)
	w.chunkStart = 0
	w.chunkEnd = 0
	w.chunkMessages = 0
}

func (w *Writer) writeRaw(b []byte) error {
	n, err := w.w.Write(b)
	w.pos += int64(n)

	if err != nil {
		return fmt.Errorf("writing bag %s: %w", w.path, err)
	}

	return nil
}

func appendConnectionRecord(buf *bytes.Buffer, c bag.Connection) {
	fields := []field{
		{name: "topic", value: []byte(c.Topic)},
		{name: "type", value: []byte(c.MsgType)},
		{name: "md5sum", value: []byte(c.MD5Sum)},
		{name: "message_definition", value: []byte(c.MessageDefinition)},
	}

	if c.CallerID != "" {
		fields = append(fields, field{name: "callerid", value: []byte(c.CallerID)})
	}

	if c.Latching {
		fields = append(fields, field{name: "latching", value: []byte("1")})
	}

	appendRecord(buf, []field{
		opField(opConnection),
		{name: "conn", value: u32(uint32(c.ID))},
		{name: "topic", value: []byte(c.Topic)},
	}, encodeHeader(fields))
}

func appendChunkInfoRecord(buf *bytes.Buffer, ci chunkInfoRecord) {
	ids := sortedKeys(ci.counts)
	data := make([]byte, 0, len(ids)*8)

	for _, id := range ids {
		data = append(data, u32(uint32(id))...)
		data = append(data, u32(ci.counts[id])...)
	}

	start, _ := encodeTime(ci.start)
	end, _ := encodeTime(ci.end)

	appendRecord(buf, []field{
		opField(opChunkInfo),
		{name: "ver", value: u32(chunkInfoVersion)},
		{name: "chunk_pos", value: u64(ci.pos)},
		{name: "start_time", value: start},
		{name: "end_time", value: end},
		{name: "count", value: u32(uint32(len(ids)))},
	}, data)
}

// bagHeaderRecord builds the fixed-size bag header, padded with spaces.
func bagHeaderRecord(indexPos uint64, connCount, chunkCount uint32) []byte {
	fields := []field{
		opField(opBagHeader),
		{name: "index_pos", value: u64(indexPos)},
		{name: "conn_count", value: u32(connCount)},
		{name: "chunk_count", value: u32(chunkCount)},
	}

	padding := bagHeaderLength - 8 - len(encodeHeader(fields))

	var buf bytes.Buffer

	appendRecord(&buf, fields, bytes.Repeat([]byte(" "), padding))

	return buf.Bytes()
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Ints(keys)

	return keys
}

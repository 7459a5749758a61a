package rosbag2

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/bagfilter/internal/bag"
)

// Reader reads a directory-shaped bag. Connection identifiers are assigned
// from the metadata topic list (1-based) and are stable across the storage
// files of one bag, whose own topic ids are mapped by topic name.
type Reader struct {
	dir    string
	meta   *Metadata
	files  []string
	conns  []bag.Connection
	byName map[string]int
	closed bool
}

// Open opens the bag directory at dir.
func Open(dir string) (*Reader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &bag.NotFoundError{Path: dir, Err: err}
	}

	if !info.IsDir() {
		return nil, &bag.NotFoundError{Path: dir, Err: errors.New("not a bag directory")}
	}

	meta, err := ReadMetadata(dir)
	if err != nil {
		return nil, err
	}

	files, err := meta.storageFiles(dir)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		dir:    dir,
		meta:   meta,
		files:  files,
		byName: make(map[string]int),
	}

	for i, t := range meta.Info.TopicsWithMessageCount {
		id := i + 1
		r.byName[t.Metadata.Name] = id
		r.conns = append(r.conns, bag.Connection{
			ID:                  id,
			Topic:               t.Metadata.Name,
			MsgType:             t.Metadata.Type,
			Serialization:       t.Metadata.SerializationFormat,
			OfferedQoSProfiles:  string(t.Metadata.OfferedQoSProfiles),
			TypeDescriptionHash: t.Metadata.TypeDescriptionHash,
			MessageCount:        t.MessageCount,
		})
	}

	return r, nil
}

// Metadata returns the parsed metadata.yaml.
func (r *Reader) Metadata() *Metadata { return r.meta }

// Connections returns the channel table in metadata order.
func (r *Reader) Connections() []bag.Connection {
	out := make([]bag.Connection, len(r.conns))
	copy(out, r.conns)

	return out
}

// Topics returns the topic names in metadata order.
func (r *Reader) Topics() []string {
	return bag.TopicsOf(r.conns)
}

// MessageCount returns the message count recorded in the metadata.
func (r *Reader) MessageCount() uint64 {
	return r.meta.Info.MessageCount
}

// TimeRange returns the recorded start time and start plus duration.
func (r *Reader) TimeRange() (start, end int64) {
	start = r.meta.Info.StartingTime.NanosecondsSinceEpoch
	return start, start + r.meta.Info.Duration.Nanoseconds
}

// Messages streams every message of every storage file, files in metadata
// order and rows in insertion order.
func (r *Reader) Messages(ctx context.Context) (bag.MessageIterator, error) {
	if r.closed {
		return nil, bag.ErrClosed
	}

	it := &messageIterator{ctx: ctx, r: r}

	if r.meta.compressionMode() == ModeMessage {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}

		it.dec = dec
	}

	return it, nil
}

// Close marks the reader closed. Storage files are held by iterators only.
func (r *Reader) Close() error {
	r.closed = true
	return nil
}

type messageIterator struct {
	ctx  context.Context
	r    *Reader
	next int
	dec  *zstd.Decoder

	file *storageFile
	msg  bag.Message
	err  error
	done bool
}

func (it *messageIterator) Next() bool {
	if it.done {
		return false
	}

	for {
		if err := it.ctx.Err(); err != nil {
			return it.fail(err)
		}

		if it.file == nil {
			if it.next >= len(it.r.files) {
				it.done = true
				return false
			}

			f, err := it.r.openStorage(it.ctx, it.r.files[it.next])
			if err != nil {
				return it.fail(err)
			}

			it.file = f
			it.next++
		}

		if !it.file.rows.Next() {
			err := it.file.rows.Err()
			cerr := it.file.close()
			it.file = nil

			if err = errors.Join(err, cerr); err != nil {
				return it.fail(fmt.Errorf("reading %s: %w", it.r.files[it.next-1], err))
			}

			continue
		}

		var (
			topicID int64
			ts      int64
			data    []byte
		)

		if err := it.file.rows.Scan(&topicID, &ts, &data); err != nil {
			return it.fail(fmt.Errorf("scanning message: %w", err))
		}

		connID, ok := it.file.topics[topicID]
		if !ok {
			return it.fail(fmt.Errorf("message references unknown topic id %d", topicID))
		}

		if it.dec != nil {
			raw, err := it.dec.DecodeAll(data, nil)
			if err != nil {
				return it.fail(fmt.Errorf("decompressing message: %w", err))
			}

			data = raw
		}

		it.msg = bag.Message{ConnID: connID, Timestamp: ts, Data: data}

		return true
	}
}

func (it *messageIterator) fail(err error) bool {
	it.err = err
	it.done = true

	if it.file != nil {
		_ = it.file.close()
		it.file = nil
	}

	return false
}

func (it *messageIterator) Message() bag.Message { return it.msg }

func (it *messageIterator) Err() error { return it.err }

func (it *messageIterator) Close() error {
	it.done = true

	var err error
	if it.file != nil {
		err = it.file.close()
		it.file = nil
	}

	if it.dec != nil {
		it.dec.Close()
		it.dec = nil
	}

	return err
}

// storageFile is one open sqlite3 storage file with its running query.
type storageFile struct {
	db     *sql.DB
	rows   *sql.Rows
	topics map[int64]int
	temp   string
}

func (s *storageFile) close() error {
	var err error

	if s.rows != nil {
		err = s.rows.Close()
	}

	err = errors.Join(err, s.db.Close())

	if s.temp != "" {
		err = errors.Join(err, os.Remove(s.temp))
	}

	return err
}

func (r *Reader) openStorage(ctx context.Context, rel string) (*storageFile, error) {
	path := filepath.Join(r.dir, rel)
	if _, err := os.Stat(path); err != nil {
		return nil, &bag.NotFoundError{Path: path, Err: err}
	}

	sf := &storageFile{topics: make(map[int64]int)}

	if r.meta.compressionMode() == ModeFile || strings.HasSuffix(rel, ".zstd") {
		tmp, err := decompressFile(path)
		if err != nil {
			return nil, err
		}

		sf.temp = tmp
		path = tmp
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = removeTemp(sf.temp)
		return nil, fmt.Errorf("open sqlite db %s: %w", rel, err)
	}

	db.SetMaxOpenConns(1)
	sf.db = db

	if err := sf.init(ctx, r.byName); err != nil {
		_ = sf.close()
		return nil, fmt.Errorf("open storage %s: %w", rel, err)
	}

	return sf, nil
}

func (s *storageFile) init(ctx context.Context, byName map[string]int) error {
	for _, pragma := range readPragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, selectTopics)
	if err != nil {
		return fmt.Errorf("query topics: %w", err)
	}

	for rows.Next() {
		var (
			id   int64
			name string
		)

		if err := rows.Scan(&id, &name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan topic: %w", err)
		}

		if connID, ok := byName[name]; ok {
			s.topics[id] = connID
		}
	}

	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return fmt.Errorf("query topics: %w", err)
	}

	s.rows, err = s.db.QueryContext(ctx, selectMessages)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}

	return nil
}

func removeTemp(path string) error {
	if path == "" {
		return nil
	}

	return os.Remove(path)
}

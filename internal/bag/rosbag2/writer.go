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

	"github.com/hupe1980/bagfilter/internal/bag"
)

// commitEvery bounds the size of one write transaction.
const commitEvery = 1000

// Writer writes a directory-shaped bag with a single sqlite3 storage file.
type Writer struct {
	dir     string
	dbName  string
	db      *sql.DB
	tx      *sql.Tx
	insert  *sql.Stmt
	pending int

	compression string
	mode        string
	enc         *zstd.Encoder

	conns  []bag.Connection
	byName map[string]int
	counts []uint64

	start, end int64
	total      uint64

	closed bool
}

// Create creates a new bag directory at dir. The directory must not exist;
// its parent is created when missing.
func Create(dir string, opts bag.WriteOptions) (*Writer, error) {
	compression, mode, err := writableCompression(opts)
	if err != nil {
		return nil, &bag.FormatError{Path: dir, Reason: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil { //nolint:gosec // output directories are world-readable
		return nil, fmt.Errorf("creating parent of %s: %w", dir, err)
	}

	if err := os.Mkdir(dir, 0o755); err != nil { //nolint:gosec // output directories are world-readable
		return nil, fmt.Errorf("creating bag directory %s: %w", dir, err)
	}

	w := &Writer{
		dir:         dir,
		dbName:      filepath.Base(dir) + "_0.db3",
		compression: compression,
		mode:        mode,
		byName:      make(map[string]int),
	}

	if mode == ModeMessage {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			_ = os.Remove(dir)
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}

		w.enc = enc
	}

	if err := w.open(); err != nil {
		_ = w.closeDB()
		_ = os.RemoveAll(dir)

		return nil, err
	}

	return w, nil
}

func (w *Writer) open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(w.dir, w.dbName))
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(1)
	w.db = db

	for _, pragma := range writePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return w.begin()
}

func (w *Writer) begin() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(insertMessage)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}

	w.tx = tx
	w.insert = stmt
	w.pending = 0

	return nil
}

func (w *Writer) commit() error {
	if w.tx == nil {
		return nil
	}

	_ = w.insert.Close()
	err := w.tx.Commit()
	w.tx = nil
	w.insert = nil

	if err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}

	return nil
}

// AddConnection registers a topic. Connections sharing a topic name map to
// the same topic row, so a legacy bag with several publishers per topic
// collapses into one channel.
func (w *Writer) AddConnection(c bag.Connection) (int, error) {
	if w.closed {
		return 0, bag.ErrClosed
	}

	if id, ok := w.byName[c.Topic]; ok {
		return id, nil
	}

	if c.Serialization == "" {
		c.Serialization = bag.SerializationCDR
	}

	c.ID = len(w.conns) + 1
	c.MessageCount = 0

	if _, err := w.tx.Exec(insertTopic, c.ID, c.Topic, c.MsgType, c.Serialization, c.OfferedQoSProfiles); err != nil {
		return 0, fmt.Errorf("insert topic %s: %w", c.Topic, err)
	}

	w.conns = append(w.conns, c)
	w.counts = append(w.counts, 0)
	w.byName[c.Topic] = c.ID

	return c.ID, nil
}

// Write appends a message row.
func (w *Writer) Write(connID int, timestamp int64, data []byte) error {
	if w.closed {
		return bag.ErrClosed
	}

	if connID < 1 || connID > len(w.conns) {
		return fmt.Errorf("connection %d: %w", connID, bag.ErrUnknownConnection)
	}

	if w.enc != nil {
		data = w.enc.EncodeAll(data, nil)
	}

	if _, err := w.insert.Exec(connID, timestamp, data); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if w.total == 0 || timestamp < w.start {
		w.start = timestamp
	}

	if w.total == 0 || timestamp > w.end {
		w.end = timestamp
	}

	w.total++
	w.counts[connID-1]++
	w.pending++

	if w.pending >= commitEvery {
		if err := w.commit(); err != nil {
			return err
		}

		return w.begin()
	}

	return nil
}

// Close commits pending rows, indexes the storage file, applies file
// compression and writes metadata.yaml.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	w.closed = true

	err := w.commit()
	if err == nil {
		if _, xerr := w.db.Exec(createTimestampIndex); xerr != nil {
			err = fmt.Errorf("create timestamp index: %w", xerr)
		}
	}

	if cerr := w.closeDB(); cerr != nil {
		err = errors.Join(err, cerr)
	}

	if err != nil {
		return err
	}

	name := w.dbName
	if w.mode == ModeFile {
		name += "." + CompressionZstd
		if err := compressFile(filepath.Join(w.dir, w.dbName), filepath.Join(w.dir, name)); err != nil {
			return fmt.Errorf("compressing storage file: %w", err)
		}
	}

	return writeMetadata(w.dir, w.metadata(name))
}

func (w *Writer) closeDB() error {
	var err error

	if w.tx != nil {
		_ = w.insert.Close()
		err = w.tx.Rollback()
		w.tx = nil
	}

	if w.enc != nil {
		err = errors.Join(err, w.enc.Close())
		w.enc = nil
	}

	if w.db != nil {
		err = errors.Join(err, w.db.Close())
		w.db = nil
	}

	return err
}

func (w *Writer) metadata(file string) *Metadata {
	version := writeVersion

	topics := make([]TopicMessageCount, 0, len(w.conns))
	for i, c := range w.conns {
		if c.TypeDescriptionHash != "" {
			version = writeHashVersion
		}

		topics = append(topics, TopicMessageCount{
			Metadata: TopicMetadata{
				Name:                c.Topic,
				Type:                c.MsgType,
				SerializationFormat: c.Serialization,
				OfferedQoSProfiles:  QoSProfiles(c.OfferedQoSProfiles),
				TypeDescriptionHash: c.TypeDescriptionHash,
			},
			MessageCount: w.counts[i],
		})
	}

	span := Duration{Nanoseconds: w.end - w.start}
	start := StartingTime{NanosecondsSinceEpoch: w.start}

	return &Metadata{Info: BagInfo{
		Version:                version,
		StorageIdentifier:      storageSQLite3,
		Duration:               span,
		StartingTime:           start,
		MessageCount:           w.total,
		TopicsWithMessageCount: topics,
		CompressionFormat:      w.compression,
		CompressionMode:        strings.ToUpper(w.mode),
		RelativeFilePaths:      []string{file},
		Files: []FileInfo{{
			Path:         file,
			StartingTime: start,
			Duration:     span,
			MessageCount: w.total,
		}},
	}}
}

// writableCompression normalizes the requested compression for the writer.
func writableCompression(opts bag.WriteOptions) (format, mode string, err error) {
	switch strings.ToLower(opts.Compression) {
	case "", "none":
		return "", "", nil
	case CompressionZstd:
	default:
		return "", "", fmt.Errorf("cannot write %q compression (supported: none, zstd)", opts.Compression)
	}

	switch strings.ToLower(opts.CompressionMode) {
	case "", ModeFile:
		return CompressionZstd, ModeFile, nil
	case ModeMessage:
		return CompressionZstd, ModeMessage, nil
	default:
		return "", "", fmt.Errorf("unknown compression mode %q (supported: file, message)", opts.CompressionMode)
	}
}

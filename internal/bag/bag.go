// Package bag defines the container-independent model of a recorded message
// log: its channel table, its message records, and the reader / writer
// capabilities every container family implements.
//
// Concrete families live in the rosbag1 (single-file) and rosbag2
// (directory) subpackages. Callers pick a family with [Detect] and never
// mix identifiers between two bag instances.
package bag

import (
	"context"
	"errors"
)

// Serialization formats carried by connections.
const (
	SerializationROS1 = "ros1"
	SerializationCDR  = "cdr"
)

var (
	// ErrUnknownConnection is returned by a Writer when a message references
	// an identifier that was never returned by AddConnection.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrClosed is returned when a Reader or Writer is used after Close.
	ErrClosed = errors.New("bag is closed")
)

// Connection is one entry of a bag's channel table. A topic may be backed by
// several connections (one per publisher in legacy bags).
type Connection struct {
	// ID is scoped to the bag instance that produced it.
	ID int
	// Topic is the channel name, e.g. "/imu/data".
	Topic string
	// MsgType is the message type identifier, e.g. "sensor_msgs/Imu".
	MsgType string
	// Serialization is the payload encoding ("ros1", "cdr").
	Serialization string

	// Legacy-only metadata.
	MD5Sum            string
	MessageDefinition string
	CallerID          string
	Latching          bool

	// Modern-only metadata.
	OfferedQoSProfiles  string
	TypeDescriptionHash string

	// MessageCount is informational and ignored by writers.
	MessageCount uint64
}

// Message is a single raw record. Data is never decoded.
type Message struct {
	ConnID int
	// Timestamp in nanoseconds since the Unix epoch.
	Timestamp int64
	Data      []byte
}

// MessageIterator walks message records in storage order, one at a time.
// It follows the database/sql Rows convention: call Next until it returns
// false, then check Err. Close must always be called.
type MessageIterator interface {
	Next() bool
	Message() Message
	Err() error
	Close() error
}

// Reader is an open bag.
type Reader interface {
	// Connections returns the channel table in declaration order.
	Connections() []Connection
	// Topics returns the unique topic names in declaration order.
	Topics() []string
	// MessageCount returns the total number of message records.
	MessageCount() uint64
	// TimeRange returns the earliest and latest timestamps (ns).
	TimeRange() (start, end int64)
	// Messages returns an iterator over all message records in storage order.
	Messages(ctx context.Context) (MessageIterator, error)
	Close() error
}

// Writer is a bag opened for writing.
type Writer interface {
	// AddConnection registers a channel and returns the writer's own
	// identifier for it. The ID field of c is ignored.
	AddConnection(c Connection) (int, error)
	// Write appends a raw record to the connection with the given identifier.
	Write(connID int, timestamp int64, data []byte) error
	// Close flushes all pending data and writes the index.
	Close() error
}

// WriteOptions configures a Writer.
type WriteOptions struct {
	// Compression is family-specific: "none" or "lz4" for legacy bags,
	// "none" or "zstd" for modern bags. Empty means "none".
	Compression string
	// CompressionMode selects "file" or "message" compression for modern bags.
	CompressionMode string
	// ChunkSize is the legacy chunk threshold in bytes. Zero uses the default.
	ChunkSize int
}

// Family is one container format family with its reader / writer pair.
type Family interface {
	Format() Format
	// Open opens an existing bag for reading.
	Open(path string) (Reader, error)
	// Create creates a new bag at path. The path must not exist.
	Create(path string, opts WriteOptions) (Writer, error)
}

// TopicsOf returns the unique topics of conns in first-seen order.
func TopicsOf(conns []Connection) []string {
	seen := make(map[string]bool, len(conns))
	topics := make([]string, 0, len(conns))

	for _, c := range conns {
		if seen[c.Topic] {
			continue
		}

		seen[c.Topic] = true
		topics = append(topics, c.Topic)
	}

	return topics
}

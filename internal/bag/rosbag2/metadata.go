package rosbag2

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/bagfilter/internal/bag"
)

// MetadataFile is the name of the bag description inside a bag directory.
const MetadataFile = "metadata.yaml"

const (
	storageSQLite3 = "sqlite3"

	// writeVersion is the metadata revision emitted by the writer. Revision 7
	// is used instead when a topic carries a type description hash.
	writeVersion     = 5
	writeHashVersion = 7
)

// supportedVersions gates the metadata revisions the reader understands.
var supportedVersions = mustConstraint(">= 4, <= 9")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}

	return cs
}

// Metadata is the document stored in metadata.yaml.
type Metadata struct {
	Info BagInfo `yaml:"rosbag2_bagfile_information"`
}

// BagInfo describes a bag directory.
type BagInfo struct {
	Version                int                 `yaml:"version"`
	StorageIdentifier      string              `yaml:"storage_identifier"`
	Duration               Duration            `yaml:"duration"`
	StartingTime           StartingTime        `yaml:"starting_time"`
	MessageCount           uint64              `yaml:"message_count"`
	TopicsWithMessageCount []TopicMessageCount `yaml:"topics_with_message_count"`
	CompressionFormat      string              `yaml:"compression_format"`
	CompressionMode        string              `yaml:"compression_mode"`
	RelativeFilePaths      []string            `yaml:"relative_file_paths"`
	Files                  []FileInfo          `yaml:"files,omitempty"`
}

// Duration is a span in nanoseconds.
type Duration struct {
	Nanoseconds int64 `yaml:"nanoseconds"`
}

// StartingTime is an absolute time in nanoseconds since the epoch.
type StartingTime struct {
	NanosecondsSinceEpoch int64 `yaml:"nanoseconds_since_epoch"`
}

// TopicMessageCount pairs a topic description with its message count.
type TopicMessageCount struct {
	Metadata     TopicMetadata `yaml:"topic_metadata"`
	MessageCount uint64        `yaml:"message_count"`
}

// TopicMetadata describes one topic.
type TopicMetadata struct {
	Name                string      `yaml:"name"`
	Type                string      `yaml:"type"`
	SerializationFormat string      `yaml:"serialization_format"`
	OfferedQoSProfiles  QoSProfiles `yaml:"offered_qos_profiles"`
	TypeDescriptionHash string      `yaml:"type_description_hash,omitempty"`
}

// FileInfo describes one storage file.
type FileInfo struct {
	Path         string       `yaml:"path"`
	StartingTime StartingTime `yaml:"starting_time"`
	Duration     Duration     `yaml:"duration"`
	MessageCount uint64       `yaml:"message_count"`
}

// QoSProfiles holds the offered QoS profiles as YAML text. Older revisions
// store a string; newer ones store a sequence, which is kept re-encoded.
type QoSProfiles string

// UnmarshalYAML accepts both the scalar and the sequence encoding.
func (q *QoSProfiles) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*q = QoSProfiles(node.Value)
		return nil
	}

	out, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("encoding offered_qos_profiles: %w", err)
	}

	*q = QoSProfiles(strings.TrimSuffix(string(out), "\n"))

	return nil
}

// ReadMetadata loads and validates metadata.yaml from a bag directory.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile)) //nolint:gosec // bag directory
	if err != nil {
		return nil, &bag.NotFoundError{Path: dir, Err: err}
	}

	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &bag.FormatError{Path: dir, Reason: fmt.Sprintf("parsing %s: %v", MetadataFile, err)}
	}

	if err := m.validate(dir); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Metadata) validate(dir string) error {
	v, err := semver.NewVersion(strconv.Itoa(m.Info.Version))
	if err != nil || !supportedVersions.Check(v) {
		return &bag.FormatError{Path: dir, Reason: fmt.Sprintf("metadata version %d not supported", m.Info.Version)}
	}

	if m.Info.StorageIdentifier != storageSQLite3 {
		return &bag.FormatError{Path: dir, Reason: fmt.Sprintf("storage %q not supported (expected %s)", m.Info.StorageIdentifier, storageSQLite3)}
	}

	switch m.Info.CompressionFormat {
	case "", CompressionZstd:
	default:
		return &bag.FormatError{Path: dir, Reason: fmt.Sprintf("compression format %q not supported", m.Info.CompressionFormat)}
	}

	if m.Info.CompressionFormat != "" {
		switch m.compressionMode() {
		case ModeFile, ModeMessage:
		default:
			return &bag.FormatError{Path: dir, Reason: fmt.Sprintf("compression mode %q not supported", m.Info.CompressionMode)}
		}
	}

	return nil
}

// compressionMode returns the normalized mode, or "" when uncompressed.
func (m *Metadata) compressionMode() string {
	if m.Info.CompressionFormat == "" {
		return ""
	}

	mode := strings.ToLower(m.Info.CompressionMode)
	if mode == "none" {
		return ""
	}

	return mode
}

// storageFiles returns the storage file paths relative to the bag directory.
// Bags written without relative_file_paths fall back to the *.db3 files.
func (m *Metadata) storageFiles(dir string) ([]string, error) {
	if len(m.Info.RelativeFilePaths) > 0 {
		return m.Info.RelativeFilePaths, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.db3*"))
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, &bag.NotFoundError{Path: dir, Err: errors.New("no storage files")}
	}

	files := make([]string, 0, len(matches))
	for _, p := range matches {
		files = append(files, filepath.Base(p))
	}

	return files, nil
}

func writeMetadata(dir string, m *Metadata) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", MetadataFile, err)
	}

	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0o644); err != nil { //nolint:gosec // bag metadata is world-readable
		return fmt.Errorf("writing %s: %w", MetadataFile, err)
	}

	return nil
}

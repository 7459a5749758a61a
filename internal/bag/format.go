package bag

import (
	"path/filepath"
	"strings"
)

// Format identifies a container family.
type Format int

const (
	// FormatUnknown indicates the path shape matched no family.
	FormatUnknown Format = iota
	// FormatLegacy is a single-file ROS1 bag ("*.bag").
	FormatLegacy
	// FormatModern is a directory-shaped ROS2 bag holding metadata.yaml.
	FormatModern
)

// LegacyExt is the file extension of single-file bags.
const LegacyExt = ".bag"

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "rosbag1"
	case FormatModern:
		return "rosbag2"
	default:
		return "unknown"
	}
}

// foreignExt lists suffixes of files that live inside or next to bags but
// are not bags themselves.
var foreignExt = map[string]bool{
	".db3":  true,
	".mcap": true,
	".yaml": true,
	".yml":  true,
	".zstd": true,
	".json": true,
	".txt":  true,
	".lock": true,
}

// Detect classifies a bag path by its shape only: ".bag" selects the legacy
// family and any other path selects the modern family, so directory names
// with dots ("run_2024.05.01") stay valid. Storage and sidecar suffixes are
// rejected. It never touches the filesystem.
func Detect(path string) (Format, error) {
	clean := strings.TrimRight(path, `/\`)
	if clean == "" {
		return FormatUnknown, &FormatError{Path: path, Reason: "empty path"}
	}

	ext := filepath.Ext(filepath.Base(clean))

	switch {
	case ext == LegacyExt:
		return FormatLegacy, nil
	case foreignExt[strings.ToLower(ext)]:
		return FormatUnknown, &FormatError{
			Path:   path,
			Reason: ext + " is not a bag (expected .bag file or bag directory)",
		}
	default:
		return FormatModern, nil
	}
}

package rosbag1

import "github.com/hupe1980/bagfilter/internal/bag"

// Family is the single-file legacy container family.
type Family struct{}

// Format returns bag.FormatLegacy.
func (Family) Format() bag.Format { return bag.FormatLegacy }

// Open opens a legacy bag for reading.
func (Family) Open(path string) (bag.Reader, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Create creates a legacy bag for writing.
func (Family) Create(path string, opts bag.WriteOptions) (bag.Writer, error) {
	w, err := Create(path, opts)
	if err != nil {
		return nil, err
	}

	return w, nil
}

package rosbag2

import "github.com/hupe1980/bagfilter/internal/bag"

// Family is the directory-shaped modern container family.
type Family struct{}

// Format returns bag.FormatModern.
func (Family) Format() bag.Format { return bag.FormatModern }

// Open opens a bag directory for reading.
func (Family) Open(path string) (bag.Reader, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Create creates a bag directory for writing.
func (Family) Create(path string, opts bag.WriteOptions) (bag.Writer, error) {
	w, err := Create(path, opts)
	if err != nil {
		return nil, err
	}

	return w, nil
}

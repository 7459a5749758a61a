// Package bagio maps container formats to the families that read and write
// them, so callers never switch on the format themselves.
package bagio

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/bagfilter/internal/bag"
	"github.com/hupe1980/bagfilter/internal/bag/rosbag1"
	"github.com/hupe1980/bagfilter/internal/bag/rosbag2"
)

// Registry maps bag formats to Family implementations.
type Registry struct {
	mu       sync.RWMutex
	families map[bag.Format]bag.Family
}

// NewRegistry creates an empty family registry.
func NewRegistry() *Registry {
	return &Registry{
		families: make(map[bag.Format]bag.Family),
	}
}

// Register adds a family under its own format.
// Existing entries for the same format are overwritten.
func (r *Registry) Register(f bag.Family) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.families[f.Format()] = f
}

// Family returns the family for the given format, or an error if not found.
func (r *Registry) Family(format bag.Format) (bag.Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.families[format]
	if !ok {
		return nil, fmt.Errorf("no bag family registered for %s (available: %s)", format, r.available())
	}

	return f, nil
}

// ForPath detects the format of path and returns its family.
func (r *Registry) ForPath(path string) (bag.Family, error) {
	format, err := bag.Detect(path)
	if err != nil {
		return nil, err
	}

	return r.Family(format)
}

// Formats returns the registered formats sorted by name.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.names()
}

func (r *Registry) available() string {
	names := r.names()
	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, ", ")
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.families))
	for f := range r.families {
		names = append(names, f.String())
	}

	sort.Strings(names)

	return names
}

// DefaultRegistry returns a registry with the built-in families:
// rosbag1 and rosbag2.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(rosbag1.Family{})
	r.Register(rosbag2.Family{})

	return r
}

package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// RenderFunc writes a bag report to w.
type RenderFunc func(w io.Writer, info *BagInfo) error

// Registry maps format names to RenderFunc functions, enabling pluggable
// report formats for the info command.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]RenderFunc
}

// NewRegistry creates an empty renderer registry.
func NewRegistry() *Registry {
	return &Registry{
		renderers: make(map[string]RenderFunc),
	}
}

// Register adds a renderer under the given format name.
// Existing entries for the same name are overwritten.
func (r *Registry) Register(name string, fn RenderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.renderers[name] = fn
}

// Renderer returns the renderer for the given format, or an error if not found.
func (r *Registry) Renderer(name string) (RenderFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.renderers[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %s)", name, r.available())
	}

	return fn, nil
}

// Formats returns the sorted list of registered format names.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.names()
}

// AvailableFormats returns a comma-separated string of registered format names.
func (r *Registry) AvailableFormats() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.available()
}

func (r *Registry) available() string {
	names := r.names()
	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, ", ")
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.renderers))
	for name := range r.renderers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// DefaultRegistry returns a registry pre-populated with the built-in
// report formats: table, yaml, json.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("table", func(w io.Writer, info *BagInfo) error {
		_, err := io.WriteString(w, RenderTable(info))
		return err
	})

	r.Register("yaml", func(w io.Writer, info *BagInfo) error {
		data, err := SerializeYAML(info)
		if err != nil {
			return err
		}

		_, err = w.Write(data)

		return err
	})

	r.Register("json", func(w io.Writer, info *BagInfo) error {
		data, err := SerializeJSON(info, "  ")
		if err != nil {
			return err
		}

		_, err = w.Write(data)

		return err
	})

	return r
}

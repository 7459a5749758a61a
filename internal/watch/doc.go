// Package watch monitors a directory for completed bags and filters each
// one as it appears. Events are debounced per bag so a bag still being
// written is handled once, after it has been quiet for a while.
package watch

package bag

import "fmt"

// NotFoundError reports an input path that does not exist or cannot be
// opened as a bag.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bag %q not found: %v", e.Path, e.Err)
	}

	return fmt.Sprintf("bag %q not found", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// FormatError reports a path or file that matches no supported container
// family, or a feature of a family that is not supported.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported bag format for %q: %s", e.Path, e.Reason)
}

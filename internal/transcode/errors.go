package transcode

import "fmt"

// ConflictError reports an output path that resolves to the input bag, or
// one that contains it or lies inside it.
type ConflictError struct {
	Input  string
	Output string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("output %q overlaps the input bag %q", e.Output, e.Input)
}

// AlreadyExistsError reports an existing output when overwrite was not
// requested.
type AlreadyExistsError struct {
	Path string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("output %q already exists (use --force to overwrite)", e.Path)
}

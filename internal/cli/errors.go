package cli

import (
	"errors"

	"github.com/hupe1980/bagfilter/internal/bag"
	"github.com/hupe1980/bagfilter/internal/transcode"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitGeneric  = 1
	ExitUsage    = 2
	ExitNotFound = 3
	ExitConflict = 4
)

// exitCode classifies err into a process exit code.
func exitCode(err error) int {
	var (
		exitErr   *ExitError
		notFound  *bag.NotFoundError
		formatErr *bag.FormatError
		conflict  *transcode.ConflictError
		exists    *transcode.AlreadyExistsError
	)

	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.As(err, &notFound):
		return ExitNotFound
	case errors.As(err, &conflict), errors.As(err, &exists):
		return ExitConflict
	case errors.As(err, &formatErr):
		return ExitUsage
	default:
		return ExitGeneric
	}
}

// withExitCode wraps err in an ExitError carrying its classified code.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	return &ExitError{Code: exitCode(err), Err: err}
}

package transcode

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/bagfilter/internal/bag"
)

// DefaultSuffix is appended to the input name to derive the output name.
const DefaultSuffix = "_filt"

// DefaultOutputPath derives the output path from the input path: a legacy
// bag keeps its extension, so "run.bag" becomes "run_filt.bag", while a bag
// directory gets suffix appended to its whole name ("run.v2/" becomes
// "run.v2_filt").
func DefaultOutputPath(input, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}

	clean := strings.TrimRight(input, `/\`)
	if clean == "" {
		clean = input
	}

	if filepath.Ext(filepath.Base(clean)) != bag.LegacyExt {
		return clean + suffix
	}

	return strings.TrimSuffix(clean, bag.LegacyExt) + suffix + bag.LegacyExt
}

// sameLocation reports whether a and b name the same bag.
func sameLocation(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)

	if errA == nil && errB == nil && absA == absB {
		return true
	}

	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}

	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}

	return os.SameFile(infoA, infoB)
}

// overlaps reports whether input and output are the same bag or one of
// them lies inside the other. Replacing an ancestor of the input would
// delete it, and an output inside a bag directory would pollute it.
func overlaps(input, output string) bool {
	if sameLocation(input, output) {
		return true
	}

	in, out := canonical(input), canonical(output)

	return within(in, out) || within(out, in)
}

// canonical returns the cleaned absolute form of path with symlinks
// resolved. Missing trailing elements are resolved through the nearest
// existing ancestor.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}

	var missing []string

	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...)
		}

		if filepath.Dir(dir) == dir {
			return abs
		}

		missing = append([]string{filepath.Base(dir)}, missing...)
	}
}

// within reports whether path equals root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

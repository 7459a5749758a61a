package rosbag2

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Compression settings as stored in metadata.yaml.
const (
	CompressionZstd = "zstd"

	ModeFile    = "file"
	ModeMessage = "message"
)

// decompressFile inflates a zstd-compressed storage file into a temporary
// file and returns its path. The caller removes it.
func decompressFile(src string) (string, error) {
	in, err := os.Open(src) //nolint:gosec // storage file inside the bag directory
	if err != nil {
		return "", err
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("zstd reader for %s: %w", src, err)
	}
	defer dec.Close()

	out, err := os.CreateTemp("", "bagfilter-*.db3")
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, dec); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())

		return "", fmt.Errorf("decompressing %s: %w", src, err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}

	return out.Name(), nil
}

// compressFile writes a zstd-compressed copy of src to dst and removes src.
func compressFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // storage file inside the bag directory
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // storage file inside the bag directory
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("zstd writer for %s: %w", dst, err)
	}

	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		_ = out.Close()

		return fmt.Errorf("compressing %s: %w", src, err)
	}

	if err := enc.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("compressing %s: %w", src, err)
	}

	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(src)
}

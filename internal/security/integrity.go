package security

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// djb2 parameters
const (
	djb2Seed       uint32 = 5381
	djb2Multiplier uint32 = 33
)

// CodeHash computes the djb2 hash of r as a decimal string. Bytes are
// treated as signed, matching the hash the license server has on record
// for released builds.
func CodeHash(r io.Reader) (string, error) {
	h := djb2Seed
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		h = h*djb2Multiplier + uint32(int32(int8(b)))
	}
	return strconv.FormatUint(uint64(h), 10), nil
}

// FileCodeHash hashes the file at path
func FileCodeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := CodeHash(f)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return sum, nil
}

// ExecutableCodeHash hashes the running binary. Failures yield "" so a
// request can still be sent; the server treats the hash as advisory.
func ExecutableCodeHash() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	sum, err := FileCodeHash(exe)
	if err != nil {
		return ""
	}
	return sum
}

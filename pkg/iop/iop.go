// Package iop reads ISOBUS object pool files and derives the version
// label a virtual terminal stores them under.
package iop

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadFile returns the content of an object pool file. On error the data
// is empty, never nil.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return []byte{}, fmt.Errorf("read object pool: %w", err)
	}
	return data, nil
}

// HashToVersion hashes pool data into an upper case hex version label.
// Equal pools always give equal labels.
func HashToVersion(data []byte) string {
	seed := uint64(len(data))
	for _, b := range data {
		x := uint64(b)
		x = ((x >> 16) ^ x) * 0x45d9f3b
		x = ((x >> 16) ^ x) * 0x45d9f3b
		x = (x >> 16) ^ x
		seed ^= x + 0x9e3779b9 + (seed << 6) + (seed >> 2)
	}
	return strings.ToUpper(strconv.FormatUint(seed, 16))
}

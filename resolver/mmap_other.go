//go:build !unix

package resolver

import (
	"io"
	"os"
)

func mapFile(f *os.File, size int64) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(f, out); err != nil {
		return nil, err
	}
	return out, nil
}

//go:build unix

package resolver

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps f read-only and copies it out before unmapping. Factories
// keep the binary for every later instantiation, so the bytes must not
// track later writes to the file or fault when it is truncated.
func mapFile(f *os.File, size int64) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	if err := unix.Munmap(data); err != nil {
		return nil, err
	}
	return out, nil
}

package perfevent

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/marselester/kperf/internal/ring"
)

// defaultRingPages is the default data-page count behind the ring buffer
// mmap, spec.md section 4.4 "Mmap": "maps (1 + pages) x PAGE_SIZE bytes,
// pages a power-of-two default 128."
const defaultRingPages = 128

// mmapRing maps (1 + pages) pages over fd and wraps the result in a
// ring.Reader. It returns the raw mapped slice too, so Event.Close can
// unix.Munmap it directly without the ring package needing to know it owns
// an mmap (ring.Reader is also usable over a non-mmap'd buffer in tests).
func mmapRing(fd int, pages int) ([]byte, *ring.Reader, error) {
	pageSize := os.Getpagesize()
	length := (1 + pages) * pageSize

	mapped, err := unix.Mmap(fd, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("perfevent: mmap fd %d (%d bytes): %w", fd, length, err)
	}

	r, err := ring.NewReader(mapped, pageSize)
	if err != nil {
		unix.Munmap(mapped)
		return nil, nil, err
	}
	return mapped, r, nil
}

// Package ring implements the Ring-Buffer Reader (component C6 in
// spec.md): the consumer side of the kernel's perf ring-buffer protocol —
// header read-acquire, wrap handling, and record demultiplexing. It is
// grounded on the same mmap'd metadata-page protocol as
// yonch/memory-collector's pkg/perf/ring.go and joeycold/ebpf's
// perf/ring.go, adapted from a producer-side ring (the kernel is always the
// producer here) to a pure consumer.
package ring

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"unsafe"
)

// MmapPage mirrors the kernel's struct perf_event_mmap_page metadata page
// layout (spec.md section 3 "Ring-Buffer Map" / section 6). Only the fields
// this reader needs are named; the rest of the page is reserved padding.
type MmapPage struct {
	Version       uint32
	CompatVersion uint32
	Lock          uint32
	Index         uint32
	Offset        int64
	TimeEnabled   uint64
	TimeRunning   uint64
	Capabilities  uint64
	PmcWidth      uint16
	TimeShift     uint16
	TimeMult      uint32
	TimeOffset    uint64
	TimeZero      uint64
	Size          uint32
	_             [4]byte
	TimeCycles    uint64
	TimeMask      uint64
	_             [928]byte // reserved, pads the control region out to 1024 bytes
	DataHead      uint64
	DataTail      uint64
	DataOffset    uint64
	DataSize      uint64
	AuxHead       uint64
	AuxTail       uint64
	AuxOffset     uint64
	AuxSize       uint64
}

// Record types, matching perf_event_header.type (spec.md section 6).
const (
	RecordMmap      = 1
	RecordLost      = 2
	RecordComm      = 3
	RecordExit      = 4
	RecordSample    = 9
	RecordMmap2     = 10
	RecordFork      = 7
)

// This reader defines no ErrNoSpace-style producer error: the kernel is the
// only producer, and Drain only consumes.

// Reader consumes one perf ring buffer. It never blocks the kernel: Drain
// reads until data_tail == data_head and returns (spec.md section 4.6
// "Backpressure").
type Reader struct {
	meta     *MmapPage
	data     []byte
	mask     uint64
	prevTail uint64
	// Lost counts LOST records observed since the last call to
	// TakeLostCount, backing the recoverable warning flag spec.md section
	// 4.6 describes.
	lost uint64
}

// NewReader wraps mapped, the full mmap'd region including the metadata
// page (spec.md section 3 "Ring-Buffer Map": base_page + data_pages).
func NewReader(mapped []byte, pageSize int) (*Reader, error) {
	if len(mapped) < pageSize {
		return nil, errors.New("ring: mapped region smaller than one page")
	}
	meta := (*MmapPage)(unsafe.Pointer(&mapped[0]))

	dataOffset := meta.DataOffset
	if dataOffset == 0 {
		dataOffset = uint64(pageSize)
	}
	dataSize := meta.DataSize
	if dataSize == 0 {
		dataSize = uint64(len(mapped)) - dataOffset
	}
	if dataSize == 0 || dataSize&(dataSize-1) != 0 {
		return nil, errors.New("ring: data region size is not a power of two")
	}
	if dataOffset+dataSize > uint64(len(mapped)) {
		return nil, errors.New("ring: data region exceeds mapped length")
	}

	return &Reader{
		meta: meta,
		data: mapped[dataOffset : dataOffset+dataSize],
		mask: dataSize - 1,
	}, nil
}

// loadHeadAcquire loads data_head with acquire semantics. Go's
// sync/atomic.LoadUint64 compiles to ldar on arm64 and a plain aligned load
// on amd64, matching spec.md section 4.6's "load data_head with acquire
// semantics (ldar on ARM; plain aligned load on x86)" requirement without
// needing a cgo intrinsic.
func (r *Reader) loadHeadAcquire() uint64 {
	return atomic.LoadUint64(&r.meta.DataHead)
}

// storeTailRelease publishes data_tail with release semantics (stlr on
// ARM, plain store on x86), per spec.md section 4.6.
func (r *Reader) storeTailRelease(tail uint64) {
	atomic.StoreUint64(&r.meta.DataTail, tail)
}

// RawRecord is one demultiplexed ring entry before type-specific parsing:
// a header plus its contiguous payload (wrap-reassembled if needed), per
// spec.md section 4.6 "Wrap".
type RawRecord struct {
	Type uint32
	Misc uint16
	Data []byte
}

const headerSize = 8 // perf_event_header{type uint32; misc uint16; size uint16}

// Drain reads every record currently available in [data_tail, data_head)
// and returns them, then publishes the new tail. It never blocks.
func (r *Reader) Drain() ([]RawRecord, error) {
	head := r.loadHeadAcquire()
	tail := r.prevTail

	var records []RawRecord
	for tail < head {
		hdrBuf := r.readAt(tail, headerSize)
		typ := binary.LittleEndian.Uint32(hdrBuf[0:4])
		misc := binary.LittleEndian.Uint16(hdrBuf[4:6])
		size := binary.LittleEndian.Uint16(hdrBuf[6:8])
		if size < headerSize {
			// Corrupt/short header; stop draining this batch rather than
			// spin. The kernel never legitimately emits this.
			break
		}
		payload := r.readAt(tail+headerSize, int(size)-headerSize)
		if typ == RecordLost {
			r.noteLost()
		}

		records = append(records, RawRecord{Type: typ, Misc: misc, Data: payload})
		tail += uint64(size)
	}

	r.prevTail = tail
	r.storeTailRelease(tail)
	return records, nil
}

// readAt copies n bytes starting at ring-relative offset pos, transparently
// reassembling across the wrap boundary (spec.md section 4.6 "Wrap": "A
// record that straddles the wrap boundary is reassembled by copying the
// head fragment out").
func (r *Reader) readAt(pos uint64, n int) []byte {
	start := pos & r.mask
	out := make([]byte, n)
	if int(start)+n <= len(r.data) {
		copy(out, r.data[start:start+uint64(n)])
		return out
	}
	firstLen := len(r.data) - int(start)
	copy(out, r.data[start:])
	copy(out[firstLen:], r.data[:n-firstLen])
	return out
}

// TakeLostCount returns and clears the count of LOST records observed since
// the last call (spec.md section 4.6: "a LOST record must set a recoverable
// warning flag").
func (r *Reader) TakeLostCount() uint64 {
	n := r.lost
	r.lost = 0
	return n
}

func (r *Reader) noteLost() { r.lost++ }

package ring

import "encoding/binary"

// SampleTypeMask mirrors the subset of PERF_SAMPLE_* bits this reader
// understands, matching the attr derivation table in spec.md section 4.4.
// Field order inside a PERF_RECORD_SAMPLE payload follows the kernel's
// fixed PERF_SAMPLE_* bit order (lowest bit first), with PERF_SAMPLE_RAW
// and PERF_SAMPLE_BRANCH_STACK following CALLCHAIN — the same order
// unix.PerfEventAttr's sample_type documentation in golang.org/x/sys/unix
// gives.
type SampleTypeMask struct {
	IP           bool
	Tid          bool
	Time         bool
	ID           bool
	Cpu          bool
	Period       bool
	Callchain    bool
	Raw          bool
	BranchStack  bool
	Identifier   bool
}

// Sample is one demultiplexed PERF_RECORD_SAMPLE, spec.md section 3
// "Sample Record" before C5/C8 attach process-level metadata (evt name,
// comm, cpu topology).
type Sample struct {
	IP          uint64
	Pid         int32
	Tid         int32
	TimeNs      uint64
	ID          uint64
	Cpu         uint32
	Period      uint64
	IPChain     []uint64
	Raw         []byte
	BranchStack []BranchEntry
}

// BranchEntry is one PERF_SAMPLE_BRANCH_STACK entry (from/to/flags),
// unmarshaled into the "extension payload" spec.md section 4.6 names.
type BranchEntry struct {
	From  uint64
	To    uint64
	Flags uint64
}

// MmapEvent is a demultiplexed PERF_RECORD_MMAP/MMAP2, forwarded to C7's
// module registrar per spec.md section 4.6.
type MmapEvent struct {
	Pid      uint32
	Tid      uint32
	Addr     uint64
	Len      uint64
	PgOffset uint64
	Filename string
}

// ForkEvent is a demultiplexed PERF_RECORD_FORK.
type ForkEvent struct {
	Pid, Ppid uint32
	Tid, Ptid uint32
	TimeNs    uint64
}

// CommEvent is a demultiplexed PERF_RECORD_COMM.
type CommEvent struct {
	Pid, Tid uint32
	Comm     string
}

// Batch is the demultiplexed contents of one Drain call.
type Batch struct {
	Samples []Sample
	Mmaps   []MmapEvent
	Forks   []ForkEvent
	Comms   []CommEvent
	LostN   uint64
}

// Decode demultiplexes raw into a Batch, switching on header.type as
// spec.md section 4.6 "Demultiplexing" specifies.
func Decode(raw []RawRecord, mask SampleTypeMask) Batch {
	var b Batch
	for _, rec := range raw {
		switch rec.Type {
		case RecordSample:
			s, ok := decodeSample(rec.Data, mask)
			if ok {
				b.Samples = append(b.Samples, s)
			}
		case RecordMmap, RecordMmap2:
			if m, ok := decodeMmap(rec.Data, rec.Type); ok {
				b.Mmaps = append(b.Mmaps, m)
			}
		case RecordFork:
			if f, ok := decodeFork(rec.Data); ok {
				b.Forks = append(b.Forks, f)
			}
		case RecordComm:
			if c, ok := decodeComm(rec.Data); ok {
				b.Comms = append(b.Comms, c)
			}
		case RecordLost:
			b.LostN++
		default:
			// EXIT and anything else: ignored by the core (spec.md section 4.6).
		}
	}
	return b
}

type cursor struct {
	buf []byte
	off int
}

func (c *cursor) u64() (uint64, bool) {
	if c.off+8 > len(c.buf) {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, true
}

func (c *cursor) u32() (uint32, bool) {
	if c.off+4 > len(c.buf) {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, true
}

func decodeSample(data []byte, mask SampleTypeMask) (Sample, bool) {
	c := &cursor{buf: data}
	var s Sample

	if mask.Identifier {
		if _, ok := c.u64(); !ok {
			return s, false
		}
	}
	if mask.IP {
		v, ok := c.u64()
		if !ok {
			return s, false
		}
		s.IP = v
	}
	if mask.Tid {
		pid, ok1 := c.u32()
		tid, ok2 := c.u32()
		if !ok1 || !ok2 {
			return s, false
		}
		s.Pid, s.Tid = int32(pid), int32(tid)
	}
	if mask.Time {
		v, ok := c.u64()
		if !ok {
			return s, false
		}
		s.TimeNs = v
	}
	if mask.ID {
		v, ok := c.u64()
		if !ok {
			return s, false
		}
		s.ID = v
	}
	if mask.Cpu {
		cpu, _ := c.u32()
		_, ok := c.u32() // reserved
		if !ok {
			return s, false
		}
		s.Cpu = cpu
	}
	if mask.Period {
		v, ok := c.u64()
		if !ok {
			return s, false
		}
		s.Period = v
	}
	if mask.Callchain {
		nr, ok := c.u64()
		if !ok {
			return s, false
		}
		ips := make([]uint64, 0, nr)
		for i := uint64(0); i < nr; i++ {
			ip, ok := c.u64()
			if !ok {
				break
			}
			ips = append(ips, ip)
		}
		s.IPChain = ips
	}
	if mask.Raw {
		size, ok := c.u32()
		if !ok {
			return s, false
		}
		if c.off+int(size) > len(c.buf) {
			return s, false
		}
		s.Raw = append([]byte(nil), c.buf[c.off:c.off+int(size)]...)
		c.off += int(size)
	}
	if mask.BranchStack {
		bnr, ok := c.u64()
		if !ok {
			return s, false
		}
		entries := make([]BranchEntry, 0, bnr)
		for i := uint64(0); i < bnr; i++ {
			from, ok1 := c.u64()
			to, ok2 := c.u64()
			flags, ok3 := c.u64()
			if !ok1 || !ok2 || !ok3 {
				break
			}
			entries = append(entries, BranchEntry{From: from, To: to, Flags: flags})
		}
		s.BranchStack = entries
	}

	return s, true
}

func decodeMmap(data []byte, typ uint32) (MmapEvent, bool) {
	c := &cursor{buf: data}
	pid, ok1 := c.u32()
	tid, ok2 := c.u32()
	addr, ok3 := c.u64()
	length, ok4 := c.u64()
	pgoff, ok5 := c.u64()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return MmapEvent{}, false
	}
	if typ == RecordMmap2 {
		// MMAP2 carries maj/min/ino/ino_generation/prot/flags before the
		// filename; skip them (u32 maj + u32 min + u64 ino + u64
		// ino_generation + u32 prot + u32 flags = 32 bytes).
		if c.off+32 > len(c.buf) {
			return MmapEvent{}, false
		}
		c.off += 32
	}
	filename := cString(c.buf[c.off:])
	return MmapEvent{Pid: pid, Tid: tid, Addr: addr, Len: length, PgOffset: pgoff, Filename: filename}, true
}

func decodeFork(data []byte) (ForkEvent, bool) {
	c := &cursor{buf: data}
	pid, ok1 := c.u32()
	ppid, ok2 := c.u32()
	tid, ok3 := c.u32()
	ptid, ok4 := c.u32()
	timeNs, ok5 := c.u64()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return ForkEvent{}, false
	}
	return ForkEvent{Pid: pid, Ppid: ppid, Tid: tid, Ptid: ptid, TimeNs: timeNs}, true
}

func decodeComm(data []byte) (CommEvent, bool) {
	c := &cursor{buf: data}
	pid, ok1 := c.u32()
	tid, ok2 := c.u32()
	if !ok1 || !ok2 {
		return CommEvent{}, false
	}
	return CommEvent{Pid: pid, Tid: tid, Comm: cString(c.buf[c.off:])}, true
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

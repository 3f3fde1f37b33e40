// Package perfevent implements the Per-fd Event (component C4 in spec.md):
// one kernel file descriptor's full lifecycle — open, enable/disable/reset,
// counter read, mmap+drain ring buffer, close.
package perfevent

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/marselester/kperf/internal/ring"
	"github.com/marselester/kperf/internal/pmutypes"
)

// Event is one Per-fd Event, spec.md section 3 "Per-fd Event (C4 state)".
type Event struct {
	Fd            int
	CPU           int
	Tid           int
	Spec          pmutypes.EventSpec
	GroupLeaderFd int
	IsLeader      bool
	MemberCount   int // leader only: number of members sharing this group

	Ring *ring.Reader

	ringMapped  []byte // backing mmap region for Ring, unmapped in Close
	accumulator accumulator
}

type accumulator struct {
	value       uint64
	timeEnabled uint64
	timeRunning uint64
	valid       bool
}

// Open implements spec.md section 4.4 "Open": invoke perf_event_open with
// the attr fields derived from opts, translate kernel errors into the
// taxonomy of spec.md sections 6/4.4.
func Open(opts OpenOptions) (*Event, error) {
	attr := buildAttr(opts)

	target := opts.Tid
	flags := 0
	if opts.CgroupFd >= 0 {
		target = opts.CgroupFd
		flags = unix.PERF_FLAG_PID_CGROUP | unix.PERF_FLAG_FD_CLOEXEC
	} else {
		flags = unix.PERF_FLAG_FD_CLOEXEC
	}

	groupFd := opts.GroupLeaderFd
	if groupFd == 0 {
		groupFd = -1
	}

	fd, err := unix.PerfEventOpen(attr, target, opts.CPU, groupFd, flags)
	if err != nil {
		return nil, translateOpenError(err, opts)
	}

	ev := &Event{
		Fd:            fd,
		CPU:           opts.CPU,
		Tid:           opts.Tid,
		Spec:          opts.Spec,
		GroupLeaderFd: opts.GroupLeaderFd,
		IsLeader:      opts.GroupLeaderFd < 0,
	}

	if opts.Task != pmutypes.Counting {
		mapped, r, err := mmapRing(fd, defaultRingPages)
		if err != nil {
			unix.Close(fd)
			return nil, wrapMmapError(err)
		}
		ev.ringMapped = mapped
		ev.Ring = r
	}

	return ev, nil
}

// translateOpenError implements the table in spec.md section 4.4 "Error
// translation".
func translateOpenError(err error, opts OpenOptions) error {
	errno, ok := err.(unix.Errno)
	if !ok {
		return &pmutypes.Error{Code: pmutypes.CodeUnknown, Msg: "perf_event_open", Errno: err}
	}
	switch errno {
	case unix.EACCES, unix.EPERM:
		return &pmutypes.Error{Code: pmutypes.CodeNoPermission, Msg: "perf_event_open denied", Hint: "check /proc/sys/kernel/perf_event_paranoid", Errno: errno}
	case unix.ENOENT, unix.EINVAL:
		return &pmutypes.Error{Code: pmutypes.CodeInvalidEvent, Msg: fmt.Sprintf("perf_event_open rejected event %q", opts.Spec.Name), Errno: errno}
	case unix.EBUSY:
		return &pmutypes.Error{Code: pmutypes.CodeDeviceBusy, Msg: "pmu counter busy", Errno: errno}
	case unix.ENODEV:
		return &pmutypes.Error{Code: pmutypes.CodeKernelNotSupported, Msg: "pmu not supported on this cpu", Errno: errno}
	case unix.ESRCH:
		return &pmutypes.Error{Code: pmutypes.CodeNoProc, Msg: "target thread no longer exists", Errno: errno}
	default:
		return &pmutypes.Error{Code: pmutypes.CodeUnknown, Msg: "perf_event_open failed", Errno: errno}
	}
}

func wrapMmapError(err error) error {
	if errno, ok := err.(unix.Errno); ok && errno == unix.ENOMEM {
		return &pmutypes.Error{Code: pmutypes.CodeMmapFailed, Msg: "mmap of ring buffer failed", Hint: "check vm.max_map_count", Errno: errno}
	}
	return &pmutypes.Error{Code: pmutypes.CodeMmapFailed, Msg: "mmap of ring buffer failed", Errno: err}
}

// Enable implements spec.md section 4.4 "Enable / disable / reset": issued
// on the leader only; members are no-ops because they inherit the leader's
// enable state.
func (e *Event) Enable() error {
	if !e.IsLeader {
		return nil
	}
	e.accumulator = accumulator{}
	if err := unix.IoctlSetInt(e.Fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		return fmt.Errorf("perfevent: enable fd %d: %w", e.Fd, err)
	}
	return nil
}

func (e *Event) Disable() error {
	if !e.IsLeader {
		return nil
	}
	if err := unix.IoctlSetInt(e.Fd, unix.PERF_EVENT_IOC_DISABLE, 0); err != nil {
		return fmt.Errorf("perfevent: disable fd %d: %w", e.Fd, err)
	}
	return nil
}

func (e *Event) Reset() error {
	if !e.IsLeader {
		return nil
	}
	if err := unix.IoctlSetInt(e.Fd, unix.PERF_EVENT_IOC_RESET, 0); err != nil {
		return fmt.Errorf("perfevent: reset fd %d: %w", e.Fd, err)
	}
	e.accumulator = accumulator{}
	return nil
}

// Close implements spec.md section 4.4's implicit close contract: unmap the
// ring if present, close the fd. Safe to call twice.
func (e *Event) Close() error {
	var errs error
	if e.ringMapped != nil {
		if err := unix.Munmap(e.ringMapped); err != nil {
			errs = errors.Join(errs, fmt.Errorf("perfevent: munmap fd %d: %w", e.Fd, err))
		}
		e.ringMapped = nil
		e.Ring = nil
	}
	if e.Fd >= 0 {
		if err := unix.Close(e.Fd); err != nil {
			errs = errors.Join(errs, err)
		}
		e.Fd = -1
	}
	return errs
}

// CounterDelta is the result of one non-group counter Read (spec.md section
// 4.4 "Counter read (non-group)").
type CounterDelta struct {
	CountDelta uint64
	Percent    float64 // -1 sentinel when running/enabled time did not advance
	Count      uint64  // CountDelta * Percent, multiplex-corrected
}

type rawCounterSingle struct {
	Value       uint64
	TimeEnabled uint64
	TimeRunning uint64
	ID          uint64
}

// Read implements spec.md section 4.4 "Counter read (non-group)": one
// {value, time_enabled, time_running, id} struct, yielding a delta and a
// multiplex-correction factor; detects backward-moving accumulators as
// overflow.
func (e *Event) Read() (CounterDelta, error) {
	buf := make([]byte, 32)
	n, err := unix.Read(e.Fd, buf)
	if err != nil {
		return CounterDelta{}, fmt.Errorf("perfevent: read fd %d: %w", e.Fd, err)
	}
	if n < 24 {
		return CounterDelta{}, fmt.Errorf("perfevent: short read on fd %d: %d bytes", e.Fd, n)
	}
	cur := decodeCounterSingle(buf)

	// After Enable or Reset the accumulator is zeroed, so the first Read
	// measures from a zero baseline.
	prev := e.accumulator

	if cur.Value < prev.value || cur.TimeEnabled < prev.timeEnabled || cur.TimeRunning < prev.timeRunning {
		return CounterDelta{}, &pmutypes.Error{Code: pmutypes.CodeCountOverflow, Msg: fmt.Sprintf("counter moved backward on fd %d", e.Fd)}
	}

	delta := CounterDelta{CountDelta: cur.Value - prev.value}
	deltaEnabled := cur.TimeEnabled - prev.timeEnabled
	deltaRunning := cur.TimeRunning - prev.timeRunning
	if deltaRunning == 0 || deltaEnabled == 0 {
		delta.Percent = -1
		delta.Count = 0
	} else {
		delta.Percent = float64(deltaEnabled) / float64(deltaRunning)
		delta.Count = uint64(float64(delta.CountDelta) * delta.Percent)
	}

	e.accumulator = accumulator{value: cur.Value, timeEnabled: cur.TimeEnabled, timeRunning: cur.TimeRunning, valid: true}
	return delta, nil
}

func decodeCounterSingle(buf []byte) rawCounterSingle {
	return rawCounterSingle{
		Value:       leUint64(buf[0:8]),
		TimeEnabled: leUint64(buf[8:16]),
		TimeRunning: leUint64(buf[16:24]),
		ID:          leUint64(buf[24:32]),
	}
}

// GroupMember is one member's raw {value, id} pair from a group leader's
// read, spec.md section 4.4 "Counter read (group leader)".
type GroupMember struct {
	ID    uint64
	Value uint64
}

// GroupCounterRead is the decoded {nr, time_enabled, time_running,
// values[nr]} group read.
type GroupCounterRead struct {
	TimeEnabled uint64
	TimeRunning uint64
	Members     []GroupMember
}

// ReadGroup implements spec.md section 4.4 "Counter read (group leader)":
// reads {nr, time_enabled, time_running, values[nr]={value,id}} in one
// syscall. The read buffer is sized from memberCount (spec.md section 9
// "Open questions": "the spec ... requires the read buffer to be sized from
// the list's member count, not a magic constant"), not a hardcoded maximum.
func (e *Event) ReadGroup(memberCount int) (GroupCounterRead, error) {
	// 8 (nr) + 8 (time_enabled) + 8 (time_running) + memberCount*16 (value,id)
	size := 24 + memberCount*16
	buf := make([]byte, size)
	n, err := unix.Read(e.Fd, buf)
	if err != nil {
		return GroupCounterRead{}, fmt.Errorf("perfevent: group read fd %d: %w", e.Fd, err)
	}
	if n < 24 {
		return GroupCounterRead{}, fmt.Errorf("perfevent: short group read on fd %d: %d bytes", e.Fd, n)
	}
	nr := leUint64(buf[0:8])
	out := GroupCounterRead{
		TimeEnabled: leUint64(buf[8:16]),
		TimeRunning: leUint64(buf[16:24]),
	}
	off := 24
	for i := uint64(0); i < nr && off+16 <= n; i++ {
		out.Members = append(out.Members, GroupMember{
			Value: leUint64(buf[off : off+8]),
			ID:    leUint64(buf[off+8 : off+16]),
		})
		off += 16
	}
	return out, nil
}

func leUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

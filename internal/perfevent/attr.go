package perfevent

import (
	"golang.org/x/sys/unix"

	"github.com/marselester/kperf/internal/pmutypes"
)

// OpenOptions carries the inputs to Open (spec.md section 4.4 "Per-fd
// Event / Open").
type OpenOptions struct {
	CPU           int
	Tid           int
	Spec          pmutypes.EventSpec
	Task          pmutypes.TaskType
	GroupLeaderFd int // -1 for "none"/standalone or group leader
	IsGroupMember bool
	GroupSize     int // total members in this group including the leader; <=1 means standalone

	// Sampling-only fields. Call-stack capture is unconditional for Sampling
	// (spec.md section 4.4's attr table always sets PERF_SAMPLE_CALLCHAIN for
	// that mode); whether a session resolves the whole chain or only the
	// sampled IP is decided after decoding, by pmu.OpenConfig.CallStack.
	Period     uint64
	Freq       uint64
	UseFreq    bool
	BranchMask uint64
	HasBranch  bool

	ExcludeUser   bool
	ExcludeKernel bool

	CgroupFd int // >=0 selects cgroup mode
	IncludeNewFork bool
}

// A BPF-assisted per-cgroup counting variant would attach a filter program
// here with unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_SET_BPF, progFd) right
// after Open; that path is out of scope (spec.md section 1) and not wired.

// buildAttr derives the unix.PerfEventAttr fields from opts per the table
// in spec.md section 4.4.
func buildAttr(opts OpenOptions) *unix.PerfEventAttr {
	attr := &unix.PerfEventAttr{
		Type:   opts.Spec.Type,
		Config: opts.Spec.Config,
		Size:   unix.PERF_ATTR_SIZE_VER5,
	}
	if opts.Spec.Config1 != 0 {
		attr.Ext1 = opts.Spec.Config1
	}
	if opts.Spec.Config2 != 0 {
		attr.Ext2 = opts.Spec.Config2
	}

	attr.Bits |= unix.PerfBitInherit

	if opts.ExcludeUser {
		attr.Bits |= unix.PerfBitExcludeUser
	}
	if opts.ExcludeKernel {
		attr.Bits |= unix.PerfBitExcludeKernel
	}

	switch opts.Task {
	case pmutypes.Counting:
		attr.Read_format = unix.PERF_FORMAT_TOTAL_TIME_ENABLED | unix.PERF_FORMAT_TOTAL_TIME_RUNNING | unix.PERF_FORMAT_ID
		if !opts.IsGroupMember {
			attr.Bits |= unix.PerfBitDisabled
		}
		if opts.GroupSize > 1 {
			attr.Read_format |= unix.PERF_FORMAT_GROUP
		}

	case pmutypes.Sampling:
		attr.Bits |= unix.PerfBitDisabled
		attr.Sample_type = unix.PERF_SAMPLE_IP | unix.PERF_SAMPLE_TID | unix.PERF_SAMPLE_TIME |
			unix.PERF_SAMPLE_CALLCHAIN | unix.PERF_SAMPLE_ID | unix.PERF_SAMPLE_CPU |
			unix.PERF_SAMPLE_PERIOD | unix.PERF_SAMPLE_IDENTIFIER | unix.PERF_SAMPLE_RAW
		if opts.HasBranch {
			attr.Sample_type |= unix.PERF_SAMPLE_BRANCH_STACK
			attr.Branch_sample_type = opts.BranchMask
		}
		attr.Read_format = unix.PERF_FORMAT_ID
		if opts.UseFreq {
			attr.Bits |= unix.PerfBitFreq
			attr.Sample = opts.Freq
		} else {
			attr.Sample = opts.Period
		}

	case pmutypes.SpeSampling:
		attr.Bits |= unix.PerfBitDisabled
		attr.Read_format = unix.PERF_FORMAT_ID
		attr.Sample = opts.Period
	}

	if opts.IncludeNewFork {
		// Fork Observer dummy event: needs task/comm/exit records and
		// per-record pid/tid stamping (spec.md section 4.3).
		attr.Bits |= unix.PerfBitTask
		attr.Bits |= unix.PerfBitSampleIdAll
	}

	return attr
}

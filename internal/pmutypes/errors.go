package pmutypes

import "fmt"

// Code identifies a failure or warning condition in the taxonomy described
// in spec.md section 6. Most API calls return a plain error; Code lets
// callers do errors.Is-style comparisons against the stable taxonomy
// without depending on error string text. It lives here rather than in the
// public pmu package because internal/perfevent and internal/catalog need
// to construct and classify these errors too, and importing pmu from there
// would cycle back through pmu's own dependency on those packages.
type Code int

// The error taxonomy surfaced to callers, as named in spec.md section 6.
const (
	CodeSuccess Code = iota
	CodeNoMem
	CodeWrite
	CodeOpenFile
	CodeDwarfFormat
	CodeElfFormat
	CodePidInvalid
	CodeMapAddrNotFound
	CodeBuildIDTooLong
	CodeNoAvailPd
	CodeChipInvalid
	CodeInvalidCPUList
	CodeInvalidPidList
	CodeInvalidEvtList
	CodeInvalidPd
	CodeInvalidEvent
	CodeSpeUnavail
	CodeFailGetCPU
	CodeFailGetProc
	CodeNoPermission
	CodeDeviceBusy
	CodeDeviceInvalid
	CodeMmapFailed
	CodeResolveModule
	CodeKernelNotSupported
	CodeInvalidPid
	CodeInvalidTaskType
	CodeInvalidTime
	CodeNoProc
	CodeTooManyFd
	CodeRaiseFd
	CodeCountOverflow
	CodeInvalidGroupSpe
	CodeInvalidGroupAllUncore
	CodeInvalidGroupHasUncore // warning only
	CodeCtxIDLost             // warning only
	CodeInvalidBranchFilter
	CodeBranchRequiresSampling
	CodeInvalidSampleRate
	CodeOpenInvalidFile
	CodeSamplesLost // warning only
	CodeUnknown
)

var codeNames = map[Code]string{
	CodeSuccess:                "success",
	CodeNoMem:                  "nomem",
	CodeWrite:                  "write",
	CodeOpenFile:               "open-file",
	CodeDwarfFormat:            "dwarf-format",
	CodeElfFormat:              "elf-format",
	CodePidInvalid:             "pid-invalid",
	CodeMapAddrNotFound:        "map-addr-not-found",
	CodeBuildIDTooLong:         "buildid-too-long",
	CodeNoAvailPd:              "no-avail-pd",
	CodeChipInvalid:            "chip-invalid",
	CodeInvalidCPUList:         "invalid-cpulist",
	CodeInvalidPidList:         "invalid-pidlist",
	CodeInvalidEvtList:         "invalid-evtlist",
	CodeInvalidPd:              "invalid-pd",
	CodeInvalidEvent:           "invalid-event",
	CodeSpeUnavail:             "spe-unavail",
	CodeFailGetCPU:             "fail-get-cpu",
	CodeFailGetProc:            "fail-get-proc",
	CodeNoPermission:           "no-permission",
	CodeDeviceBusy:             "device-busy",
	CodeDeviceInvalid:          "device-invalid",
	CodeMmapFailed:             "mmap-failed",
	CodeResolveModule:          "resolve-module",
	CodeKernelNotSupported:     "kernel-not-supported",
	CodeInvalidPid:             "invalid-pid",
	CodeInvalidTaskType:        "invalid-task-type",
	CodeInvalidTime:            "invalid-time",
	CodeNoProc:                 "no-proc",
	CodeTooManyFd:              "too-many-fd",
	CodeRaiseFd:                "raise-fd",
	CodeCountOverflow:          "count-overflow",
	CodeInvalidGroupSpe:        "invalid-group-spe",
	CodeInvalidGroupAllUncore:  "invalid-group-all-uncore",
	CodeInvalidGroupHasUncore:  "invalid-group-has-uncore",
	CodeCtxIDLost:              "ctxid-lost",
	CodeInvalidBranchFilter:    "invalid-branch-filter",
	CodeBranchRequiresSampling: "branch-requires-sampling",
	CodeInvalidSampleRate:      "invalid-sample-rate",
	CodeOpenInvalidFile:        "open-invalid-file",
	CodeSamplesLost:            "samples-lost",
	CodeUnknown:                "unknown",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// Error is a taxonomy-classified failure. Hint, when non-empty, carries a
// remediation suggestion the way the no-permission/mmap-failed codes do in
// spec.md section 4.4 ("perf_event_paranoid", "vm.max_map_count").
type Error struct {
	Code  Code
	Msg   string
	Hint  string
	Errno error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Code, e.Msg, e.Hint)
	}
	if e.Errno != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Errno)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Errno }

// Is lets errors.Is(err, &pmutypes.Error{Code: pmutypes.CodeInvalidPd}) match
// regardless of Msg/Hint/Errno.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func newErrHint(code Code, msg, hint string) *Error {
	return &Error{Code: code, Msg: msg, Hint: hint}
}

func wrapErrno(code Code, msg string, errno error) *Error {
	return &Error{Code: code, Msg: msg, Errno: errno}
}

// Warning is a recoverable condition (spec.md section 7): it does not fail
// the call that produced it, but the caller may want to know it happened.
// The last Warning set on a Session replaces the previous one, matching the
// "last-writer-wins" process-global warning slot described in spec.md
// section 5, scoped per-Session instead of truly global (see DESIGN.md,
// "Global mutable state").
type Warning struct {
	Code Code
	Msg  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Msg)
}

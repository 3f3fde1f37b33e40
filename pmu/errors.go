package pmu

import "github.com/marselester/kperf/internal/pmutypes"

// Code, Error, and Warning are aliases of internal/pmutypes' definitions;
// see pmu/types.go's doc comment for why the shared vocabulary lives in a
// leaf package instead of here.
type (
	Code    = pmutypes.Code
	Error   = pmutypes.Error
	Warning = pmutypes.Warning
)

// The error taxonomy surfaced to callers, as named in spec.md section 6.
const (
	CodeSuccess                = pmutypes.CodeSuccess
	CodeNoMem                  = pmutypes.CodeNoMem
	CodeWrite                  = pmutypes.CodeWrite
	CodeOpenFile               = pmutypes.CodeOpenFile
	CodeDwarfFormat            = pmutypes.CodeDwarfFormat
	CodeElfFormat              = pmutypes.CodeElfFormat
	CodePidInvalid             = pmutypes.CodePidInvalid
	CodeMapAddrNotFound        = pmutypes.CodeMapAddrNotFound
	CodeBuildIDTooLong         = pmutypes.CodeBuildIDTooLong
	CodeNoAvailPd              = pmutypes.CodeNoAvailPd
	CodeChipInvalid            = pmutypes.CodeChipInvalid
	CodeInvalidCPUList         = pmutypes.CodeInvalidCPUList
	CodeInvalidPidList         = pmutypes.CodeInvalidPidList
	CodeInvalidEvtList         = pmutypes.CodeInvalidEvtList
	CodeInvalidPd              = pmutypes.CodeInvalidPd
	CodeInvalidEvent           = pmutypes.CodeInvalidEvent
	CodeSpeUnavail             = pmutypes.CodeSpeUnavail
	CodeFailGetCPU             = pmutypes.CodeFailGetCPU
	CodeFailGetProc            = pmutypes.CodeFailGetProc
	CodeNoPermission           = pmutypes.CodeNoPermission
	CodeDeviceBusy             = pmutypes.CodeDeviceBusy
	CodeDeviceInvalid          = pmutypes.CodeDeviceInvalid
	CodeMmapFailed             = pmutypes.CodeMmapFailed
	CodeResolveModule          = pmutypes.CodeResolveModule
	CodeKernelNotSupported     = pmutypes.CodeKernelNotSupported
	CodeInvalidPid             = pmutypes.CodeInvalidPid
	CodeInvalidTaskType        = pmutypes.CodeInvalidTaskType
	CodeInvalidTime            = pmutypes.CodeInvalidTime
	CodeNoProc                 = pmutypes.CodeNoProc
	CodeTooManyFd              = pmutypes.CodeTooManyFd
	CodeRaiseFd                = pmutypes.CodeRaiseFd
	CodeCountOverflow          = pmutypes.CodeCountOverflow
	CodeInvalidGroupSpe        = pmutypes.CodeInvalidGroupSpe
	CodeInvalidGroupAllUncore  = pmutypes.CodeInvalidGroupAllUncore
	CodeInvalidGroupHasUncore  = pmutypes.CodeInvalidGroupHasUncore
	CodeCtxIDLost              = pmutypes.CodeCtxIDLost
	CodeInvalidBranchFilter    = pmutypes.CodeInvalidBranchFilter
	CodeBranchRequiresSampling = pmutypes.CodeBranchRequiresSampling
	CodeInvalidSampleRate      = pmutypes.CodeInvalidSampleRate
	CodeOpenInvalidFile        = pmutypes.CodeOpenInvalidFile
	CodeSamplesLost            = pmutypes.CodeSamplesLost
	CodeUnknown                = pmutypes.CodeUnknown
)

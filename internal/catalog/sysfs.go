package catalog

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/marselester/kperf/internal/pmutypes"
)

// PERF_TYPE_RAW and PERF_TYPE_TRACEPOINT, duplicated from
// golang.org/x/sys/unix to avoid a build-tag-only dependency in a package
// that also needs to run its sysfs-parsing unit tests on non-Linux CI.
const (
	PerfTypeRaw        = 4
	PerfTypeTracepoint = 2
)

var (
	errUnsupported  = errors.New("unsupported")
	errNoSpe        = errors.New("no-spe")
	errInvalidEvent = errors.New("invalid-event")
)

// ErrUnsupported reports that the chip family has neither a static table
// entry nor a matching kernel device for the requested event.
func ErrUnsupported() error { return errUnsupported }

// ErrNoSpe reports that SPE was requested on a chip lacking arm_spe_0.
func ErrNoSpe() error { return errNoSpe }

// ErrInvalidEvent reports that no resolution branch matched the event name.
func ErrInvalidEvent() error { return errInvalidEvent }

func readUintFile(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	s = strings.TrimPrefix(s, "0x")
	base := 10
	if strings.HasPrefix(strings.TrimSpace(string(b)), "0x") {
		base = 16
	}
	return strconv.ParseUint(s, base, 64)
}

// readEventConfigFile parses a kernel event file, e.g.
// /sys/bus/event_source/devices/cpu/events/cycles, whose contents look like
// "event=0x3c" or "event=0x3c,umask=0x00". Every "key=0xNN" value is ORed
// into a single config word unshifted; the bit positions a device's format/
// directory assigns to each key are not applied. This is exact for the
// common case (a single "event=" field) while not choking on multi-field
// core event descriptors.
func readEventConfigFile(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	line := strings.TrimSpace(string(b))
	if line == "" {
		return 0, fmt.Errorf("empty event file %s", path)
	}
	var config uint64
	for _, field := range strings.Split(line, ",") {
		_, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		val, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(v, "0x")), 16, 64)
		if err != nil {
			return 0, err
		}
		// First field occupies the low bits; subsequent named fields (umask,
		// etc.) are vanishingly rare for the events this catalog resolves
		// through the kernel-device branch, so they are folded in as-is
		// rather than bit-packed per a format file (that precision is
		// reserved for the uncore-raw branch, which does read format/).
		config |= val
	}
	return config, nil
}

// readCPUMask parses a device's cpumask file, a comma-separated list of
// singleton cpu numbers and ranges, e.g. "0,8,16-23".
func readCPUMask(path string) []int {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return parseCPUList(strings.TrimSpace(string(b)))
}

func parseCPUList(s string) []int {
	var out []int
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err1 := strconv.Atoi(lo)
			hiN, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil {
				continue
			}
			for i := loN; i <= hiN; i++ {
				out = append(out, i)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// formatField is one parsed line of a PMU device's format/<field> file,
// e.g. "config:0-7" or "config1:32-63".
type formatField struct {
	word   int // which of Config/Config1/Config2 this field packs into
	lo, hi uint
}

func readFormatField(path string) (formatField, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return formatField{}, err
	}
	// Grammar: "config[0-2]:lo[-hi]"
	line := strings.TrimSpace(string(b))
	word, bits, ok := strings.Cut(line, ":")
	if !ok {
		return formatField{}, fmt.Errorf("malformed format field %s: %q", path, line)
	}
	var f formatField
	switch strings.TrimSpace(word) {
	case "config":
		f.word = 0
	case "config1":
		f.word = 1
	case "config2":
		f.word = 2
	default:
		return formatField{}, fmt.Errorf("unknown format word %q in %s", word, path)
	}
	if lo, hi, ok := strings.Cut(bits, "-"); ok {
		loN, err1 := strconv.ParseUint(strings.TrimSpace(lo), 10, 64)
		hiN, err2 := strconv.ParseUint(strings.TrimSpace(hi), 10, 64)
		if err1 != nil || err2 != nil {
			return formatField{}, fmt.Errorf("malformed bit range in %s: %q", path, bits)
		}
		f.lo, f.hi = uint(loN), uint(hiN)
	} else {
		loN, err := strconv.ParseUint(strings.TrimSpace(bits), 10, 64)
		if err != nil {
			return formatField{}, fmt.Errorf("malformed bit value in %s: %q", path, bits)
		}
		f.lo, f.hi = uint(loN), uint(loN)
	}
	return f, nil
}

// pack range-checks val against 2^(hi-lo+1) and ORs it into the right
// config word of spec, per spec.md section 4.1 branch 5.
func (f formatField) pack(spec *pmutypes.EventSpec, val uint64) error {
	width := f.hi - f.lo + 1
	if width < 64 {
		max := uint64(1)<<width - 1
		if val > max {
			return fmt.Errorf("value %d exceeds %d-bit field", val, width)
		}
	}
	shifted := val << f.lo
	switch f.word {
	case 0:
		spec.Config |= shifted
	case 1:
		spec.Config1 |= shifted
	case 2:
		spec.Config2 |= shifted
	}
	return nil
}

// Package catalog implements the Event Catalog (component C1 in spec.md):
// it translates an event name into a (type, config, config1, config2, kind)
// tuple by trying, in order, a compile-time per-chip table, the kernel's
// published PMU sysfs device, a raw-event form, an uncore event form, an
// uncore-raw form parsed against a device's format files, and finally a
// tracepoint form validated against tracefs.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/marselester/kperf/internal/topology"
	"github.com/marselester/kperf/internal/pmutypes"
)

// TracingRoot locations to probe, in order, mirroring spec.md section 4.1.
var tracingRoots = []string{
	"/sys/kernel/tracing/events",
	"/sys/kernel/debug/tracing/events",
}

const sysBusEventSource = "/sys/bus/event_source/devices"
const sysDevices = "/sys/devices"

// Catalog resolves event names for one chip family. It is safe for
// concurrent use; its sysfs reads are not cached across calls because
// /sys/bus/event_source/devices contents are cheap to reread and rarely
// change within a process lifetime (unlike the hot paths in C4/C6/C7).
type Catalog struct {
	chip topology.ChipFamily
}

// New returns a Catalog bound to chip, typically topology.Probe().ChipFamily.
func New(chip topology.ChipFamily) *Catalog {
	return &Catalog{chip: chip}
}

// Resolve implements the six-branch lookup order of spec.md section 4.1.
func (c *Catalog) Resolve(name string, task pmutypes.TaskType) (pmutypes.EventSpec, error) {
	if task == pmutypes.SpeSampling {
		return c.resolveSpe(name)
	}

	if spec, ok := lookupBuiltin(c.chip, name); ok {
		spec.Name = name
		return spec, nil
	}

	if spec, ok := c.lookupKernelPMU(name); ok {
		return spec, nil
	}

	if spec, ok := parseRawEvent(name); ok {
		return spec, nil
	}

	if spec, ok := c.lookupUncore(name); ok {
		return spec, nil
	}

	if spec, ok := c.lookupUncoreRaw(name); ok {
		return spec, nil
	}

	if spec, ok := c.lookupTracepoint(name); ok {
		return spec, nil
	}

	if c.chip == topology.ChipUnknown {
		return pmutypes.EventSpec{}, fmt.Errorf("catalog: %w: chip family has no static table and no matching kernel device for %q", errUnsupported, name)
	}
	return pmutypes.EventSpec{}, fmt.Errorf("catalog: %w: %q", errInvalidEvent, name)
}

// resolveSpe builds a KindSpe EventSpec straight from user filters (spec.md
// "SPE events are constructed directly from user-supplied filters").
func (c *Catalog) resolveSpe(name string) (pmutypes.EventSpec, error) {
	typ, err := readUintFile(filepath.Join(sysBusEventSource, "arm_spe_0", "type"))
	if err != nil {
		return pmutypes.EventSpec{}, fmt.Errorf("catalog: %w: arm_spe_0 not present: %v", errNoSpe, err)
	}
	return pmutypes.EventSpec{
		Name: name,
		Kind: pmutypes.KindSpe,
		Type: uint32(typ),
	}, nil
}

// lookupKernelPMU implements resolution branch 2: a kernel-published core
// event under /sys/bus/event_source/devices/<pmu>/events/<name>.
func (c *Catalog) lookupKernelPMU(name string) (pmutypes.EventSpec, bool) {
	entries, err := os.ReadDir(sysBusEventSource)
	if err != nil {
		return pmutypes.EventSpec{}, false
	}
	for _, e := range entries {
		pmuDir := filepath.Join(sysBusEventSource, e.Name())
		eventFile := filepath.Join(pmuDir, "events", name)
		config, err := readEventConfigFile(eventFile)
		if err != nil {
			continue
		}
		typ, err := readUintFile(filepath.Join(pmuDir, "type"))
		if err != nil {
			continue
		}
		return pmutypes.EventSpec{Name: name, Kind: pmutypes.KindCore, Type: uint32(typ), Config: config}, true
	}
	return pmutypes.EventSpec{}, false
}

// parseRawEvent implements resolution branch 3: r<hex> -> type=RAW.
func parseRawEvent(name string) (pmutypes.EventSpec, bool) {
	if len(name) < 2 || name[0] != 'r' {
		return pmutypes.EventSpec{}, false
	}
	v, err := strconv.ParseUint(name[1:], 16, 64)
	if err != nil {
		return pmutypes.EventSpec{}, false
	}
	return pmutypes.EventSpec{Name: name, Kind: pmutypes.KindRaw, Type: PerfTypeRaw, Config: v}, true
}

// lookupUncore implements resolution branch 4: <device>/<name>/.
func (c *Catalog) lookupUncore(name string) (pmutypes.EventSpec, bool) {
	device, event, ok := splitDeviceForm(name)
	if !ok {
		return pmutypes.EventSpec{}, false
	}
	// An uncore-raw form has "=" inside the braces; that's handled by
	// lookupUncoreRaw instead.
	if strings.ContainsAny(event, "=,") {
		return pmutypes.EventSpec{}, false
	}
	devDir := filepath.Join(sysDevices, device)
	if fi, err := os.Stat(devDir); err != nil || !fi.IsDir() {
		return pmutypes.EventSpec{}, false
	}
	config, err := readEventConfigFile(filepath.Join(devDir, "events", event))
	if err != nil {
		return pmutypes.EventSpec{}, false
	}
	typ, err := readUintFile(filepath.Join(devDir, "type"))
	if err != nil {
		return pmutypes.EventSpec{}, false
	}
	mask := readCPUMask(filepath.Join(devDir, "cpumask"))
	return pmutypes.EventSpec{
		Name: name, Kind: pmutypes.KindUncore, Type: uint32(typ), Config: config,
		DeviceInstance: device, CPUMask: mask,
	}, true
}

// lookupUncoreRaw implements resolution branch 5: <device>/<k=v,k=v,...>/,
// packing each k=v field into the config word its format/<k> file names.
func (c *Catalog) lookupUncoreRaw(name string) (pmutypes.EventSpec, bool) {
	device, fieldsStr, ok := splitDeviceForm(name)
	if !ok || !strings.Contains(fieldsStr, "=") {
		return pmutypes.EventSpec{}, false
	}
	devDir := filepath.Join(sysDevices, device)
	typ, err := readUintFile(filepath.Join(devDir, "type"))
	if err != nil {
		return pmutypes.EventSpec{}, false
	}

	spec := pmutypes.EventSpec{Name: name, Kind: pmutypes.KindUncoreRaw, Type: uint32(typ), DeviceInstance: device}
	spec.CPUMask = readCPUMask(filepath.Join(devDir, "cpumask"))

	for _, kv := range strings.Split(fieldsStr, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return pmutypes.EventSpec{}, false
		}
		val, err := strconv.ParseUint(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return pmutypes.EventSpec{}, false
		}
		fmtSpec, err := readFormatField(filepath.Join(devDir, "format", strings.TrimSpace(k)))
		if err != nil {
			return pmutypes.EventSpec{}, false
		}
		if err := fmtSpec.pack(&spec, val); err != nil {
			return pmutypes.EventSpec{}, false
		}
	}
	return spec, true
}

// lookupTracepoint implements resolution branch 6: <system>:<event>.
func (c *Catalog) lookupTracepoint(name string) (pmutypes.EventSpec, bool) {
	sys, evt, ok := strings.Cut(name, ":")
	if !ok || sys == "" || evt == "" {
		return pmutypes.EventSpec{}, false
	}
	for _, root := range tracingRoots {
		idFile := filepath.Join(root, sys, evt, "id")
		id, err := readUintFile(idFile)
		if err != nil {
			continue
		}
		return pmutypes.EventSpec{Name: name, Kind: pmutypes.KindTracepoint, Type: PerfTypeTracepoint, Config: id}, true
	}
	return pmutypes.EventSpec{}, false
}

// splitDeviceForm splits "<device>/<rest>/" into (device, rest), returning
// ok=false for names that don't have this shape.
func splitDeviceForm(name string) (device, rest string, ok bool) {
	if !strings.HasSuffix(name, "/") {
		return "", "", false
	}
	trimmed := strings.TrimSuffix(name, "/")
	device, rest, ok = strings.Cut(trimmed, "/")
	return device, rest, ok
}

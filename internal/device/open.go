package device

import (
	"fmt"

	"github.com/marselester/kperf/pmu"
)

// PmuDeviceOpen expands a (metric, bdf?) request into event strings across
// every matching uncore device instance and opens a counting Session for
// them, spec.md section 4.9 "PmuDeviceOpen". The caller later passes the
// Session's collected rows to PmuGetDevMetric.
func PmuDeviceOpen(kind MetricKind, bdf string) (*pmu.Session, error) {
	desc, ok := Descriptors[kind]
	if !ok {
		return nil, errUnknownMetric(kind)
	}

	instances, err := resolveInstances(desc, bdf)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("device: no device instances found for metric %s", kind)
	}

	var events []string
	for _, inst := range instances {
		for _, counter := range desc.Counters {
			if inst.BDF != "" && kind == MetricPCIeBandwidth {
				events = append(events, fmt.Sprintf("%s/%s=0x1,bdf_param=0x%s/", inst.PMUName, counter, hexBDF(inst.BDF)))
				continue
			}
			events = append(events, fmt.Sprintf("%s/%s/", inst.PMUName, counter))
		}
	}

	s, err := pmu.Open(pmu.OpenConfig{EventNames: events, Task: pmu.Counting})
	if err != nil {
		return nil, fmt.Errorf("device: opening session for metric %s: %w", kind, err)
	}
	return s, nil
}

// resolveInstances implements the device-selection half of PmuDeviceOpen:
// every matching instance when bdf is empty, or the single bdf-specific
// instance spec.md section 4.9 describes for PCIe/SMMU.
func resolveInstances(desc Descriptor, bdf string) ([]Instance, error) {
	if bdf == "" {
		return DiscoverByPrefix(desc.DevicePrefix)
	}

	switch desc.Kind {
	case MetricPCIeBandwidth:
		all, err := DiscoverByPrefix(desc.DevicePrefix)
		if err != nil {
			return nil, err
		}
		inst, err := ResolvePCIeByBDF(all, bdf)
		if err != nil {
			return nil, err
		}
		return []Instance{inst}, nil

	case MetricSMMUTransactions:
		inst, err := DiscoverSMMU(bdf)
		if err != nil {
			return nil, err
		}
		return []Instance{inst}, nil

	default:
		return nil, fmt.Errorf("device: metric %s does not support bdf filtering", desc.Kind)
	}
}

func hexBDF(bdf string) string {
	v, err := parseBDFHex(bdf)
	if err != nil {
		return "0"
	}
	return fmt.Sprintf("%x", v)
}

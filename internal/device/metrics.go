// Package device implements the Device-Metric Aggregator (component C9 in
// spec.md): the planner that expands a device-metric request into uncore
// event strings across the matching hardware instances (PmuDeviceOpen), and
// the reducer that collapses the resulting per-fd counters back into
// per-core / per-numa / per-bdf figures (PmuGetDevMetric).
package device

import "fmt"

// MetricKind names one derived device metric, spec.md section 4.9 "Device
// metrics."
type MetricKind int

const (
	MetricDDRReadBandwidth MetricKind = iota
	MetricDDRWriteBandwidth
	MetricL3Traffic
	MetricPCIeBandwidth
	MetricSMMUTransactions
)

func (k MetricKind) String() string {
	switch k {
	case MetricDDRReadBandwidth:
		return "ddr_read_bandwidth"
	case MetricDDRWriteBandwidth:
		return "ddr_write_bandwidth"
	case MetricL3Traffic:
		return "l3_traffic"
	case MetricPCIeBandwidth:
		return "pcie_bandwidth"
	case MetricSMMUTransactions:
		return "smmu_transactions"
	default:
		return "unknown"
	}
}

// AggKind selects how PmuGetDevMetric collapses per-fd counters for a
// metric, spec.md section 4.9's three reduction shapes.
type AggKind int

const (
	// AggPerNuma sums raw counts across every device instance sharing a
	// numa node (DDR bandwidth, L3 latency).
	AggPerNuma AggKind = iota
	// AggPerCore reports one row per cpu (L3 traffic/miss/ref).
	AggPerCore
	// AggPerBDF sums, or pairs and divides, counts sharing a bus:device.function
	// (PCIe bandwidth, SMMU transactions).
	AggPerBDF
)

// Descriptor names the raw counters a metric needs, the sysfs PMU name
// prefix that selects its device instances, and how PmuGetDevMetric
// aggregates its counters back into rows.
type Descriptor struct {
	Kind MetricKind
	// DevicePrefix matches the leading component of each PMU's sysfs leaf
	// name under /sys/bus/event_source/devices (spec.md section 4.9
	// "Enumerate all /sys/devices/<prefix>*<sub>*").
	DevicePrefix string
	// Counters are the config-word event names PmuDeviceOpen emits as
	// "<device_instance>/<counter>/" and PmuGetDevMetric matches samples
	// against.
	Counters []string
	Agg      AggKind
	// Scale is the fixed per-transfer byte/line size multiplied into the
	// raw sum for AggPerNuma/AggPerCore metrics (unused for AggPerBDF,
	// which derives its own ratio from paired counters).
	Scale float64
}

// Descriptors is the fixed table of device metrics this module knows how
// to derive, grounded on original_source's pmu/pmu_metric.cpp scaling
// constants (SPEC_FULL.md section 3): DDR bandwidth counts are multiplied
// by 32 bytes per transfer burst; L3 traffic counts are multiplied by 64
// (the cache line size in bytes); PCIe bandwidth is computed from packet
// length and latency counters as 4*len/latency.
var Descriptors = map[MetricKind]Descriptor{
	MetricDDRReadBandwidth: {
		Kind:         MetricDDRReadBandwidth,
		DevicePrefix: "hisi_sccl",
		Counters:     []string{"flux_rd"},
		Agg:          AggPerNuma,
		Scale:        32,
	},
	MetricDDRWriteBandwidth: {
		Kind:         MetricDDRWriteBandwidth,
		DevicePrefix: "hisi_sccl",
		Counters:     []string{"flux_wr"},
		Agg:          AggPerNuma,
		Scale:        32,
	},
	MetricL3Traffic: {
		Kind:         MetricL3Traffic,
		DevicePrefix: "hisi_l3c",
		Counters:     []string{"rx_ops_num"},
		Agg:          AggPerCore,
		Scale:        64,
	},
	MetricPCIeBandwidth: {
		Kind:         MetricPCIeBandwidth,
		DevicePrefix: "hisi_pcie",
		Counters:     []string{"pcie_packet_len", "pcie_latency"},
		Agg:          AggPerBDF,
	},
	MetricSMMUTransactions: {
		Kind:         MetricSMMUTransactions,
		DevicePrefix: "smmu",
		Counters:     []string{"transaction"},
		Agg:          AggPerBDF,
		Scale:        1,
	},
}

// Value is one aggregated metric row, spec.md section 4.9 "DeviceMetric".
// Only the field matching the descriptor's Agg is meaningful: NumaID for
// AggPerNuma, Cpu for AggPerCore, BDF for AggPerBDF.
type Value struct {
	Kind   MetricKind
	NumaID int
	Cpu    int
	BDF    string
	Count  float64
}

func hasAll(deltas map[string]uint64, names []string) bool {
	for _, n := range names {
		if _, ok := deltas[n]; !ok {
			return false
		}
	}
	return true
}

func errUnknownMetric(k MetricKind) error {
	return fmt.Errorf("device: unknown metric kind %d", k)
}

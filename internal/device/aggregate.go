package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/marselester/kperf/internal/pmutypes"
)

// DeviceDataBuffer is the vector PmuGetDevMetric returns, owned by the
// aggregator until DevDataFree releases it (spec.md section 4.9
// "Returns a new vector owned by the aggregator; released by DevDataFree").
type DeviceDataBuffer struct {
	Values []Value

	mu    sync.Mutex
	freed bool
}

// DevDataFree releases buf. Double-free is a no-op, matching C8's
// FreeData/AppendData double-free convention (spec.md section 4.1).
func DevDataFree(buf *DeviceDataBuffer) {
	if buf == nil {
		return
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.freed {
		return
	}
	buf.freed = true
	buf.Values = nil
}

// eventForm is a parsed uncore event string, either the plain device form
// "<instance>/<counter>/" or the uncore-raw form
// "<instance>/<counter>=0x1,bdf_param=0x<hex>/" PmuDeviceOpen emits for a
// bdf-qualified PCIe request (spec.md section 4.9).
type eventForm struct {
	instance string
	counter  string
	bdf      string // "" unless the event string carries an explicit bdf_param
}

func parseEventForm(evt string) (eventForm, bool) {
	slash := strings.IndexByte(evt, '/')
	if slash < 0 {
		return eventForm{}, false
	}
	instance := evt[:slash]
	rest := strings.TrimSuffix(evt[slash+1:], "/")
	if rest == "" {
		return eventForm{}, false
	}
	if !strings.ContainsAny(rest, "=,") {
		return eventForm{instance: instance, counter: rest}, true
	}

	f := eventForm{instance: instance}
	for _, kv := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if k == "bdf_param" {
			f.bdf = strings.TrimPrefix(v, "0x")
			continue
		}
		f.counter = k
	}
	if f.counter == "" {
		return eventForm{}, false
	}
	return f, true
}

// bdfKey returns the key PmuGetDevMetric's per-bdf aggregation groups by: the
// bdf_param the event string carried, or the device instance name itself
// when the request resolved to a single bdf-specific instance instead
// (spec.md section 4.9's SMMU path, which selects a PMCG rather than
// tagging the event with a bdf_param).
func (f eventForm) bdfKey() string {
	if f.bdf != "" {
		return f.bdf
	}
	return f.instance
}

// matchedRow pairs a Data row with its parsed event form, carried from the
// filter pass into whichever aggregation strategy PmuGetDevMetric picks.
type matchedRow struct {
	row  pmutypes.Data
	form eventForm
}

// PmuGetDevMetric filters rows by the metric's device_prefix/counters and
// aggregates them per spec.md section 4.9: per-core for L3 traffic/miss/ref,
// per-numa for DDR bandwidth/L3 latency, per-bdf for PCIe bandwidth and SMMU
// transactions.
func PmuGetDevMetric(rows []pmutypes.Data, kind MetricKind) (*DeviceDataBuffer, error) {
	desc, ok := Descriptors[kind]
	if !ok {
		return nil, errUnknownMetric(kind)
	}

	var matched []matchedRow
	for _, r := range rows {
		form, ok := parseEventForm(r.Evt)
		if !ok || !strings.HasPrefix(form.instance, desc.DevicePrefix) {
			continue
		}
		if !containsString(desc.Counters, form.counter) {
			continue
		}
		matched = append(matched, matchedRow{row: r, form: form})
	}

	switch desc.Agg {
	case AggPerNuma:
		sums := make(map[int]uint64)
		var order []int
		for _, m := range matched {
			numa := -1
			if m.row.CPUTopo != nil {
				numa = m.row.CPUTopo.NumaID
			}
			if _, ok := sums[numa]; !ok {
				order = append(order, numa)
			}
			sums[numa] += m.row.Count
		}
		sort.Ints(order)
		out := make([]Value, 0, len(order))
		for _, numa := range order {
			out = append(out, Value{Kind: desc.Kind, NumaID: numa, Cpu: -1, Count: float64(sums[numa]) * desc.Scale})
		}
		return &DeviceDataBuffer{Values: out}, nil

	case AggPerCore:
		sums := make(map[int]uint64)
		var order []int
		for _, m := range matched {
			if _, ok := sums[m.row.Cpu]; !ok {
				order = append(order, m.row.Cpu)
			}
			sums[m.row.Cpu] += m.row.Count
		}
		sort.Ints(order)
		out := make([]Value, 0, len(order))
		for _, cpu := range order {
			out = append(out, Value{Kind: desc.Kind, NumaID: -1, Cpu: cpu, Count: float64(sums[cpu]) * desc.Scale})
		}
		return &DeviceDataBuffer{Values: out}, nil

	case AggPerBDF:
		if kind == MetricPCIeBandwidth {
			return &DeviceDataBuffer{Values: aggregatePCIeBandwidth(matched)}, nil
		}
		sums := make(map[string]uint64)
		var order []string
		for _, m := range matched {
			key := m.form.bdfKey()
			if _, ok := sums[key]; !ok {
				order = append(order, key)
			}
			sums[key] += m.row.Count
		}
		sort.Strings(order)
		out := make([]Value, 0, len(order))
		for _, bdf := range order {
			out = append(out, Value{Kind: desc.Kind, NumaID: -1, Cpu: -1, BDF: bdf, Count: float64(sums[bdf]) * desc.Scale})
		}
		return &DeviceDataBuffer{Values: out}, nil

	default:
		return nil, fmt.Errorf("device: metric %s has no aggregation strategy", kind)
	}
}

// aggregatePCIeBandwidth pairs the packet-length and latency config words
// sharing a bdf and computes bw = 4 * packet_len / latency, spec.md section
// 4.9's PCIe reduction.
func aggregatePCIeBandwidth(matched []matchedRow) []Value {
	type accum struct {
		packetLen uint64
		latency   uint64
	}
	byBDF := make(map[string]*accum)
	var order []string
	for _, m := range matched {
		key := m.form.bdfKey()
		a, ok := byBDF[key]
		if !ok {
			a = &accum{}
			byBDF[key] = a
			order = append(order, key)
		}
		switch m.form.counter {
		case "pcie_packet_len":
			a.packetLen += m.row.Count
		case "pcie_latency":
			a.latency += m.row.Count
		}
	}
	sort.Strings(order)

	out := make([]Value, 0, len(order))
	for _, bdf := range order {
		a := byBDF[bdf]
		var bw float64
		if a.latency > 0 {
			bw = 4 * float64(a.packetLen) / float64(a.latency)
		}
		out = append(out, Value{Kind: MetricPCIeBandwidth, NumaID: -1, Cpu: -1, BDF: bdf, Count: bw})
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

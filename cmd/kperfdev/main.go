// Program kperfdev counts a derived uncore device metric (DDR bandwidth,
// L3 traffic, PCIe bandwidth, SMMU transactions) for a fixed duration and
// prints one aggregated row per numa/core/bdf, exercising the
// Device-Metric Aggregator (C9) end to end the way cmd/kperfstat exercises
// the Session Manager.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/marselester/kperf/internal/device"
	"github.com/marselester/kperf/pmu"
)

var metricNames = map[string]device.MetricKind{
	"ddr-read":  device.MetricDDRReadBandwidth,
	"ddr-write": device.MetricDDRWriteBandwidth,
	"l3":        device.MetricL3Traffic,
	"pcie":      device.MetricPCIeBandwidth,
	"smmu":      device.MetricSMMUTransactions,
}

func main() {
	metric := flag.String("metric", "ddr-read", "one of ddr-read, ddr-write, l3, pcie, smmu")
	bdf := flag.String("bdf", "", "bus:device.function to filter pcie/smmu instances (optional)")
	duration := flag.Duration("duration", time.Second, "how long to count for")
	flag.Parse()

	kind, ok := metricNames[*metric]
	if !ok {
		log.Fatalf("kperfdev: unknown metric %q", *metric)
	}

	s, err := device.PmuDeviceOpen(kind, *bdf)
	if err != nil {
		log.Fatalf("kperfdev: opening device metric session: %v", err)
	}
	defer s.Close()

	if err := s.Collect(pmu.CollectOptions{Duration: *duration}); err != nil {
		log.Fatalf("kperfdev: collecting: %v", err)
	}

	buf := s.Read()
	defer s.FreeData(buf)

	devBuf, err := device.PmuGetDevMetric(buf.Records, kind)
	if err != nil {
		log.Fatalf("kperfdev: aggregating: %v", err)
	}
	defer device.DevDataFree(devBuf)

	for _, v := range devBuf.Values {
		log.Printf("metric=%s numa=%d cpu=%d bdf=%q count=%.2f", v.Kind, v.NumaID, v.Cpu, v.BDF, v.Count)
	}
}

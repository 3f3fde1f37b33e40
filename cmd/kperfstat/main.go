// Program kperfstat counts events on a target pid for a fixed duration and
// prints one line per (event, tid, cpu), in the spirit of "perf stat". It
// exists to exercise the pmu package end to end, the way
// marselester-diy-parca-agent's cmd/profiler2 exercised the raw
// perf_event_open plumbing it wrapped.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/marselester/kperf/pmu"
)

func main() {
	pid := flag.Int("pid", 0, "pid to count events on (0 means system-wide)")
	events := flag.String("events", "cycles,instructions", "comma-separated event names")
	duration := flag.Duration("duration", time.Second, "how long to count for")
	flag.Parse()

	var pids []int
	if *pid > 0 {
		pids = []int{*pid}
	}

	s, err := pmu.Open(pmu.OpenConfig{
		EventNames: strings.Split(*events, ","),
		Pids:       pids,
		Task:       pmu.Counting,
	})
	if err != nil {
		log.Fatalf("kperfstat: opening session: %v", err)
	}
	defer s.Close()

	if err := s.Collect(pmu.CollectOptions{Duration: *duration}); err != nil {
		log.Fatalf("kperfstat: collecting: %v", err)
	}

	buf := s.Read()
	defer s.FreeData(buf)

	for _, d := range buf.Records {
		fmt.Printf("%-20s tid=%-8d cpu=%-4d count=%d\n", d.Evt, d.Tid, d.Cpu, d.Count)
	}
}

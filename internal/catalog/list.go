package catalog

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/marselester/kperf/internal/pmutypes"
)

// EventType selects which namespace List enumerates, mirroring the
// original's PmuEventType (spec.md glossary / section 6 "PmuEventList").
type EventType int

const (
	EventTypeCore EventType = iota
	EventTypeUncore
	EventTypeTrace
	EventTypeAll
)

// List enumerates available event names for the requested namespace
// (spec.md section 4.1 "enumerate available events per kind").
func (c *Catalog) List(t EventType) []string {
	var out []string
	if t == EventTypeCore || t == EventTypeAll {
		for name := range genericTable {
			out = append(out, name)
		}
		if table, ok := hipRawTable[c.chip]; ok {
			for name := range table {
				out = append(out, name)
			}
		}
		out = append(out, listKernelPMUEvents()...)
	}
	if t == EventTypeUncore || t == EventTypeAll {
		out = append(out, listUncoreEvents()...)
	}
	if t == EventTypeTrace || t == EventTypeAll {
		out = append(out, listTracepoints()...)
	}
	sort.Strings(out)
	return out
}

func listKernelPMUEvents() []string {
	var out []string
	pmus, err := os.ReadDir(sysBusEventSource)
	if err != nil {
		return nil
	}
	for _, p := range pmus {
		events, err := os.ReadDir(filepath.Join(sysBusEventSource, p.Name(), "events"))
		if err != nil {
			continue
		}
		for _, e := range events {
			out = append(out, e.Name())
		}
	}
	return out
}

func listUncoreEvents() []string {
	var out []string
	devices, err := os.ReadDir(sysDevices)
	if err != nil {
		return nil
	}
	for _, d := range devices {
		eventsDir := filepath.Join(sysDevices, d.Name(), "events")
		events, err := os.ReadDir(eventsDir)
		if err != nil {
			continue
		}
		for _, e := range events {
			out = append(out, d.Name()+"/"+e.Name()+"/")
		}
	}
	return out
}

func listTracepoints() []string {
	var out []string
	for _, root := range tracingRoots {
		systems, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, sys := range systems {
			events, err := os.ReadDir(filepath.Join(root, sys.Name()))
			if err != nil {
				continue
			}
			for _, e := range events {
				out = append(out, sys.Name()+":"+e.Name())
			}
		}
		break
	}
	return out
}

// resolveGeneric is used by tests needing a spec without touching sysfs.
func resolveGeneric(name string) (pmutypes.EventSpec, bool) {
	spec, ok := genericTable[name]
	if ok {
		spec.Name = name
	}
	return spec, ok
}

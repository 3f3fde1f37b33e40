package pmu

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marselester/kperf/internal/proc"
	"github.com/marselester/kperf/internal/ring"
)

// minCollectInterval is the floor spec.md section 4.1 "Collect" sets on the
// sleep chunk between ticks, regardless of what the caller asks for.
const minCollectInterval = 100 * time.Millisecond

// CollectOptions bounds one Collect call, spec.md section 4.1 "Collect".
type CollectOptions struct {
	// Duration is the total time to collect for. Zero means "run until Stop
	// is called".
	Duration time.Duration
	// Interval is the sleep chunk between ticks; clamped to
	// minCollectInterval if smaller.
	Interval time.Duration
}

// Collect runs this Session's cadence loop, accumulating records into its
// internal buffer until opts.Duration elapses, all monitored PMUs die, or
// Stop is called. Call Read afterward to retrieve what was collected.
//
// Counting sessions enable once, sleep in chunks, and do one Read at the
// end so counters aggregate into cumulative deltas across the whole
// duration. Sampling and SpeSampling sessions toggle Enable/Disable every
// tick and drain while disabled, avoiding races with the kernel's ring
// producer (spec.md section 4.1 "Collect").
func (s *Session) Collect(opts CollectOptions) error {
	interval := opts.Interval
	if interval < minCollectInterval {
		interval = minCollectInterval
	}

	s.stopOnce = sync.Once{}
	s.stopCh = make(chan struct{})

	if s.cfg.Task == Counting {
		return s.collectCounting(opts.Duration, interval)
	}
	return s.collectSampling(opts.Duration, interval)
}

// Stop signals an in-progress Collect to finish its current tick and
// return, spec.md section 4.1 "until total elapsed reaches duration or the
// caller signals Stop."
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
		}
	})
}

func (s *Session) collectCounting(duration, interval time.Duration) error {
	if err := s.Enable(); err != nil {
		return fmt.Errorf("pmu: enabling session: %w", err)
	}

	deadline := time.Now().Add(duration)
	for {
		if s.sleepOrStop(interval) {
			break
		}
		if duration > 0 && !time.Now().Before(deadline) {
			break
		}
	}

	if err := s.Disable(); err != nil {
		return fmt.Errorf("pmu: disabling session: %w", err)
	}

	s.list.ClearExitFd()
	records, err := s.list.ReadCounting()
	if err != nil {
		return fmt.Errorf("pmu: reading counters: %w", err)
	}

	s.bufMu.Lock()
	s.buf = append(s.buf, records...)
	s.bufMu.Unlock()
	return nil
}

func (s *Session) collectSampling(duration, interval time.Duration) error {
	deadline := time.Now().Add(duration)
	for {
		if duration > 0 && !time.Now().Before(deadline) {
			return nil
		}
		if err := s.Enable(); err != nil {
			return fmt.Errorf("pmu: enabling session: %w", err)
		}
		stopped := s.sleepOrStop(interval)
		if err := s.Disable(); err != nil {
			return fmt.Errorf("pmu: disabling session: %w", err)
		}

		s.list.ClearExitFd()
		records, err := s.drainOnce()
		if err != nil {
			return fmt.Errorf("pmu: draining samples: %w", err)
		}
		s.bufMu.Lock()
		s.buf = append(s.buf, records...)
		s.bufMu.Unlock()

		if stopped || s.allPMUDead() {
			break
		}
	}
	return nil
}

// sleepOrStop sleeps for d unless Stop fires first, returning true if Stop
// fired.
func (s *Session) sleepOrStop(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stopCh:
		return true
	case <-t.C:
		return false
	}
}

// allPMUDead reports whether every monitored thread has exited, spec.md
// section 4.1's "check all_pmu_dead" collect-loop exit condition.
func (s *Session) allPMUDead() bool {
	return s.list.Len() == 0
}

func (s *Session) drainOnce() ([]Data, error) {
	batches, err := s.list.DrainSamples(s.cfg.sampleTypeMask())
	if err != nil {
		return nil, err
	}

	var out []Data
	var lost uint64
	for groupKey, batch := range batches {
		_, _, gid := splitGroupKey(groupKey)
		out = append(out, s.samplesToData(gid, batch)...)
		s.applyMmaps(batch.Mmaps)
		s.applyComms(batch.Comms)
		lost += batch.LostN
	}
	if lost > 0 {
		s.setWarning(&Warning{
			Code: CodeSamplesLost,
			Msg:  fmt.Sprintf("%d ring-buffer records lost this tick", lost),
		})
	}
	return out, nil
}

// samplesToData resolves each sample's instruction pointer (and, for
// CallStack sessions, its full chain) against C7 and interns the result
// into the session's stack Arena, spec.md section 4.6 "Stack resolution".
func (s *Session) samplesToData(gid int, batch ring.Batch) []Data {
	name, _ := s.list.GroupEventName(gid)

	out := make([]Data, 0, len(batch.Samples))
	for _, smp := range batch.Samples {
		pid := int(smp.Pid)
		d := Data{
			Evt:     name,
			TsNanos: int64(smp.TimeNs),
			Pid:     pid,
			Tid:     int(smp.Tid),
			Cpu:     int(smp.Cpu),
			Period:  smp.Period,
			GroupID: gid,
		}
		if comm, err := proc.Comm(pid); err == nil {
			d.Comm = comm
		} else if comm, ok := s.commForTid(int(smp.Tid)); ok {
			d.Comm = comm
		}

		var frames []Symbol
		if s.cfg.CallStack && len(smp.IPChain) > 0 {
			frames = s.resolver.ResolveChain(pid, smp.IPChain, kernelBoundary)
		} else {
			frames = []Symbol{s.resolver.Resolve(pid, smp.IP, false)}
		}
		id := s.arena.Intern(pid, frames)
		if id >= 0 {
			d.Stack = &Stack{Frames: framesOf(frames)}
		}

		if len(smp.Raw) > 0 {
			d.Raw = &RawData{Data: smp.Raw, Fields: s.rawFieldsForEvent(name)}
		}
		out = append(out, d)
	}
	return out
}

func framesOf(syms []Symbol) []Frame {
	frames := make([]Frame, len(syms))
	for i, sym := range syms {
		frames[i] = Frame{Symbol: sym}
	}
	return frames
}

// kernelBoundary is passed to ResolveChain as -1, so every entry of a chain
// (kernel addresses and PERF_CONTEXT_* markers included) is looked up in the
// process's module map; /proc/kallsyms is not consulted for chains.
const kernelBoundary = -1

func splitGroupKey(k string) (cpu int, tid int32, groupID int) {
	parts := strings.SplitN(k, ":", 3)
	if len(parts) != 3 {
		return 0, 0, 0
	}
	var t int
	fmt.Sscanf(parts[0], "%d", &cpu)
	fmt.Sscanf(parts[1], "%d", &t)
	fmt.Sscanf(parts[2], "%d", &groupID)
	return cpu, int32(t), groupID
}

// applyMmaps forwards PERF_RECORD_MMAP/MMAP2 events observed mid-session to
// the resolver's module registrar, so later samples in the same region
// resolve without waiting for a fresh LoadProcess scan (spec.md section
// 4.6).
func (s *Session) applyMmaps(mmaps []ring.MmapEvent) {
	for _, m := range mmaps {
		s.resolver.OnMmap(int(m.Pid), m.Addr, m.Len, m.PgOffset, m.Filename)
	}
}

// applyComms caches PERF_RECORD_COMM names by tid, a fallback for
// samplesToData when proc.Comm(pid) misses because the thread has already
// exited by the time a sample batch is drained (spec.md section 4.6).
func (s *Session) applyComms(cs []ring.CommEvent) {
	if len(cs) == 0 {
		return
	}
	s.commMu.Lock()
	if s.comms == nil {
		s.comms = make(map[int]string, len(cs))
	}
	for _, c := range cs {
		s.comms[int(c.Tid)] = c.Comm
	}
	s.commMu.Unlock()
}

func (s *Session) commForTid(tid int) (string, bool) {
	s.commMu.Lock()
	defer s.commMu.Unlock()
	comm, ok := s.comms[tid]
	return comm, ok
}

package pmu

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marselester/kperf/internal/catalog"
	"github.com/marselester/kperf/internal/evtlist"
	"github.com/marselester/kperf/internal/pmutypes"
	"github.com/marselester/kperf/internal/proc"
	"github.com/marselester/kperf/internal/ring"
	"github.com/marselester/kperf/internal/symbol"
	"github.com/marselester/kperf/internal/topology"
)

// OpenConfig is the Session Manager's Open input, spec.md section 4.1
// "Open(evtList, pidList, cpuList, task, ...)".
type OpenConfig struct {
	EventNames []string
	// GroupIDs assigns each EventNames[i] to a perf group (spec.md section
	// 4.2); nil means every event is ungrouped. Length must match
	// EventNames when set.
	GroupIDs  []int
	Pids      []int
	CPUs      []int
	Task      TaskType
	Symbolize SymbolMode

	SamplePeriod  uint64
	SampleFreq    uint64
	UseFreq       bool
	CallStack     bool
	BranchMask    uint64
	HasBranch     bool
	ExcludeUser   bool
	ExcludeKernel bool

	// WatchNewThreads enables the Fork Observer for every pid in Pids so
	// threads spawned after Open are picked up automatically (spec.md
	// section 4.3).
	WatchNewThreads bool

	// Logger receives structured session events; defaults to slog.Default()
	// if nil, matching mahendrapaipuri/ceems's perfCollector logging style
	// (SPEC_FULL.md section 1).
	Logger *slog.Logger
}

// Session is the Session Manager (component C8): it owns the Event List,
// the Fork Observers, and the symbol resolver for one measurement run.
type Session struct {
	cfg      OpenConfig
	log      *slog.Logger
	catalog  *catalog.Catalog
	topo     *topology.Info
	list     *evtlist.List
	resolver *symbol.Resolver
	arena    *symbol.Arena
	observer []*proc.Observer

	lastCollect time.Time

	stopOnce sync.Once
	stopCh   chan struct{}

	bufMu sync.Mutex
	buf   []Data

	fieldsMu sync.Mutex
	fields   map[string][]RawField

	commMu sync.Mutex
	comms  map[int]string

	warnMu  sync.Mutex
	warning *Warning
}

// LastWarning returns the most recent recoverable condition observed since
// the last call (e.g. lost ring-buffer records), clearing it, spec.md
// section 5's "last-writer-wins" warning slot.
func (s *Session) LastWarning() *Warning {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	w := s.warning
	s.warning = nil
	return w
}

func (s *Session) setWarning(w *Warning) {
	s.warnMu.Lock()
	s.warning = w
	s.warnMu.Unlock()
}

// Open resolves every event name against the Catalog, opens the Event
// List across cfg.CPUs x tids, loads each pid's module map, and — if
// requested — starts a Fork Observer per pid (spec.md section 4.1 "Open").
func Open(cfg OpenConfig) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	topo, err := topology.Probe()
	if err != nil {
		return nil, fmt.Errorf("pmu: probing topology: %w", err)
	}
	cat := catalog.New(topo.Chip)

	specs := make([]EventSpec, 0, len(cfg.EventNames))
	for _, name := range cfg.EventNames {
		spec, err := cat.Resolve(name, cfg.Task)
		if err != nil {
			return nil, fmt.Errorf("pmu: resolving event %q: %w", name, err)
		}
		specs = append(specs, spec)
	}

	tids, err := resolveTids(cfg.Pids)
	if err != nil {
		return nil, err
	}

	list, err := evtlist.Init(cat, evtlist.Config{
		Specs:         specs,
		GroupIDs:      cfg.GroupIDs,
		CPUs:          cfg.CPUs,
		Tids:          tids,
		Task:          cfg.Task,
		SamplePeriod:  cfg.SamplePeriod,
		SampleFreq:    cfg.SampleFreq,
		UseFreq:       cfg.UseFreq,
		BranchMask:    cfg.BranchMask,
		HasBranch:     cfg.HasBranch,
		ExcludeUser:   cfg.ExcludeUser,
		ExcludeKernel: cfg.ExcludeKernel,
	})
	if err != nil {
		return nil, err
	}
	if w := list.LastWarning(); w != nil {
		logger.Warn("event list degraded", "code", w.Code.String(), "msg", w.Msg)
	}

	resolver := symbol.NewResolver(cfg.Symbolize)
	for _, pid := range cfg.Pids {
		if pid <= 0 {
			continue
		}
		if err := resolver.LoadProcess(pid); err != nil {
			logger.Warn("loading module map failed", "pid", pid, "error", err)
		}
	}

	s := &Session{
		cfg:      cfg,
		log:      logger,
		catalog:  cat,
		topo:     topo,
		list:     list,
		resolver: resolver,
		arena:    symbol.NewArena(),
	}

	if cfg.WatchNewThreads {
		for _, pid := range cfg.Pids {
			if pid <= 0 {
				continue
			}
			obs, err := proc.NewObserver(pid, s.onNewThread(pid))
			if err != nil {
				logger.Warn("fork observer unavailable", "pid", pid, "error", err)
				continue
			}
			if err := obs.Start(); err != nil {
				logger.Warn("fork observer failed to start", "pid", pid, "error", err)
				continue
			}
			s.observer = append(s.observer, obs)
		}
	}

	logger.Info("session opened", "events", cfg.EventNames, "task", cfg.Task.String(), "pids", cfg.Pids)
	return s, nil
}

func (s *Session) onNewThread(pid int) proc.NewProcessFunc {
	return func(_, tid int) {
		if err := s.list.AddNewProcess(tid); err != nil {
			s.log.Warn("adding new thread failed", "pid", pid, "tid", tid, "error", err)
			return
		}
		if w := s.list.LastWarning(); w != nil {
			s.log.Warn("event list degraded", "code", w.Code.String(), "msg", w.Msg)
		}
		if err := s.resolver.LoadProcess(pid); err != nil {
			s.log.Warn("refreshing module map failed", "pid", pid, "error", err)
		}
	}
}

// Enable starts every group's leader counting/sampling (spec.md section
// 4.1 "Enable").
func (s *Session) Enable() error {
	s.lastCollect = time.Now()
	return s.list.EnableAll()
}

// Disable stops every group's leader (spec.md section 4.1 "Disable").
func (s *Session) Disable() error {
	return s.list.DisableAll()
}

// Close tears down Fork Observers and the Event List.
func (s *Session) Close() error {
	for _, obs := range s.observer {
		obs.Stop()
	}
	return s.list.Close()
}

// sampleTypeMask derives the demux mask for this session's sample_type
// from its configuration, mirroring internal/perfevent/attr.go's
// buildAttr so Drain decodes exactly the fields Open asked the kernel for.
func (cfg OpenConfig) sampleTypeMask() ring.SampleTypeMask {
	return ring.SampleTypeMask{
		IP: true, Tid: true, Time: true, ID: true, Cpu: true,
		Period: true, Identifier: true, Raw: true,
		Callchain:   true,
		BranchStack: cfg.HasBranch,
	}
}

// rawFieldsForEvent returns the parsed tracepoint field layout for name,
// caching per event name for the life of the session (format files don't
// change while a tracepoint is open). Non-tracepoint names always miss.
func (s *Session) rawFieldsForEvent(name string) []RawField {
	if !strings.Contains(name, ":") {
		return nil
	}

	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	if fields, ok := s.fields[name]; ok {
		return fields
	}

	fields, err := s.catalog.TracepointFields(name)
	if err != nil {
		s.log.Warn("tracepoint format unavailable", "event", name, "error", err)
	}
	if s.fields == nil {
		s.fields = make(map[string][]RawField)
	}
	s.fields[name] = fields
	return fields
}

func resolveTids(pids []int) ([]int, error) {
	if len(pids) == 0 {
		return []int{0}, nil
	}
	var tids []int
	for _, pid := range pids {
		t, err := proc.Tids(pid)
		if err != nil {
			return nil, fmt.Errorf("pmu: resolving tids for pid %d: %w", pid, err)
		}
		tids = append(tids, t...)
	}
	return tids, nil
}

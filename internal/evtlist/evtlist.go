// Package evtlist implements the Event List (component C5 in spec.md): the
// cpu x tid matrix of Per-fd Events backing one measurement session, plus
// the dynamic maintenance (new threads, exited threads) a long-running
// session needs.
package evtlist

import (
	"fmt"
	"sync"

	"github.com/marselester/kperf/internal/catalog"
	"github.com/marselester/kperf/internal/perfevent"
	"github.com/marselester/kperf/internal/proc"
	"github.com/marselester/kperf/internal/ring"
	"github.com/marselester/kperf/internal/pmutypes"
)

// Config describes the events and targets a List should open, spec.md
// section 3 "Event List (C5 state)".
type Config struct {
	Specs []pmutypes.EventSpec
	// GroupIDs assigns each Specs[i] to a perf group, spec.md section 4.2
	// "Group Info": specs sharing a GroupIDs value open as one kernel group,
	// with the first occurrence of each id becoming that group's leader.
	// Nil/empty means every spec is its own ungrouped, single-member group.
	GroupIDs []int
	CPUs     []int // nil/empty means "system default set", resolved by caller
	Tids     []int // {0} for whole-process, {-1} for system-wide
	Task     pmutypes.TaskType

	SamplePeriod uint64
	SampleFreq   uint64
	UseFreq      bool
	BranchMask   uint64
	HasBranch    bool

	ExcludeUser   bool
	ExcludeKernel bool
}

// subgroup is one kernel perf group's Per-fd Events: index 0 is the leader,
// the rest are members sharing its fd lifecycle (spec.md section 4.2
// "group leader/member").
type subgroup struct {
	events []*perfevent.Event
}

// group is every subgroup opened for one (cpu, tid) pair.
type group struct {
	cpu, tid  int
	subgroups []*subgroup
}

// List is the Event List: every open group, indexed for Read and for
// dynamic add/remove.
type List struct {
	mu      sync.Mutex
	cat     *catalog.Catalog
	cfg     Config
	groups  map[key]*group
	warning *pmutypes.Warning
	// leaderNames[gid] is the event name of subgroup gid's leader, fixed at
	// Init since every (cpu, tid) group opens the same spec groups in the
	// same order.
	leaderNames []string
}

type key struct{ cpu, tid int }

// specGroups partitions cfg.Specs by cfg.GroupIDs into the subgroups
// openGroup should open, validating the "uncore may not be a group member"
// invariant from spec.md section 4.2 along the way. A group whose members
// are all uncore is rejected outright; a group with a mix of uncore and
// core members is flattened to one-event-per-subgroup and a warning is
// recorded (spec.md section 4.2, "invalid-group-has-uncore").
func (cfg Config) specGroups() ([][]pmutypes.EventSpec, *pmutypes.Warning, error) {
	ids := cfg.GroupIDs
	if len(ids) != len(cfg.Specs) {
		ids = make([]int, len(cfg.Specs))
		for i := range ids {
			ids[i] = i // default: every spec is its own group
		}
	}

	order := make([]int, 0, len(cfg.Specs))
	byID := make(map[int][]int) // groupID -> indices into cfg.Specs
	for i, id := range ids {
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = append(byID[id], i)
	}

	var warn *pmutypes.Warning
	groups := make([][]pmutypes.EventSpec, 0, len(order))
	for _, id := range order {
		idxs := byID[id]
		if len(idxs) == 1 {
			groups = append(groups, []pmutypes.EventSpec{cfg.Specs[idxs[0]]})
			continue
		}

		allUncore, anyUncore := true, false
		for _, i := range idxs {
			if isUncore(cfg.Specs[i].Kind) {
				anyUncore = true
			} else {
				allUncore = false
			}
		}
		if allUncore {
			return nil, nil, &pmutypes.Error{Code: pmutypes.CodeInvalidGroupAllUncore, Msg: fmt.Sprintf("group %d is entirely uncore events", id)}
		}
		if anyUncore {
			warn = &pmutypes.Warning{Code: pmutypes.CodeInvalidGroupHasUncore, Msg: fmt.Sprintf("group %d flattened: contains uncore and core events", id)}
			for _, i := range idxs {
				groups = append(groups, []pmutypes.EventSpec{cfg.Specs[i]})
			}
			continue
		}

		spec := make([]pmutypes.EventSpec, len(idxs))
		for j, i := range idxs {
			spec[j] = cfg.Specs[i]
		}
		groups = append(groups, spec)
	}
	return groups, warn, nil
}

func isUncore(k pmutypes.EventKind) bool {
	return k == pmutypes.KindUncore || k == pmutypes.KindUncoreRaw
}

// Init opens every subgroup of cfg.specGroups once per (cpu, tid) pair,
// spec.md section 4.2 "Init": within each subgroup the first spec becomes
// the group leader, the rest join it with GroupLeaderFd set to the
// leader's fd.
func Init(cat *catalog.Catalog, cfg Config) (*List, error) {
	l := &List{cat: cat, cfg: cfg, groups: make(map[key]*group)}

	specGroups, _, err := cfg.specGroups()
	if err != nil {
		return nil, err
	}
	l.leaderNames = make([]string, len(specGroups))
	for i, specs := range specGroups {
		l.leaderNames[i] = specs[0].Name
	}

	cpus := cfg.CPUs
	if len(cpus) == 0 {
		cpus = []int{-1}
	}
	tids := cfg.Tids
	if len(tids) == 0 {
		tids = []int{0}
	}

	for _, cpu := range cpus {
		for _, tid := range tids {
			if err := l.openGroup(cpu, tid); err != nil {
				l.closeAllLocked()
				return nil, err
			}
		}
	}
	return l, nil
}

// openGroup opens every configured subgroup for one (cpu, tid) pair.
// Uncore events (spec.md section 4.5 "uncore tid override") always target
// tid=-1 regardless of the caller's tid, matching the kernel requirement
// that uncore PMUs are not per-task.
func (l *List) openGroup(cpu, tid int) error {
	specGroups, warn, err := l.cfg.specGroups()
	if err != nil {
		return err
	}
	if warn != nil {
		l.mu.Lock()
		l.warning = warn
		l.mu.Unlock()
	}

	g := &group{cpu: cpu, tid: tid}
	for _, specs := range specGroups {
		sg, err := l.openSubgroup(cpu, tid, specs)
		if err != nil {
			for _, prior := range g.subgroups {
				for _, ev := range prior.events {
					ev.Close()
				}
			}
			return err
		}
		g.subgroups = append(g.subgroups, sg)
	}

	l.mu.Lock()
	l.groups[key{cpu, tid}] = g
	l.mu.Unlock()
	return nil
}

func (l *List) openSubgroup(cpu, tid int, specs []pmutypes.EventSpec) (*subgroup, error) {
	sg := &subgroup{}
	leaderFd := -1
	for i, spec := range specs {
		target := tid
		if isUncore(spec.Kind) {
			target = -1
		}

		ev, err := perfevent.Open(perfevent.OpenOptions{
			CPU:           cpu,
			Tid:           target,
			Spec:          spec,
			Task:          l.cfg.Task,
			GroupLeaderFd: leaderFd,
			IsGroupMember: i > 0,
			GroupSize:     len(specs),
			Period:        l.cfg.SamplePeriod,
			Freq:          l.cfg.SampleFreq,
			UseFreq:       l.cfg.UseFreq,
			BranchMask:    l.cfg.BranchMask,
			HasBranch:     l.cfg.HasBranch,
			ExcludeUser:   l.cfg.ExcludeUser,
			ExcludeKernel: l.cfg.ExcludeKernel,
			CgroupFd:      -1,
		})
		if err != nil {
			for _, prior := range sg.events {
				prior.Close()
			}
			return nil, fmt.Errorf("evtlist: opening %q on cpu=%d tid=%d: %w", spec.Name, cpu, target, err)
		}
		if i == 0 {
			leaderFd = ev.Fd
			ev.MemberCount = len(specs) - 1
		}
		sg.events = append(sg.events, ev)
	}
	return sg, nil
}

// Len reports how many (cpu, tid) groups are currently open, used by the
// Session Manager's "all_pmu_dead" collect-loop exit check (spec.md section
// 4.1 "Collect").
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.groups)
}

// LastWarning returns the most recent recoverable condition Init or
// AddNewProcess recorded (e.g. a flattened uncore group), clearing it,
// spec.md section 5's "last-writer-wins" warning slot.
func (l *List) LastWarning() *pmutypes.Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.warning
	l.warning = nil
	return w
}

// AddNewProcess implements spec.md section 4.3's Fork Observer callback
// contract: a newly observed tid gets its own group opened on every cpu the
// list already monitors, using the same spec set.
func (l *List) AddNewProcess(tid int) error {
	l.mu.Lock()
	cpus := make(map[int]struct{})
	for k := range l.groups {
		cpus[k.cpu] = struct{}{}
	}
	l.mu.Unlock()

	for cpu := range cpus {
		if err := l.openGroup(cpu, tid); err != nil {
			return err
		}
	}
	return nil
}

// ClearExitFd closes and drops every group whose tid no longer exists
// under /proc, spec.md section 4.3 "a thread's exit must release its fds
// promptly rather than accumulate until session close."
func (l *List) ClearExitFd() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, g := range l.groups {
		if k.tid <= 0 {
			continue // whole-process/system-wide sentinels never exit
		}
		if proc.Alive(k.tid) {
			continue
		}
		for _, sg := range g.subgroups {
			for _, ev := range sg.events {
				ev.Close()
			}
		}
		delete(l.groups, k)
	}
}

// EnableAll/DisableAll issue the ioctl on every group leader, spec.md
// section 4.4: members inherit leader state so only leaders need the call.
func (l *List) EnableAll() error {
	return l.forEachLeader(func(ev *perfevent.Event) error { return ev.Enable() })
}

func (l *List) DisableAll() error {
	return l.forEachLeader(func(ev *perfevent.Event) error { return ev.Disable() })
}

func (l *List) forEachLeader(fn func(*perfevent.Event) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, g := range l.groups {
		for _, sg := range g.subgroups {
			if len(sg.events) == 0 {
				continue
			}
			if err := fn(sg.events[0]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every open fd in the list.
func (l *List) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeAllLocked()
	return nil
}

func (l *List) closeAllLocked() {
	for k, g := range l.groups {
		for _, sg := range g.subgroups {
			for _, ev := range sg.events {
				ev.Close()
			}
		}
		delete(l.groups, k)
	}
}

// ReadCounting implements the Collect cadence for Counting sessions,
// spec.md section 4.4: one Read (or ReadGroup) per subgroup leader, stamped
// with the cpu/tid/evt/group metadata the Session Manager (C8) needs to
// assemble pmutypes.Data. GroupID identifies which subgroup a row came from,
// so callers can find rows sharing one multiplex window (spec.md section 8,
// scenario 4).
func (l *List) ReadCounting() ([]pmutypes.Data, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []pmutypes.Data
	for _, g := range l.groups {
		for gid, sg := range g.subgroups {
			if len(sg.events) == 0 {
				continue
			}
			if len(sg.events) == 1 {
				delta, err := sg.events[0].Read()
				if err != nil {
					return nil, err
				}
				out = append(out, pmutypes.Data{
					Evt:          sg.events[0].Spec.Name,
					Cpu:          g.cpu,
					Tid:          g.tid,
					Count:        delta.Count,
					CountPercent: delta.Percent,
					GroupID:      gid,
				})
				continue
			}
			gr, err := sg.events[0].ReadGroup(len(sg.events))
			if err != nil {
				return nil, err
			}
			for i, ev := range sg.events {
				var val uint64
				if i < len(gr.Members) {
					val = gr.Members[i].Value
				}
				out = append(out, pmutypes.Data{
					Evt:     ev.Spec.Name,
					Cpu:     g.cpu,
					Tid:     g.tid,
					Count:   val,
					GroupID: gid,
				})
			}
		}
	}
	return out, nil
}

// GroupEventName returns the event name of subgroup gid's leader, the same
// index ReadCounting and DrainSamples key their output by. The Session
// Manager uses this to stamp Data.Evt on sampling records and to identify
// which drained batch belongs to a tracepoint (spec.md section 4.10).
func (l *List) GroupEventName(gid int) (string, bool) {
	if gid < 0 || gid >= len(l.leaderNames) {
		return "", false
	}
	return l.leaderNames[gid], true
}

// DrainSamples implements the Collect cadence for Sampling/SpeSampling
// sessions: drains every subgroup leader's ring, demultiplexing records into
// Sample batches that the Session Manager forwards to C7 for stack
// resolution.
func (l *List) DrainSamples(mask ring.SampleTypeMask) (map[string]ring.Batch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]ring.Batch)
	for k, g := range l.groups {
		for gid, sg := range g.subgroups {
			if len(sg.events) == 0 || sg.events[0].Ring == nil {
				continue
			}
			raw, err := sg.events[0].Ring.Drain()
			if err != nil {
				return nil, err
			}
			if len(raw) == 0 {
				continue
			}
			out[fmt.Sprintf("%d:%d:%d", k.cpu, k.tid, gid)] = ring.Decode(raw, mask)
		}
	}
	return out, nil
}

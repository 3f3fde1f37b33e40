// Package proc implements the Process Probe (component C3 in spec.md): it
// enumerates child threads of a pid, reads comm, detects thread exit, and
// publishes a Fork Observer that watches a monitored pid for new threads
// via a perf "software dummy" event.
package proc

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// Tids walks /proc/<pid>/task/ recursively and returns every thread id in
// the subtree (spec.md section 4.3). Tids(0) returns {0}, the sentinel for
// whole-system; Tids(-1) returns {-1}, meaning "system-wide, kernel
// resolves."
func Tids(pid int) ([]int, error) {
	if pid == 0 {
		return []int{0}, nil
	}
	if pid < 0 {
		return []int{-1}, nil
	}

	taskDir := fmt.Sprintf("/proc/%d/task", pid)
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, fmt.Errorf("proc: listing %s: %w", taskDir, err)
	}

	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}

// Tgid reads /proc/<tid>/status and returns the Tgid field (spec.md section
// 6 "/proc/<pid>/status"), via procfs.ProcStatus the same way ceems's
// perfCollector reads process metadata instead of hand-parsing the status
// file.
func Tgid(tid int) (int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, fmt.Errorf("proc: opening procfs: %w", err)
	}
	p, err := fs.Proc(tid)
	if err != nil {
		return 0, fmt.Errorf("proc: opening proc %d: %w", tid, err)
	}
	status, err := p.NewStatus()
	if err != nil {
		return 0, fmt.Errorf("proc: reading status for %d: %w", tid, err)
	}
	return status.TGID, nil
}

// CPUAffinity reads Cpus_allowed_list from /proc/<tid>/status. Per spec.md
// section 9 ("Open questions"), an unreadable status file is treated as
// "affinity unknown -> skip PMU setup", so callers get ok=false rather than
// an error in that case.
func CPUAffinity(tid int) (cpus []int, ok bool) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", tid))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if v, found := strings.CutPrefix(line, "Cpus_allowed_list:"); found {
			return parseCPURange(strings.TrimSpace(v)), true
		}
	}
	return nil, false
}

func parseCPURange(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, found := strings.Cut(part, "-"); found {
			loN, err1 := strconv.Atoi(lo)
			hiN, err2 := strconv.Atoi(hi)
			if err1 == nil && err2 == nil {
				for i := loN; i <= hiN; i++ {
					out = append(out, i)
				}
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Comm reads /proc/<tid>/comm via procfs.Proc.Comm (spec.md section 6).
func Comm(tid int) (string, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return "", fmt.Errorf("proc: opening procfs: %w", err)
	}
	p, err := fs.Proc(tid)
	if err != nil {
		return "", fmt.Errorf("proc: opening proc %d: %w", tid, err)
	}
	name, err := p.Comm()
	if err != nil {
		return "", fmt.Errorf("proc: reading comm for %d: %w", tid, err)
	}
	return strings.TrimSpace(name), nil
}

// Alive tests /proc/<tid> existence (spec.md section 4.3) by attempting to
// open its procfs handle, rather than stat-ing the path by hand.
func Alive(tid int) bool {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return false
	}
	_, err = fs.Proc(tid)
	return err == nil
}

// Paranoid reads kernel.perf_event_paranoid via procfs, the same check
// mahendrapaipuri/ceems's NewPerfCollector performs before attempting to
// open any perf event (SPEC_FULL.md section 2).
func Paranoid() (int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, fmt.Errorf("proc: opening procfs: %w", err)
	}
	vals, err := fs.SysctlInts("kernel.perf_event_paranoid")
	if err != nil {
		return 0, fmt.Errorf("proc: reading perf_event_paranoid: %w", err)
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("proc: unexpected perf_event_paranoid format: %v", vals)
	}
	return vals[0], nil
}

// MapsPath returns the canonical /proc/<pid>/maps path, used by the module
// map cache (C7) to parse the Module Map (spec.md section 3).
func MapsPath(pid int) string {
	return filepath.Join("/proc", strconv.Itoa(pid), "maps")
}

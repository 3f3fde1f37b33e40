package pmu

// GroupSpec describes one event and, optionally, the perf group it joins
// (spec.md section 3 "Group Info"). GroupID zero means "standalone": the
// event gets its own singleton group rather than being merged with every
// other standalone event. Any positive GroupID shared by more than one
// spec opens those specs as one kernel group, its first occurrence
// becoming the leader.
type GroupSpec struct {
	EventName string
	GroupID   int
}

// WithGroups expands specs into the EventNames/GroupIDs pair OpenConfig
// expects, synthesizing a unique id for every standalone (GroupID == 0)
// spec so it does not accidentally merge with other standalone specs.
func WithGroups(specs []GroupSpec) (names []string, groupIDs []int) {
	names = make([]string, len(specs))
	groupIDs = make([]int, len(specs))

	nextSynthetic := -1
	for i, s := range specs {
		names[i] = s.EventName
		if s.GroupID == 0 {
			groupIDs[i] = nextSynthetic
			nextSynthetic--
			continue
		}
		groupIDs[i] = s.GroupID
	}
	return names, groupIDs
}

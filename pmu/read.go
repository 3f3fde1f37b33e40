package pmu

import "sync"

// DataBuffer is one buffer returned by Read: a snapshot of collected Data
// records, stable until FreeData releases it or the Session closes (spec.md
// section 4.1 "Read"). The C original represents this as a vector behind a
// pointer the caller must free exactly once; in Go the struct itself plays
// that role; see DESIGN.md "Read/FreeData/AppendData" for why AppendData's
// pointer-republishing requirement does not carry over.
type DataBuffer struct {
	Records []Data

	mu    sync.Mutex
	freed bool
}

// Read exchanges the Session's internal buffer — filled by one or more
// Collect calls — for a caller-visible DataBuffer (spec.md section 4.1
// "Read"). Counting records are aggregated by (evt_name, tid, cpu) and
// folded back to their parent event name; sampling records were already
// symbol-resolved at Collect time (spec.md section 4.6), so Read just hands
// them over.
func (s *Session) Read() *DataBuffer {
	s.bufMu.Lock()
	records := s.buf
	s.buf = nil
	s.bufMu.Unlock()

	if s.cfg.Task == Counting {
		records = foldUncoreChildren(mergeDuplicates(records))
	}
	return &DataBuffer{Records: records}
}

// mergeDuplicates aggregates counting records sharing (evt, tid, cpu),
// spec.md section 4.1 "aggregates duplicates by (evt_name, tid, cpu)" —
// duplicates arise when Collect runs more than once before Read, since
// every counting Collect appends one row per (evt, tid, cpu).
func mergeDuplicates(in []Data) []Data {
	type dkey struct {
		evt string
		tid int
		cpu int
	}
	order := make([]dkey, 0, len(in))
	byKey := make(map[dkey]*Data, len(in))
	for i := range in {
		k := dkey{evt: in[i].Evt, tid: in[i].Tid, cpu: in[i].Cpu}
		if existing, ok := byKey[k]; ok {
			existing.Count += in[i].Count
			continue
		}
		d := in[i]
		byKey[k] = &d
		order = append(order, k)
	}
	out := make([]Data, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

// foldUncoreChildren merges a device-qualified event name (e.g.
// "ddr_bw/numa0") back into its parent name ("ddr_bw"), so a caller sees
// one row per configured event even when the catalog expanded it into one
// Per-fd Event per device instance (spec.md section 4.1 "folds split
// uncore children into their parent event name").
func foldUncoreChildren(in []Data) []Data {
	type dkey struct {
		evt string
		tid int
		cpu int
	}
	order := make([]dkey, 0, len(in))
	byKey := make(map[dkey]*Data, len(in))
	for i := range in {
		parent := parentEventName(in[i].Evt)
		k := dkey{evt: parent, tid: in[i].Tid, cpu: in[i].Cpu}
		if existing, ok := byKey[k]; ok {
			existing.Count += in[i].Count
			continue
		}
		d := in[i]
		d.Evt = parent
		byKey[k] = &d
		order = append(order, k)
	}
	out := make([]Data, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func parentEventName(evt string) string {
	// "<device>/<event>/" (trailing '/') is a configured uncore event name,
	// not a device-qualified child, and keeps its full name.
	if len(evt) > 0 && evt[len(evt)-1] == '/' {
		return evt
	}
	for i := 0; i < len(evt); i++ {
		if evt[i] == '/' {
			return evt[:i]
		}
	}
	return evt
}

// FreeData releases buf. Double-free is a no-op that logs a warning instead
// of failing, matching spec.md section 4.1 "Double-free is a no-op plus a
// warning."
func (s *Session) FreeData(buf *DataBuffer) {
	if buf == nil {
		return
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.freed {
		s.log.Warn("double free of data buffer")
		return
	}
	buf.freed = true
	buf.Records = nil
}

// AppendData concatenates from's records onto to's and returns the
// resulting buffer. When to is nil a fresh DataBuffer is allocated (spec.md
// section 4.1 "AppendData"). Go's append already handles reallocation
// internally, so unlike the C original there is no separate pointer to
// re-publish: the returned *DataBuffer is the one the caller should keep
// using (it is to itself when to was non-nil, since only the Records field
// is mutated).
func (s *Session) AppendData(from *DataBuffer, to *DataBuffer) *DataBuffer {
	if to == nil {
		to = &DataBuffer{}
	}
	if from == nil {
		return to
	}
	to.mu.Lock()
	defer to.mu.Unlock()
	to.Records = append(to.Records, from.Records...)
	return to
}

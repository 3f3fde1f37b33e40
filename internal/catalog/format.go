package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/marselester/kperf/internal/pmutypes"
)

// fieldLineRe matches one "field:TYPE NAME[;N];	offset:N;	size:N;
// signed:0|1;" line of a tracepoint's format file, spec.md section 6,
// grounded on original_source/pmu/trace_pointer_parser.cpp's ParseFormatFile
// (which locates the same four values but doesn't track signedness; the
// signed group here is read straight off the line since spec.md calls it
// out explicitly).
var fieldLineRe = regexp.MustCompile(`^\s*field:(?:.*\s)?(\w+)(?:\[[^\]]*\])?;\s*offset:(\d+);\s*size:(\d+);\s*signed:(\d+);`)

// TracepointFields parses the format file of a "<system>:<event>" tracepoint
// into its raw payload's field layout, populating pmutypes.RawData.Fields.
func (c *Catalog) TracepointFields(name string) ([]pmutypes.RawField, error) {
	sys, evt, ok := strings.Cut(name, ":")
	if !ok || sys == "" || evt == "" {
		return nil, fmt.Errorf("catalog: %q is not a tracepoint name", name)
	}

	var lastErr error
	for _, root := range tracingRoots {
		path := filepath.Join(root, sys, evt, "format")
		f, err := os.Open(path)
		if err != nil {
			lastErr = err
			continue
		}
		fields, err := parseTracepointFormat(f)
		f.Close()
		return fields, err
	}
	return nil, fmt.Errorf("catalog: no format file for tracepoint %q: %w", name, lastErr)
}

func parseTracepointFormat(f *os.File) ([]pmutypes.RawField, error) {
	var fields []pmutypes.RawField
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := fieldLineRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		offset, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			continue
		}
		size, err := strconv.ParseUint(m[3], 10, 32)
		if err != nil {
			continue
		}
		fields = append(fields, pmutypes.RawField{
			Name:     m[1],
			Offset:   uint32(offset),
			Size:     uint32(size),
			IsSigned: m[4] == "1",
		})
	}
	return fields, sc.Err()
}

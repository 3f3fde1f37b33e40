package pmu

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMergeDuplicatesSumsMatchingKeys(t *testing.T) {
	in := []Data{
		{Evt: "ddr_bw", Tid: 0, Cpu: -1, Count: 10},
		{Evt: "ddr_bw", Tid: 0, Cpu: -1, Count: 5},
		{Evt: "cycles", Tid: 0, Cpu: -1, Count: 1},
	}
	out := mergeDuplicates(in)
	assert.Len(t, out, 2)
	assert.Equal(t, uint64(15), out[0].Count)
}

func TestFoldUncoreChildrenMergesIntoParent(t *testing.T) {
	in := []Data{
		{Evt: "ddr_bw/numa0", Tid: 0, Cpu: -1, Count: 10},
		{Evt: "ddr_bw/numa1", Tid: 0, Cpu: -1, Count: 20},
	}
	out := foldUncoreChildren(in)
	assert.Len(t, out, 1)
	assert.Equal(t, "ddr_bw", out[0].Evt)
	assert.Equal(t, uint64(30), out[0].Count)
}

func TestFreeDataDoubleFreeIsNoop(t *testing.T) {
	s := &Session{log: discardLogger()}
	buf := &DataBuffer{Records: []Data{{Evt: "cycles"}}}
	s.FreeData(buf)
	assert.Nil(t, buf.Records)
	s.FreeData(buf) // should not panic
}

func TestAppendDataConcatenatesAndAllocatesWhenNil(t *testing.T) {
	s := &Session{log: discardLogger()}
	from := &DataBuffer{Records: []Data{{Evt: "a"}, {Evt: "b"}}}

	to := s.AppendData(from, nil)
	assert.Len(t, to.Records, 2)

	to = s.AppendData(from, to)
	assert.Len(t, to.Records, 4)
}

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFormat = `name: sys_enter
ID: 335
format:
	field:unsigned short common_type;	offset:0;	size:2;	signed:0;
	field:unsigned char common_flags;	offset:2;	size:1;	signed:0;
	field:int common_pid;	offset:4;	size:4;	signed:1;

	field:long id;	offset:8;	size:8;	signed:1;
	field:unsigned long args[6];	offset:16;	size:48;	signed:0;

print fmt: "NR %ld (%lx, %lx, %lx, %lx, %lx, %lx)", REC->id, REC->args[0], REC->args[1], REC->args[2], REC->args[3], REC->args[4], REC->args[5]
`

func TestParseTracepointFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "format")
	require.NoError(t, os.WriteFile(path, []byte(sampleFormat), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	fields, err := parseTracepointFormat(f)
	require.NoError(t, err)
	require.Len(t, fields, 5)

	assert.Equal(t, "common_type", fields[0].Name)
	assert.Equal(t, uint32(0), fields[0].Offset)
	assert.Equal(t, uint32(2), fields[0].Size)
	assert.False(t, fields[0].IsSigned)

	assert.Equal(t, "id", fields[3].Name)
	assert.Equal(t, uint32(8), fields[3].Offset)
	assert.Equal(t, uint32(8), fields[3].Size)
	assert.True(t, fields[3].IsSigned)

	// array field's name is captured without the trailing [6].
	assert.Equal(t, "args", fields[4].Name)
	assert.Equal(t, uint32(48), fields[4].Size)
}

func TestTracepointFieldsRejectsNonTracepointName(t *testing.T) {
	c := New(0)
	_, err := c.TracepointFields("cycles")
	assert.Error(t, err)
}

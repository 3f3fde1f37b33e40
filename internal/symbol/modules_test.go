package symbol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExcluded(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/usr/bin/foo", false},
		{"[heap]", true},
		{"[stack]", true},
		{"[vdso]", true},
		{"", true},
		{"/memfd:jit (deleted)", true},
		{"anon_inode:[bpf-prog]", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isExcluded(tc.path), tc.path)
	}
}

func TestModuleMapLoadParsesMapsFileAndFiltersAnonymous(t *testing.T) {
	dir := t.TempDir()
	mapsPath := filepath.Join(dir, "maps")
	contents := "55a1c2e0e000-55a1c2e10000 r-xp 00002000 08:01 123456 /usr/bin/foo\n" +
		"600000-621000 rw-p 00000000 00:00 0 [heap]\n" +
		"7f0000000000-7f0000021000 rw-p 00000000 00:00 0 \n"
	require.NoError(t, os.WriteFile(mapsPath, []byte(contents), 0o644))

	m := NewModuleMap()
	require.NoError(t, m.loadFrom(1, mapsPath))

	mod, ok := m.Find(1, 0x55a1c2e0e500)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/foo", mod.Path)
	assert.Equal(t, uint64(0x2000), mod.FileOffset)

	_, ok = m.Find(1, 0x600500)
	assert.False(t, ok)
}

func TestModuleMapFindAndOnMmap(t *testing.T) {
	m := NewModuleMap()
	m.OnMmap(42, 0x1000, 0x1000, 0, "/usr/bin/foo")
	m.OnMmap(42, 0x3000, 0x1000, 0x2000, "/usr/lib/libbar.so")

	mod, ok := m.Find(42, 0x1500)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/foo", mod.Path)

	mod, ok = m.Find(42, 0x3500)
	require.True(t, ok)
	assert.Equal(t, "/usr/lib/libbar.so", mod.Path)
	assert.Equal(t, uint64(0x2000), mod.FileOffset)

	_, ok = m.Find(42, 0x2500)
	assert.False(t, ok)

	_, ok = m.Find(99, 0x1500)
	assert.False(t, ok)
}

package pmutypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawDataRawField(t *testing.T) {
	d := &RawData{
		Fields: []RawField{
			{Name: "id", Offset: 8, Size: 8, IsSigned: true},
			{Name: "common_pid", Offset: 4, Size: 4, IsSigned: true},
		},
	}

	f, ok := d.RawField("id")
	assert.True(t, ok)
	assert.Equal(t, uint32(8), f.Offset)

	_, ok = d.RawField("missing")
	assert.False(t, ok)

	var nilData *RawData
	_, ok = nilData.RawField("id")
	assert.False(t, ok)
}

func TestRawFieldInt64Signed(t *testing.T) {
	f := RawField{Offset: 8, Size: 8, IsSigned: true}
	raw := make([]byte, 16)
	// little-endian -1 as an int64 in bytes [8,16).
	for i := 8; i < 16; i++ {
		raw[i] = 0xff
	}

	v, ok := f.Int64(raw)
	assert.True(t, ok)
	assert.Equal(t, int64(-1), v)
}

func TestRawFieldInt64Unsigned(t *testing.T) {
	f := RawField{Offset: 0, Size: 4, IsSigned: false}
	raw := []byte{0x2a, 0x00, 0x00, 0x00}

	v, ok := f.Int64(raw)
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)
}

func TestRawFieldInt64OutOfBounds(t *testing.T) {
	f := RawField{Offset: 10, Size: 8, IsSigned: false}
	_, ok := f.Int64([]byte{1, 2, 3})
	assert.False(t, ok)
}

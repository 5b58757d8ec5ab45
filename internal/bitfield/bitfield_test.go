package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetTest(t *testing.T) {
	b := New(10)
	assert.EqualValues(t, 10, b.Len())
	assert.False(t, b.Test(0))
	b.Set(0)
	b.Set(9)
	assert.True(t, b.Test(0))
	assert.True(t, b.Test(9))
	assert.False(t, b.Test(1))
	assert.Equal(t, []byte{0x80, 0x40}, b.Bytes())
	b.Clear(0)
	assert.False(t, b.Test(0))
	assert.EqualValues(t, 1, b.Count())
}

func TestNewBytes(t *testing.T) {
	// spare bits in the last byte must come back cleared
	b := NewBytes([]byte{0xff, 0xff}, 10)
	assert.NotNil(t, b)
	assert.Equal(t, []byte{0xff, 0xc0}, b.Bytes())
	assert.EqualValues(t, 10, b.Count())

	// too short and too long are both rejected, the wire format is exact
	assert.Nil(t, NewBytes([]byte{0xff}, 10))
	assert.Nil(t, NewBytes([]byte{0xff, 0xff, 0x00}, 10))
}

func TestAll(t *testing.T) {
	b := New(9)
	for i := uint32(0); i < 8; i++ {
		b.Set(i)
	}
	assert.False(t, b.All())
	b.Set(8)
	assert.True(t, b.All())
}

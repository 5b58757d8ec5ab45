package boltdbresumer

import (
	"path/filepath"
	"testing"

	"github.com/sleetbt/sleet/internal/resumer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.resume")

	r, err := New(path)
	require.NoError(t, err)

	// empty database has no spec
	spec, err := r.Read()
	require.NoError(t, err)
	assert.Nil(t, spec)

	want := &resumer.Spec{
		InfoHash: []byte("aaaaaaaaaaaaaaaaaaaa"),
		Info:     []byte("d4:name1:x6:lengthi10ee"),
		Bitfield: []byte{0x80},
		Pieces:   []byte(`[{"index":1}]`),
	}
	require.NoError(t, r.Write(want))
	require.NoError(t, r.Close())

	// state survives reopening the file
	r, err = New(path)
	require.NoError(t, err)
	defer r.Close()

	spec, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, want, spec)

	require.NoError(t, r.WriteState([]byte{0xc0}, []byte(`[]`)))
	spec, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc0}, spec.Bitfield)
	assert.Equal(t, []byte(`[]`), spec.Pieces)
	assert.Equal(t, want.Info, spec.Info)

	require.NoError(t, r.WriteInfo([]byte("d1:xi1ee")))
	spec, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("d1:xi1ee"), spec.Info)
}

var _ resumer.Resumer = (*Resumer)(nil)

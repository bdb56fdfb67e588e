package filestore

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func testHeader(t *testing.T) *Header {
	t.Helper()
	h := new(Header)
	require.NoError(t, h.Put("filter.txt", &Inode{Offset: 0, Length: 10, Checksum: 1}))
	require.NoError(t, h.Put("item/item.sdata", &Inode{Offset: 10, Length: 20, Checksum: 2}))
	require.NoError(t, h.Put("character/skill/skill.sdata", &Inode{Offset: 30, Length: 5, Checksum: 3}))
	require.NoError(t, h.Put("Item/Monster.SData", &Inode{Offset: 35, Length: 1}))
	return h
}

func TestHeaderPaths(t *testing.T) {
	h := testHeader(t)
	require.Equal(t, []string{
		"filter.txt",
		"item/item.sdata",
		"item/Monster.SData",
		"character/skill/skill.sdata",
	}, h.Paths())

	n := h.Lookup("ITEM/ITEM.SDATA")
	require.NotNil(t, n)
	require.Equal(t, uint64(10), n.Offset)
	require.Equal(t, "item.sdata", n.Name)

	require.Nil(t, h.Lookup("item/missing"))
	require.Nil(t, h.Lookup("nodir/filter.txt"))
	require.Nil(t, h.Lookup("item"))
	require.Nil(t, h.Lookup(""))
}

func TestHeaderPutReplaces(t *testing.T) {
	h := testHeader(t)
	require.NoError(t, h.Put("Filter.TXT", &Inode{Offset: 99, Length: 1}))
	require.Len(t, h.Paths(), 4)
	require.Equal(t, uint64(99), h.Lookup("filter.txt").Offset)

	for _, p := range []string{"", "/abs", "dir//file", "trailing/", "nul\x00"} {
		require.ErrorIs(t, h.Put(p, &Inode{}), ErrInvalidPath, p)
	}
}

func TestHeaderMarshalRoundTrip(t *testing.T) {
	h := testHeader(t)
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, "SAH", string(b[:3]))
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[3:7]))
	require.Equal(t, uint32(4), binary.LittleEndian.Uint32(b[7:11]))

	got, err := ParseHeader(b)
	require.NoError(t, err)
	require.Equal(t, h.Paths(), got.Paths())
	for _, p := range h.Paths() {
		require.Equal(t, *h.Lookup(p), *got.Lookup(p), p)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	b, err := testHeader(t).MarshalBinary()
	require.NoError(t, err)

	_, err = ParseHeader(b[:10])
	require.ErrorIs(t, err, ErrMalformedHeader)

	bad := append([]byte(nil), b...)
	bad[0] = 'X'
	_, err = ParseHeader(bad)
	require.ErrorIs(t, err, ErrBadMagic)

	// Cut inside the root directory.
	_, err = ParseHeader(b[:headerPrefix+6])
	require.ErrorIs(t, err, ErrMalformedHeader)

	// Root name, then a node count no input could hold.
	huge := append([]byte(nil), b[:headerPrefix]...)
	huge = binary.LittleEndian.AppendUint32(huge, 1)
	huge = append(huge, 0)
	huge = binary.LittleEndian.AppendUint32(huge, 0xFFFFFFFF)
	_, err = ParseHeader(huge)
	require.ErrorIs(t, err, ErrMalformedHeader)

	// Name length past the end.
	long := append([]byte(nil), b[:headerPrefix]...)
	long = binary.LittleEndian.AppendUint32(long, 0xFFFFFFF0)
	_, err = ParseHeader(long)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestParseHeaderDepthLimit(t *testing.T) {
	h := new(Header)
	path := "f"
	for i := 0; i <= maxDepth+1; i++ {
		path = "d/" + path
	}
	require.NoError(t, h.Put(path, &Inode{}))
	b, err := h.MarshalBinary()
	require.NoError(t, err)

	_, err = ParseHeader(b)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

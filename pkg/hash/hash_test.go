package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexlifyRoundTrip(t *testing.T) {
	d := Sum([]byte("hello world"))
	hex := Hexlify(d)
	assert.Len(t, hex, HexSize)

	back, err := Unhexlify(hex)
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestUnhexlifyRejectsNonHex(t *testing.T) {
	bad := "zz" + string(make([]byte, HexSize-2))
	_, err := Unhexlify(bad)
	assert.Error(t, err)
}

func TestUnhexlifyRejectsWrongLength(t *testing.T) {
	_, err := Unhexlify("abcd")
	assert.Error(t, err)
}

func TestZeroBlockHex(t *testing.T) {
	assert.Len(t, ZeroBlockHex, HexSize)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ZeroBlockHex)
}

func TestMerkleSingle(t *testing.T) {
	d := Sum([]byte("abc"))
	assert.Equal(t, d, Merkle([]Digest{d}))
}

func TestMerkleEmpty(t *testing.T) {
	assert.Equal(t, Sum(nil), Merkle(nil))
}

func TestMerkleInvariantUnderZeroPadding(t *testing.T) {
	digests := []Digest{Sum([]byte("a")), Sum([]byte("b")), Sum([]byte("c"))}

	root := Merkle(digests)

	padded := append(append([]Digest{}, digests...), Digest{})
	assert.Equal(t, root, Merkle(padded), "merkle root must be invariant under padding to the next power of two")
}

func TestMerkleDeterministic(t *testing.T) {
	digests := []Digest{Sum([]byte("x")), Sum([]byte("y")), Sum([]byte("z")), Sum([]byte("w"))}
	assert.Equal(t, Merkle(digests), Merkle(digests))
}

func TestMerkleDiffersOnOrder(t *testing.T) {
	a := Sum([]byte("a"))
	b := Sum([]byte("b"))
	assert.NotEqual(t, Merkle([]Digest{a, b}), Merkle([]Digest{b, a}))
}

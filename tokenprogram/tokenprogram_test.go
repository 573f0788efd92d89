package tokenprogram

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMintWithAuthorities(t *testing.T) {
	buf := make([]byte, MintLen)
	binary.LittleEndian.PutUint32(buf[0:4], 1)
	for i := 0; i < 32; i++ {
		buf[4+i] = 0xaa
	}
	binary.LittleEndian.PutUint64(buf[36:44], 1000)
	buf[44] = 6
	buf[45] = 1
	binary.LittleEndian.PutUint32(buf[46:50], 0)

	mint, err := DecodeMint(buf)
	require.NoError(t, err)
	require.NotNil(t, mint.MintAuthority)
	assert.Equal(t, byte(0xaa), mint.MintAuthority[0])
	assert.Nil(t, mint.FreezeAuthority)
	assert.Equal(t, uint64(1000), mint.Supply)
	assert.Equal(t, uint8(6), mint.Decimals)
	assert.True(t, mint.IsInitialized)
}

func TestDecodeMintRejectsWrongLength(t *testing.T) {
	_, err := DecodeMint(make([]byte, 10))
	assert.Error(t, err)
}

func TestDecodeAccountRoundTrip(t *testing.T) {
	buf := make([]byte, AccountLen)
	for i := 0; i < 32; i++ {
		buf[i] = 0x01
	}
	for i := 0; i < 32; i++ {
		buf[32+i] = 0x02
	}
	binary.LittleEndian.PutUint64(buf[64:72], 500)
	binary.LittleEndian.PutUint32(buf[72:76], 0)
	buf[108] = 1
	binary.LittleEndian.PutUint32(buf[109:113], 1)
	binary.LittleEndian.PutUint64(buf[113:121], 0)
	binary.LittleEndian.PutUint64(buf[121:129], 250)

	acc, err := DecodeAccount(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), acc.Amount)
	assert.Equal(t, uint8(1), acc.State)
	assert.Equal(t, uint64(250), acc.DelegatedAmount)
	assert.Nil(t, acc.Delegate)
	require.NotNil(t, acc.IsNative)
	assert.Equal(t, uint64(0), *acc.IsNative)
}

func TestDecodeMultisigLimitsToN(t *testing.T) {
	buf := make([]byte, MultisigLen)
	buf[0] = 2
	buf[1] = 3
	buf[2] = 1
	for s := 0; s < 3; s++ {
		off := 3 + s*32
		buf[off] = byte(s + 1)
	}

	ms, err := DecodeMultisig(buf)
	require.NoError(t, err)
	require.Len(t, ms.Signers, 3)
	assert.Equal(t, byte(1), ms.Signers[0][0])
	assert.Equal(t, byte(3), ms.Signers[2][0])
}

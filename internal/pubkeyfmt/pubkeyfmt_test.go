package pubkeyfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeIsDeterministicAndNonEmpty(t *testing.T) {
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	got := Encode(k)
	assert.NotEmpty(t, got)
	assert.Equal(t, got, Encode(k))
}

func TestEncodeZeroKey(t *testing.T) {
	var k [32]byte
	assert.NotEmpty(t, Encode(k))
}

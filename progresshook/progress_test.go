package progresshook

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullPassesBytesThrough(t *testing.T) {
	src := bytes.NewReader([]byte("hello"))
	r := Null{}.NewReadProgressTracker("manifest", src, 5)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

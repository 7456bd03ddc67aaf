package util

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	lvl, ok := ParseLevel("DEBUG")
	assert.True(t, ok)
	assert.Equal(t, DebugLevel, lvl)

	lvl, ok = ParseLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, InfoLevel, lvl)

	assert.Equal(t, zerolog.WarnLevel, ZerologLevel(WarnLevel))
	assert.Equal(t, zerolog.InfoLevel, ZerologLevel(42))
}

func TestPointer(t *testing.T) {
	t.Parallel()

	p := Pointer(3)
	*p = 4
	assert.Equal(t, 4, *p)
}

func TestZerologWriter_StripsStdlogPrefix(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := zerologWriter{logger: zerolog.New(&buf), level: zerolog.InfoLevel}
	_, err := w.Write([]byte("2024/01/01 fuse: mounted\n"))
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `"message":"mounted"`)
}

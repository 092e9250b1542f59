package obslog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, logiface.LevelInformational)

	logger.Info().Str(`component`, `transport`).Log(`listener started`)

	out := buf.String()
	require.True(t, strings.Contains(out, `"msg":"listener started"`))
	require.True(t, strings.Contains(out, `component`))
}

func TestDiscardSuppressesOutput(t *testing.T) {
	logger := Discard()
	logger.Info().Log(`should not appear anywhere`)
}

package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkWritesLiveAndSnapshotLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkTo(&buf)

	require.NoError(t, s.WriteLive("BTCUSDT 44200"))
	require.NoError(t, s.WriteSnapshot(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), "equity 10000"))
	require.NoError(t, s.NewLine())

	assert.Equal(t, "\r\033[2KBTCUSDT 44200\n2024-03-01 12:00:00 equity 10000\n\n\n", buf.String())
}

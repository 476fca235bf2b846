package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAgents_Logger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 5, 7, 8, 9, 123_456_789, time.FixedZone("X", 3600))
	require.Equal(t, "2024-03-05T06:08:09.123Z", formatRFC3339Millis(ts))
}

func TestAgents_Logger_NewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("drops empty string attributes", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := NewWithWriter(&buf, false)
		log.Info("loaded", "dataset", "policies", "empty", "")
		out := buf.String()
		require.Contains(t, out, "loaded")
		require.Contains(t, out, "policies")
		require.NotContains(t, out, "empty")
	})

	t.Run("debug only when verbose", func(t *testing.T) {
		t.Parallel()
		var quiet, verbose bytes.Buffer
		NewWithWriter(&quiet, false).Debug("hidden")
		NewWithWriter(&verbose, true).Debug("shown")
		require.Empty(t, quiet.String())
		require.Contains(t, verbose.String(), "shown")
	})
}

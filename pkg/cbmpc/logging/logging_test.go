package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSlogRedacted(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.With("job", "j1").Debug(context.Background(), "dkg", Redacted("share"), "party", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "dkg", line["msg"])
	require.Equal(t, "j1", line["job"])
	require.Equal(t, Placeholder(), line["share"])
	require.EqualValues(t, 2, line["party"])
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(zerolog.New(&buf).Level(zerolog.InfoLevel)).With("job", "j2")

	l.Debug(context.Background(), "hidden")
	require.Zero(t, buf.Len())

	l.Warn(context.Background(), "engine call failed", "code", -5, Redacted("key"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "engine call failed", line["message"])
	require.Equal(t, "j2", line["job"])
	require.EqualValues(t, -5, line["code"])
	require.Equal(t, Placeholder(), line["key"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"Error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestDiscard(t *testing.T) {
	Discard().Error(context.Background(), "nothing")
}

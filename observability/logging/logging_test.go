package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesAndRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Debug("hidden")
	logger.Info("bank call",
		slog.String("jwt_secret", "hunter2"),
		slog.String("journal_dsn", ""),
		slog.String("hmac_secret_env", "BANKD_HMAC_SECRET"),
		slog.String("ilk", "eth"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "bank call", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, RedactedValue, line["jwt_secret"])
	require.Equal(t, "", line["journal_dsn"])
	require.Equal(t, "BANKD_HMAC_SECRET", line["hmac_secret_env"])
	require.Equal(t, "eth", line["ilk"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}

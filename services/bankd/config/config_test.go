package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bankd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "admin:\n  hmac_secret: topsecret\n"))
	require.NoError(t, err)
	require.Equal(t, ":7080", cfg.ListenAddress)
	require.Equal(t, "leveldb", cfg.State.Backend)
	require.Equal(t, "./bank-data", cfg.State.Path)
	require.Equal(t, "sqlite", cfg.Journal.Driver)
	require.Equal(t, "bank:admin", cfg.Admin.AdminScope)
	require.Equal(t, 30*time.Second, cfg.Keeper.Interval.Duration)
	require.Equal(t, float64(600), cfg.RateLimit.RequestsPerMinute)
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
listen: ":9000"
state:
  backend: BOLT
  path: /tmp/bank.db
journal:
  driver: postgres
  dsn: postgres://bank@localhost/bank
admin:
  hmac_secret: topsecret
  clock_skew: 10s
keeper:
  interval: 5m
telemetry:
  sample_ratio: 0.25
`))
	require.NoError(t, err)
	require.Equal(t, "bolt", cfg.State.Backend)
	require.Equal(t, "postgres", cfg.Journal.Driver)
	require.Equal(t, 10*time.Second, cfg.Admin.ClockSkew.Duration)
	require.Equal(t, 5*time.Minute, cfg.Keeper.Interval.Duration)
	require.Equal(t, 0.25, cfg.Telemetry.SampleRatio)
}

func TestSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("BANKD_TEST_SECRET", "from-env")
	admin := AdminConfig{HMACSecret: "inline", HMACSecretEnv: "BANKD_TEST_SECRET"}
	require.Equal(t, "from-env", admin.Secret())
	admin.HMACSecretEnv = "BANKD_TEST_UNSET"
	require.Equal(t, "inline", admin.Secret())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":  "admin:\n  hmac_secret: x\nstate:\n  backend: rocks\n",
		"driver":   "admin:\n  hmac_secret: x\njournal:\n  driver: mysql\n",
		"postgres": "admin:\n  hmac_secret: x\njournal:\n  driver: postgres\n",
		"secret":   "listen: \":1\"\n",
		"ratio":    "admin:\n  hmac_secret: x\ntelemetry:\n  sample_ratio: 2\n",
		"unknown":  "admin:\n  hmac_secret: x\nsurplus: 1\n",
		"duration": "admin:\n  hmac_secret: x\nkeeper:\n  interval: soon\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, contents))
			require.Error(t, err)
		})
	}
}

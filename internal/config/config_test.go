package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, BackendCSV, cfg.StoreBackend)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, filepath.Join(".", "admission_data.csv"), cfg.RosterPath())
	require.Equal(t, filepath.Join(".", "tc_records.csv"), cfg.TcArchivePath())
	require.True(t, cfg.StrictDates)
	require.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	require.Equal(t, 10*time.Second, cfg.RedisLockTTL)
	require.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.Equal(t, 30*time.Second, cfg.SummaryCacheTTL)
	require.Equal(t, 5<<20, cfg.ImportMaxBytes)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ADMISSION_APP_PORT", ":9090")
	t.Setenv("ADMISSION_STORE_BACKEND", "SQL")
	t.Setenv("ADMISSION_DATABASE_DRIVER", "postgres")
	t.Setenv("ADMISSION_DATABASE_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("ADMISSION_STORE_STRICT_DATES", "false")
	t.Setenv("ADMISSION_LOG_LEVEL", "debug")
	t.Setenv("ADMISSION_SCHOOL_ADMISSION_YEAR", "2024")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, BackendSQL, cfg.StoreBackend)
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.False(t, cfg.StrictDates)
	require.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	require.Equal(t, 2024, cfg.AdmissionYear)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"backend":  {"ADMISSION_STORE_BACKEND", "excel"},
		"level":    {"ADMISSION_LOG_LEVEL", "loud"},
		"lock ttl": {"ADMISSION_REDIS_LOCK_TTL", "soon"},
		"window":   {"ADMISSION_RATELIMIT_WINDOW", "-1s"},
		"limit":    {"ADMISSION_RATELIMIT_MAX", "0"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(env[0], env[1])

			_, err := Load()
			require.Error(t, err)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}

package database

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLiteCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := Connect("sqlite", path)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	require.NoError(t, sqlDB.Close())
	require.FileExists(t, path)
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect("oracle", "whatever")
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect("postgres", "")
	require.Error(t, err)

	_, err = ConnectRedis("")
	require.Error(t, err)

	_, err = ConnectNATS("", "ledger")
	require.Error(t, err)
}

func TestConnectRedisPings(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

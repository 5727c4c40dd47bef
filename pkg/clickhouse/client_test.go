package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Host:             "ch",
		Port:             9000,
		Database:         "liqpool",
		User:             "default",
		Password:         "p@ss",
		DialTimeout:      5 * time.Second,
		MaxExecutionTime: time.Minute,
		AsyncInsert:      true,
		WaitForAsync:     true,
	}
	dsn := cfg.DSN()

	assert.Contains(t, dsn, "clickhouse://default:p%40ss@ch:9000/liqpool?")
	assert.Contains(t, dsn, "dial_timeout=5s")
	assert.Contains(t, dsn, "max_execution_time=60")
	assert.Contains(t, dsn, "async_insert=1")
	assert.Contains(t, dsn, "wait_for_async_insert=1")
	assert.NotContains(t, dsn, "write_timeout")
}

func TestConfigDSN_HTTP(t *testing.T) {
	dsn := Config{Host: "ch", Port: 8123, Database: "x", UseHTTP: true}.DSN()
	assert.Contains(t, dsn, "http://")
	assert.NotContains(t, dsn, "async_insert")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(Config{Port: 9000}, WithoutPing())
	assert.Error(t, err)
}

func TestNewClientWithoutPing(t *testing.T) {
	c, err := NewClient(Config{Host: "127.0.0.1", Port: 1, Database: "liqpool"}, WithoutPing(), WithPingTimeout(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "liqpool", c.Database())
	assert.NoError(t, c.Close())
}

func TestInitSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE DATABASE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))

	c := NewFromDB(db, "liqpool")
	require.NoError(t, c.InitSchema(context.Background(), []string{
		"CREATE DATABASE IF NOT EXISTS liqpool",
		"CREATE TABLE IF NOT EXISTS liqpool.t (x UInt8) ENGINE = Memory",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

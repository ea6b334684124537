package clickhouse

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.Host = "ch"
	cfg.Database = "finsynth"
	cfg.Password = "p@ss/word"
	cfg.MaxExecTime = 30 * time.Second
	cfg.AsyncInsert = true

	u, err := url.Parse(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch:9000", u.Host)
	assert.Equal(t, "/finsynth", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pw)

	q := u.Query()
	assert.Equal(t, "5s", q.Get("dial_timeout"))
	assert.Equal(t, "10s", q.Get("read_timeout"))
	assert.Equal(t, "30", q.Get("max_execution_time"))
	assert.Equal(t, "1", q.Get("async_insert"))
	assert.False(t, q.Has("wait_for_async_insert"))
}

func TestDSN_HTTP(t *testing.T) {
	cfg := ClientConfig{Host: "ch", Port: 8123, Database: "finsynth", UseHTTP: true}

	u, err := url.Parse(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Empty(t, u.RawQuery)
}

func TestOptions(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithHost("ch"), WithPort(9440), WithDatabase("db"), WithCredentials("u", "p"),
		WithTimeouts(time.Second, 2*time.Second), WithHTTP(true),
		WithAsyncInsert(true, true), WithMaxExecutionTime(time.Minute),
	} {
		opt(&cfg)
	}
	assert.Equal(t, "ch", cfg.Host)
	assert.Equal(t, 9440, cfg.Port)
	assert.Equal(t, "u", cfg.User)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.WaitForAsync)
	assert.Equal(t, 4, cfg.MaxOpenConns)
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(context.Background())
	assert.Error(t, err)
}

func TestInitArchive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE DATABASE IF NOT EXISTS finsynth`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS finsynth\.score_samples`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS finsynth\.weight_vectors`).WillReturnResult(sqlmock.NewResult(0, 0))

	c := &Client{db: db, database: "finsynth"}
	require.NoError(t, c.InitArchive(context.Background(), DefaultArchiveTables()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitArchive_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE DATABASE`).WillReturnError(errors.New("readonly"))

	c := &Client{db: db, database: "finsynth"}
	err = c.InitArchive(context.Background(), DefaultArchiveTables())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readonly")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveSchema(t *testing.T) {
	stmts := ArchiveSchema("finsynth", DefaultArchiveTables())
	assert.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "finsynth.score_samples")
	assert.Contains(t, stmts[2], "finsynth.weight_vectors")
}

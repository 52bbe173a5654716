package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "tradeloop",
		User:        "default",
		Password:    "pw",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 10 * time.Second,
	})
	assert.Equal(t, "clickhouse://default:pw@ch:9000/tradeloop?dial_timeout=5s&max_execution_time=10", dsn)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestInitSchemaRunsStatementsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE DATABASE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))

	c := NewClientFromDB(db, "tradeloop")
	require.NoError(t, c.InitSchema(context.Background(), []string{
		"CREATE DATABASE IF NOT EXISTS tradeloop",
		"CREATE TABLE IF NOT EXISTS tradeloop.x (a String) ENGINE=Memory",
	}))
	assert.Equal(t, "tradeloop.cycles", c.Table("cycles"))
	require.NoError(t, mock.ExpectationsWereMet())
}

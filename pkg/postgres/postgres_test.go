package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://localhost:5432?sslmode=disable", Option{}.dsn())
	assert.Equal(t,
		"postgres://desk:s3cret@db:6432/portfolio?application_name=tradeloop&sslmode=require",
		Option{
			Host: "db", Port: 6432, User: "desk", Password: "s3cret", Database: "portfolio",
			SSLMode: "require", Params: map[string]string{"application_name": "tradeloop"},
		}.dsn(),
	)
	assert.Equal(t, "postgres://x", Option{DSN: "postgres://x", Host: "ignored"}.dsn())
}

package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/serenia-tutor-api/pkg/config"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "serenia", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=serenia sslmode=disable", dsn)
}

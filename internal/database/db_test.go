package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	s := Settings{User: "booking", Pass: "secret", Host: "db.internal", Port: "3306", Name: "reservations"}

	assert.Equal(t,
		"booking:secret@tcp(db.internal:3306)/reservations?charset=utf8mb4&parseTime=true&loc=UTC",
		s.dsn())
}

func TestDSNWithoutPassword(t *testing.T) {
	s := Settings{User: "booking", Host: "localhost", Port: "3306", Name: "reservations"}

	assert.Equal(t,
		"booking@tcp(localhost:3306)/reservations?charset=utf8mb4&parseTime=true&loc=UTC",
		s.dsn())
}

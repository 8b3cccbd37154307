// Package database manages the MySQL connection and the schema the
// reservation service owns.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Settings describes how to reach MySQL and how to size its
// connection pool.  Zero pool values fall back to defaults sized for
// a single service instance.
type Settings struct {
	User string
	Pass string
	Host string
	Port string
	Name string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// dsn renders the driver connection string.  parseTime makes DATETIME
// columns scan into time.Time, and loc=UTC keeps reservation
// timestamps consistent across instances.
func (s Settings) dsn() string {
	auth := s.User
	if s.Pass != "" {
		auth = s.User + ":" + s.Pass
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, s.Host, s.Port, s.Name)
}

// Open connects to MySQL, applies the pool settings and verifies the
// connection with a bounded ping so a misconfigured database fails at
// startup instead of on the first reservation.
func Open(s Settings) (*sql.DB, error) {
	if s.MaxOpenConns <= 0 {
		s.MaxOpenConns = 25
	}
	if s.MaxIdleConns <= 0 {
		s.MaxIdleConns = s.MaxOpenConns
	}
	if s.ConnMaxLifetime <= 0 {
		s.ConnMaxLifetime = 30 * time.Minute
	}
	if s.PingTimeout <= 0 {
		s.PingTimeout = 5 * time.Second
	}

	db, err := sql.Open("mysql", s.dsn())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(s.MaxOpenConns)
	db.SetMaxIdleConns(s.MaxIdleConns)
	db.SetConnMaxLifetime(s.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), s.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

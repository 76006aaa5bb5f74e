package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Conn is a process-wide database handle shared by every task.
// Implemented by the postgresql and sqlite clients.
type Conn interface {
	GetDB() *sqlx.DB
	Dialect() string
	HealthCheck(ctx context.Context) error
	Close() error
}

package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quotecast/notifier/internal/db"
)

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/d", db.MigrationURL("postgres://u:p@h:5432/d"))
	assert.Equal(t, "pgx5://u:p@h/d?sslmode=disable", db.MigrationURL("postgresql://u:p@h/d?sslmode=disable"))
	assert.Equal(t, "pgx5://already", db.MigrationURL("pgx5://already"))
}

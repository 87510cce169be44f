package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotserver24/xibe-review/internal/config"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DBConfig
		want string
	}{
		{
			name: "explicit ssl mode",
			cfg:  config.DBConfig{Host: "db", Port: 5432, User: "xibe", Password: "secret", Name: "reviews", SSLMode: "require"},
			want: "host=db port=5432 user=xibe password=secret dbname=reviews sslmode=require",
		},
		{
			name: "ssl disabled by default",
			cfg:  config.DBConfig{Host: "localhost", Port: 5433, User: "u", Password: "p", Name: "n"},
			want: "host=localhost port=5433 user=u password=p dbname=n sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(&tt.cfg))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	up, err := fs.ReadFile(migrationsFS, "migrations/000001_create_reviews.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS reviews")
}

package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate-io/graphgate/internal/config"
)

func TestNewBackendUnknownType(t *testing.T) {
	cfg := &config.Config{DatabaseType: "mysql"}
	_, err := newBackend(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported database_type "mysql"`)
	assert.Contains(t, err.Error(), "postgres")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("postgres", newPostgresBackend)
	})
}

func TestPostgresBackendRegistered(t *testing.T) {
	_, ok := builders["postgres"]
	assert.True(t, ok)
}

package apikey

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/chatorder/internal/apikey/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&domain.APIKey{}))
	return NewService(conn, zap.NewNop())
}

func TestCreateAndList(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	key, raw, err := svc.Create(ctx, "org-a", "zapier integration")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "co_live_"))
	assert.Equal(t, domain.HashAPIKey(raw), key.KeyHash)
	assert.Contains(t, key.KeyMask, "****")
	assert.NotContains(t, key.KeyMask, raw[len(raw)-10:len(raw)-4])

	_, _, err = svc.Create(ctx, "org-b", "other tenant")
	require.NoError(t, err)

	keys, err := svc.List(ctx, "org-a")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "zapier integration", keys[0].Name)
	assert.True(t, keys[0].IsActive)
}

func TestRevoke(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	key, _, err := svc.Create(ctx, "org-a", "to revoke")
	require.NoError(t, err)

	// Another tenant cannot revoke it.
	assert.ErrorIs(t, svc.Revoke(ctx, "org-b", key.ID), ErrNotFound)

	require.NoError(t, svc.Revoke(ctx, "org-a", key.ID))
	keys, err := svc.List(ctx, "org-a")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.False(t, keys[0].IsActive)

	// Revoking twice reports not found.
	assert.ErrorIs(t, svc.Revoke(ctx, "org-a", key.ID), ErrNotFound)
}

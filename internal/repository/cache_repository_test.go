package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	err := repo.Get(ctx, "roster:cls-1:2024-09-09", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "roster:cls-1:2024-09-09", map[string]string{"a": "b"}, time.Minute))

	n, err := repo.DeleteByPattern(ctx, "roster:*")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, repo.Close())
}

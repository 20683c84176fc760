package users

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/platform/db"
)

// newPGRepository connects to the database named by LOCALLIBRARY_TEST_PG_DSN.
// The database is dedicated to tests: admin rows are wiped.
func newPGRepository(t *testing.T) *PGRepository {
	t.Helper()
	dsn := os.Getenv("LOCALLIBRARY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("LOCALLIBRARY_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `DELETE FROM principals WHERE role = $1`, int16(authz.RoleAdmin))
	require.NoError(t, err)
	return NewRepository(pool)
}

func TestPGDeleteAdminRefusesLastAdmin(t *testing.T) {
	repo := newPGRepository(t)
	ctx := context.Background()
	only := principal(t, uuid.NewString(), "admin-"+uuid.NewString()[:8], authz.RoleAdmin)
	require.NoError(t, repo.Insert(ctx, &only))

	admins, err := repo.DeleteAdmin(ctx, only.ID)

	assert.ErrorIs(t, err, ErrLastAdmin)
	assert.Equal(t, 1, admins)
	_, err = repo.FindByID(ctx, only.ID)
	assert.NoError(t, err)
}

func TestPGConcurrentDeleteAdminKeepsOne(t *testing.T) {
	repo := newPGRepository(t)
	ctx := context.Background()
	ids := make([]string, 2)
	for i := range ids {
		p := principal(t, uuid.NewString(), "admin-"+uuid.NewString()[:8], authz.RoleAdmin)
		require.NoError(t, repo.Insert(ctx, &p))
		ids[i] = p.ID
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = repo.DeleteAdmin(ctx, id)
		}(i, id)
	}
	wg.Wait()

	refused := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrLastAdmin)
			refused++
		}
	}
	assert.Equal(t, 1, refused)
	remaining, err := repo.CountByRole(ctx, authz.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/eaglebank/usersync/shared/models"
	"github.com/eaglebank/usersync/user-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	alice := &models.User{Name: "Alice", Email: "alice@example.com", Age: intPtr(30)}
	require.NoError(t, repo.Create(ctx, alice))
	bob := &models.User{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, repo.Create(ctx, bob))
	assert.Equal(t, int64(1), alice.ID)
	assert.Equal(t, int64(2), bob.ID)

	err := repo.Create(ctx, &models.User{Name: "Imposter", Email: "alice@example.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	got, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	*got.Age = 99
	again, _ := repo.GetByID(ctx, alice.ID)
	assert.Equal(t, 30, *again.Age, "callers must not alias stored records")

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].Name)

	bob.Email = "alice@example.com"
	assert.ErrorIs(t, repo.Update(ctx, bob), domain.ErrDuplicateEmail)

	bob.Email = "robert@example.com"
	require.NoError(t, repo.Update(ctx, bob))
	exists, _ := repo.ExistsByEmail(ctx, "bob@example.com")
	assert.False(t, exists, "old email is released on change")
	exists, _ = repo.ExistsByEmail(ctx, "robert@example.com")
	assert.True(t, exists)

	alice.Name = "Alice Updated"
	assert.NoError(t, repo.Update(ctx, alice), "own email never collides")

	assert.ErrorIs(t, repo.Update(ctx, &models.User{ID: 42, Email: "x@example.com"}), domain.ErrUserNotFound)

	deleted, err := repo.Delete(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Updated", deleted.Name)
	_, err = repo.GetByID(ctx, alice.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.Delete(ctx, alice.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	require.NoError(t, repo.Create(ctx, &models.User{Name: "Alice", Email: "alice@example.com"}),
		"email is free again after delete")
}

func TestMemoryUserRepository_ConcurrentCreateSameEmail(t *testing.T) {
	repo := NewMemoryUserRepository()
	var wins, dupes int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Create(context.Background(), &models.User{Name: fmt.Sprintf("U%d", i), Email: "race@example.com"})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case err == domain.ErrDuplicateEmail:
				atomic.AddInt32(&dupes, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(19), dupes)
}

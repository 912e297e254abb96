package repository

import (
	"context"
	"strconv"

	"github.com/eaglebank/usersync/shared/models"
	sharedredis "github.com/eaglebank/usersync/shared/redis"
)

// UserViewKeyPrefix namespaces the user read model in Redis.
const UserViewKeyPrefix = "user:view:"

// UserReadRepository serves user views from the Redis read model, falling back
// to the store on a miss. A nil cache reads straight from the store.
type UserReadRepository struct {
	store UserStore
	cache *sharedredis.ViewCache[models.UserView]
}

func NewUserReadRepository(store UserStore, cache *sharedredis.ViewCache[models.UserView]) *UserReadRepository {
	return &UserReadRepository{store: store, cache: cache}
}

// GetByID returns a UserView from Redis first, then the store.
func (r *UserReadRepository) GetByID(ctx context.Context, id int64) (*models.UserView, error) {
	key := strconv.FormatInt(id, 10)
	var version string
	fill := false
	if r.cache != nil {
		if view, ok := r.cache.Get(ctx, key); ok {
			return view, nil
		}
		// taken before the store read so a write landing in between wins
		version, fill = r.cache.Version(ctx, key)
	}

	user, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := models.NewUserView(user)
	if fill {
		r.cache.SetIfVersion(ctx, key, version, view)
	}
	return view, nil
}

// List always reads the store; the cache only holds single views.
func (r *UserReadRepository) List(ctx context.Context) ([]*models.UserView, error) {
	users, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, models.NewUserView(u))
	}
	return views, nil
}

// CacheUserView stores or refreshes the Redis read model for a user.
// Called by the command service after every mutation.
func (r *UserReadRepository) CacheUserView(ctx context.Context, view *models.UserView) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, strconv.FormatInt(view.ID, 10), view)
}

// InvalidateUserView removes the Redis read model entry for a deleted user.
func (r *UserReadRepository) InvalidateUserView(ctx context.Context, id int64) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, strconv.FormatInt(id, 10))
}

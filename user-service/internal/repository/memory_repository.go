package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/eaglebank/usersync/shared/models"
	"github.com/eaglebank/usersync/user-service/internal/domain"
)

// MemoryUserRepository keeps users in process memory. The email index is
// checked and written under the same lock, so it upholds uniqueness on its own.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	nextID  int64
	users   map[int64]*models.User
	byEmail map[string]int64
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[int64]*models.User),
		byEmail: make(map[string]int64),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return domain.ErrDuplicateEmail
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = copyUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryUserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if owner, taken := r.byEmail[user.Email]; taken && owner != user.ID {
		return domain.ErrDuplicateEmail
	}
	delete(r.byEmail, current.Email)
	r.users[user.ID] = copyUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	delete(r.users, id)
	delete(r.byEmail, user.Email)
	return user, nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.Age != nil {
		age := *u.Age
		c.Age = &age
	}
	return &c
}

var _ UserStore = (*MemoryUserRepository)(nil)

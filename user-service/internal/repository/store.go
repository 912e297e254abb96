package repository

import (
	"context"

	"github.com/eaglebank/usersync/shared/models"
)

// UserStore persists user records. Implementations enforce email uniqueness
// themselves and report a collision as domain.ErrDuplicateEmail, whatever the
// caller checked beforehand.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, user *models.User) error
	// Delete removes the record and returns it as it was just before removal.
	Delete(ctx context.Context, id int64) (*models.User, error)
}

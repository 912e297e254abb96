package command

import (
	"context"
	"fmt"
	"time"

	"github.com/eaglebank/usersync/shared/cqrs"
	"github.com/eaglebank/usersync/shared/models"
	"github.com/eaglebank/usersync/user-service/internal/domain"
	"github.com/eaglebank/usersync/user-service/internal/repository"
	"github.com/rs/zerolog"
)

// EventProducer announces committed lifecycle changes. It must not fail the caller.
type EventProducer interface {
	UserCreated(ctx context.Context, user *models.User)
	UserDeleted(ctx context.Context, user *models.User)
}

// UserCommandService writes user state to the store, keeps the Redis read
// model up to date and emits lifecycle events after each commit.
type UserCommandService struct {
	store    repository.UserStore
	readRepo *repository.UserReadRepository
	events   EventProducer
	logger   zerolog.Logger
}

func NewUserCommandService(
	store repository.UserStore,
	readRepo *repository.UserReadRepository,
	events EventProducer,
	logger zerolog.Logger,
) *UserCommandService {
	return &UserCommandService{
		store:    store,
		readRepo: readRepo,
		events:   events,
		logger:   logger,
	}
}

func (s *UserCommandService) CreateUser(ctx context.Context, cmd cqrs.CreateUserCommand) (*models.UserView, error) {
	// fast path only; the store's unique index decides races
	exists, err := s.store.ExistsByEmail(ctx, cmd.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateEmail
	}

	now := time.Now().UTC()
	user := &models.User{
		Name:      cmd.Name,
		Email:     cmd.Email,
		Age:       cmd.Age,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	// the row is committed; a caller hanging up must not cost the event
	after := context.WithoutCancel(ctx)
	view := models.NewUserView(user)
	s.readRepo.CacheUserView(after, view)
	s.events.UserCreated(after, user)

	s.logger.Info().Int64("user_id", user.ID).Msg("user created")
	return view, nil
}

// UpdateUser replaces name, email and age. It never emits an event.
func (s *UserCommandService) UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.UserView, error) {
	user, err := s.store.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if cmd.Email != user.Email {
		exists, err := s.store.ExistsByEmail(ctx, cmd.Email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateEmail
		}
	}

	user.Name = cmd.Name
	user.Email = cmd.Email
	user.Age = cmd.Age
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}

	view := models.NewUserView(user)
	s.readRepo.CacheUserView(context.WithoutCancel(ctx), view)
	return view, nil
}

func (s *UserCommandService) DeleteUser(ctx context.Context, cmd cqrs.DeleteUserCommand) error {
	user, err := s.store.Delete(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("store returned no snapshot for deleted user %d", cmd.UserID)
	}

	after := context.WithoutCancel(ctx)
	s.readRepo.InvalidateUserView(after, cmd.UserID)
	s.events.UserDeleted(after, user)

	s.logger.Info().Int64("user_id", user.ID).Msg("user deleted")
	return nil
}

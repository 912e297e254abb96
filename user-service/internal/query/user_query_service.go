package query

import (
	"context"

	"github.com/eaglebank/usersync/shared/cqrs"
	"github.com/eaglebank/usersync/shared/models"
	"github.com/eaglebank/usersync/user-service/internal/repository"
)

// UserQueryService reads user views from the Redis cache (with a store fallback).
type UserQueryService struct {
	readRepo *repository.UserReadRepository
}

func NewUserQueryService(readRepo *repository.UserReadRepository) *UserQueryService {
	return &UserQueryService{readRepo: readRepo}
}

func (s *UserQueryService) GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error) {
	return s.readRepo.GetByID(ctx, q.UserID)
}

func (s *UserQueryService) ListUsers(ctx context.Context, _ cqrs.ListUsersQuery) ([]*models.UserView, error) {
	return s.readRepo.List(ctx)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/eaglebank/usersync/shared/cqrs"
	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/eaglebank/usersync/shared/models"
	"github.com/eaglebank/usersync/user-service/internal/domain"
	"github.com/gin-gonic/gin"
)

// UserCommander defines the write-side operations used by UserHandler.
type UserCommander interface {
	CreateUser(context.Context, cqrs.CreateUserCommand) (*models.UserView, error)
	UpdateUser(context.Context, cqrs.UpdateUserCommand) (*models.UserView, error)
	DeleteUser(context.Context, cqrs.DeleteUserCommand) error
}

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	GetUser(context.Context, cqrs.GetUserQuery) (*models.UserView, error)
	ListUsers(context.Context, cqrs.ListUsersQuery) ([]*models.UserView, error)
}

// UserHandler routes requests to the command or query service as appropriate.
type UserHandler struct {
	commands UserCommander
	queries  UserQuerier
}

// UserRequest is the body of both create and update.
type UserRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email"`
	Age   *int   `json:"age" validate:"omitempty,gte=0,lte=150"`
}

func NewUserHandler(commands UserCommander, queries UserQuerier) *UserHandler {
	return &UserHandler{commands: commands, queries: queries}
}

// RegisterRoutes mounts the user endpoints on r.
func (h *UserHandler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1/users")
	{
		v1.POST("", h.CreateUser)
		v1.GET("", h.ListUsers)
		v1.GET("/:userId", h.GetUser)
		v1.PUT("/:userId", h.UpdateUser)
		v1.DELETE("/:userId", h.DeleteUser)
	}
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	req, ok := bindUserRequest(c)
	if !ok {
		return
	}

	view, err := h.commands.CreateUser(c.Request.Context(), cqrs.CreateUserCommand{
		Name:  req.Name,
		Email: req.Email,
		Age:   req.Age,
	})
	if err != nil {
		respondWithDomainError(c, err, "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	views, err := h.queries.ListUsers(c.Request.Context(), cqrs.ListUsersQuery{})
	if err != nil {
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to list users")
		return
	}

	c.JSON(http.StatusOK, views)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	view, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{UserID: userID})
	if err != nil {
		respondWithDomainError(c, err, "Failed to get user")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	req, ok := bindUserRequest(c)
	if !ok {
		return
	}

	view, err := h.commands.UpdateUser(c.Request.Context(), cqrs.UpdateUserCommand{
		UserID: userID,
		Name:   req.Name,
		Email:  req.Email,
		Age:    req.Age,
	})
	if err != nil {
		respondWithDomainError(c, err, "Failed to update user")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	if err := h.commands.DeleteUser(c.Request.Context(), cqrs.DeleteUserCommand{UserID: userID}); err != nil {
		respondWithDomainError(c, err, "Failed to delete user")
		return
	}

	c.Status(http.StatusNoContent)
}

func bindUserRequest(c *gin.Context) (UserRequest, bool) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return req, false
	}
	return req, true
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || id <= 0 {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid user ID")
		return 0, false
	}
	return id, true
}

func respondWithDomainError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrDuplicateEmail):
		middleware.RespondWithError(c, http.StatusConflict, "A user with this email already exists")
	default:
		_ = c.Error(err)
		middleware.RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}

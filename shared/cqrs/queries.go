package cqrs

// GetUserQuery fetches a single user by ID.
type GetUserQuery struct {
	UserID int64
}

// ListUsersQuery fetches every user, ordered by ID.
type ListUsersQuery struct{}

package cqrs

type CreateUserCommand struct {
	Name  string
	Email string
	Age   *int
}

// UpdateUserCommand replaces name, email and age of an existing user.
type UpdateUserCommand struct {
	UserID int64
	Name   string
	Email  string
	Age    *int
}

type DeleteUserCommand struct {
	UserID int64
}

// SendEmailCommand is an ad-hoc notification outside the lifecycle flow.
type SendEmailCommand struct {
	To      string
	Subject string
	Message string
}

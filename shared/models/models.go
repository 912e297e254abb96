package models

import "time"

// User is the write model held by the user store.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       *int      `json:"age,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmailMessage is a single outbound notification.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

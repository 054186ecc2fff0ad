package model

import (
	"strings"
	"time"

	"workflow-dashboard/internal/domain"

	"github.com/google/uuid"
)

// User is the owner every other entity is scoped to.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

func NewUser(id, email, name string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:        id,
		Email:     email,
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

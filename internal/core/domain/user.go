package domain

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// User is the persisted record served by the remote API.
// ID and Image are assigned by the server and never sent back on writes.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Birthdate string `json:"birthdate"` // ISO-8601 date
	Image     string `json:"image"`
}

// UserInput is the editable projection of User used for create and update payloads.
type UserInput struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Address   string `json:"address" validate:"required"`
	Birthdate string `json:"birthdate" validate:"required"`
}

// Input returns the editable fields of u.
func (u User) Input() UserInput {
	return UserInput{
		Name:      u.Name,
		Email:     u.Email,
		Address:   u.Address,
		Birthdate: u.Birthdate,
	}
}

var ErrUserNotFound = errors.New("user not found")

// TransportError reports a failed request: a non-2xx response, or a network
// failure when Status is 0.
type TransportError struct {
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport: %s", e.Message)
	}
	return fmt.Sprintf("transport: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError carries field-scoped messages produced before any request is made.
// Fields is keyed by the JSON field name (name, email, address, birthdate).
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name])
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Package domain contains core business types and interfaces.
//
// This file defines the User type. Users and their sessions are issued by an
// external identity service; this service only reads them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered writer.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Tier      Tier
	IsAdmin   bool
	CreatedAt time.Time
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

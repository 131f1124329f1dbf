package models

import (
	"time"

	id "freewalk/pkg/domain"
)

// User is a local account synced from the identity provider. Email is stored
// normalized and is unique; TotalPoints only grows.
type User struct {
	ID          id.UserID
	Email       string
	TotalPoints int64
	CreatedAt   time.Time
}

// Profile is the public view of a user.
type Profile struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	TotalPoints int64  `json:"total_points"`
}

func (u *User) Profile() Profile {
	return Profile{
		UserID:      u.ID.String(),
		Email:       u.Email,
		TotalPoints: u.TotalPoints,
	}
}

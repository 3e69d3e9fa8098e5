// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// PasswordHash and Tokens are tagged `json:"-"`: the JSON form of a User is
// its public profile and must never carry credentials. Tokens is ordered
// oldest first. The avatar image is stored with the user but read through
// its own repository method, so it has no field here.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"` // always lower-cased
	Age          int       `json:"age"`
	PasswordHash string    `json:"-"`
	Tokens       []string  `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasToken reports whether token is one of the user's active session tokens.
func (u *User) HasToken(token string) bool {
	for _, t := range u.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// Package domain contains core domain types for the support chat server.
package domain

// Account is a registered customer. Accounts are created on signup and are
// never mutated or deleted afterwards.
type Account struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

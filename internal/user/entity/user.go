package entity

import "time"

// User represents an account row in the `users` table.
// PasswordHash must never leave the service; use View for responses.
type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Status       bool      `db:"status"`
	Session      bool      `db:"session"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// PublicUser is the externally visible projection of a User.
type PublicUser struct {
	ID        int64     `json:"id,string"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Status    bool      `json:"status"`
	Session   bool      `json:"session"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View drops the password hash.
func (u *User) View() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Status:    u.Status,
		Session:   u.Session,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Page is one slice of the user listing plus the overall count.
type Page struct {
	Users []PublicUser `json:"users"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

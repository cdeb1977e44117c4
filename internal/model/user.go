package model

import "time"

// Role is the authorization role carried in an access token.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTrainer Role = "TRAINER"
	RoleMember  Role = "MEMBER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTrainer, RoleMember:
		return true
	}
	return false
}

// User represents an identity record as stored in the `users` table.
// Members, trainers and administrators all authenticate through a user
// row; members additionally own a row in `members`.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN, TRAINER or MEMBER.
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         Role      // users.role
	CreatedAt    time.Time // users.created_at
}

// Principal is the authenticated caller as established by the JWT
// middleware. The engine trusts it as already verified.
type Principal struct {
	UserID uint64
	Role   Role
}

func (p Principal) IsAdmin() bool   { return p.Role == RoleAdmin }
func (p Principal) IsTrainer() bool { return p.Role == RoleTrainer }
func (p Principal) IsMember() bool  { return p.Role == RoleMember }

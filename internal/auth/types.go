// Package auth implements AuthService (C9): password hashing, JWT
// issuance/verification, and agent-token authentication, grounded on the
// teacher's pkg/services auth patterns and the original's argon2id/passlib
// configuration.
package auth

import "time"

// Role is a User's authorization role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an authenticated human operator.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Permissions  []string
	IsActive     bool
	CreatedAt    time.Time
}

// Agent is an authenticated agent identity scoped to one project.
type Agent struct {
	ID           string
	ProjectID    string
	Nickname     string
	TokenHash    string
	Capabilities []string
	IsActive     bool
	CreatedByID  string // nullable FK to User.ID; ON DELETE SET NULL at the storage layer
	CreatedAt    time.Time
	LastUsed     *time.Time
}

// TokenPair is issued on successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Argon2Params match spec.md's field-for-field argon2id configuration.
type Argon2Params struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2Params: time_cost=2, memory=64 MiB, parallelism=4, salt>=16 bytes.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{TimeCost: 2, MemoryKiB: 64 * 1024, Parallelism: 4, SaltLen: 16, KeyLen: 32}
}

// MinPasswordLength is the minimum plaintext length accepted at registration.
const MinPasswordLength = 12

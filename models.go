package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember is a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an admin role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// UserStatus is the account lifecycle status as reported by the server.
type UserStatus = string

const (
	// UserStatusPending account created, email not verified yet
	UserStatusPending UserStatus = "pending"
	// UserStatusActive verified, in good standing
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended temporarily blocked
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusDisabled permanently blocked
	UserStatusDisabled UserStatus = "disabled"
)

// User is the server-owned account record. The client holds a cached copy;
// the server remains the source of truth.
type User struct {
	ID            uuid.UUID  `json:"id,omitempty"`
	Email         string     `json:"email,omitempty"`
	DisplayName   string     `json:"display_name,omitempty"`
	Role          UserRole   `json:"role,omitempty"`
	EmailVerified bool       `json:"email_verified,omitempty"`
	Status        UserStatus `json:"status,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// EnsureStatus defaults a missing status to pending.
func (u *User) EnsureStatus() {
	if u != nil && u.Status == "" {
		u.Status = UserStatusPending
	}
}

// IsActive reports whether the account is in good standing.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// IsSuspended reports whether the account is temporarily blocked.
func (u *User) IsSuspended() bool {
	return u != nil && u.Status == UserStatusSuspended
}

// provisionalUser builds the placeholder record adopted during restoration.
// It carries whatever the token itself reveals; the first profile fetch
// replaces it with the server record.
func provisionalUser(facts TokenFacts) *User {
	u := &User{
		Role:   RoleGuest,
		Status: UserStatusActive,
	}
	if facts.Subject == "" {
		return u
	}
	if id, err := uuid.Parse(facts.Subject); err == nil {
		u.ID = id
	} else {
		u.Email = facts.Subject
	}
	return u
}

// Credential is the durable store record backing BunStore. One row per
// browser profile, holding the opaque access token.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:crd"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Profile       string     `bun:"profile,notnull,unique" json:"profile,omitempty"`
	StorageKey    string     `bun:"storage_key,notnull" json:"storage_key,omitempty"`
	Token         string     `bun:"token,notnull" json:"token,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// TokenFacts are display-safe attributes derived from an access token.
// The raw token value never travels with them.
type TokenFacts struct {
	Present   bool       `json:"present"`
	Length    int        `json:"length"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired,omitempty"`
}

// VerifyStatus is the outcome of an email verification attempt.
type VerifyStatus = string

const (
	// VerifyStatusPending verification request in flight
	VerifyStatusPending VerifyStatus = "pending"
	// VerifyStatusSuccess verified; a redirect is scheduled
	VerifyStatusSuccess VerifyStatus = "success"
	// VerifyStatusError token unknown or expired; no redirect
	VerifyStatusError VerifyStatus = "error"
)

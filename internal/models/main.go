// Package models defines the core data structures for identities, sessions,
// customers and the derived views built on top of them.
package models

import (
	"strings"
	"time"
)

// Identity represents a registered CRM user. The email is the tenant key.
type Identity struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Email identifies the tenant and is stored normalised.
	Email string `json:"email"`
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `json:"password_hash,omitempty"`
	// Avatar is an optional image reference.
	Avatar string `json:"avatar,omitempty"`

	Role     string   `json:"role,omitempty"`
	Bio      string   `json:"bio,omitempty"`
	Location string   `json:"location,omitempty"`
	Skills   []string `json:"skills,omitempty"`

	// Remember is the last chosen session durability preference.
	Remember bool `json:"remember"`
}

// Public returns a copy of the identity without its credential.
func (i Identity) Public() Identity {
	i.PasswordHash = ""
	if i.Skills != nil {
		i.Skills = append([]string(nil), i.Skills...)
	}
	return i
}

// Apply merges the non-nil fields of p into the identity.
func (i *Identity) Apply(p IdentityPatch) {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.Avatar != nil {
		i.Avatar = *p.Avatar
	}
	if p.Role != nil {
		i.Role = *p.Role
	}
	if p.Bio != nil {
		i.Bio = *p.Bio
	}
	if p.Location != nil {
		i.Location = *p.Location
	}
	if p.Skills != nil {
		i.Skills = append([]string(nil), p.Skills...)
	}
}

// IdentityPatch carries a partial profile update. Nil fields are left untouched.
// The email and id are deliberately absent: they cannot change in a session.
type IdentityPatch struct {
	Name     *string  `json:"name,omitempty"`
	Avatar   *string  `json:"avatar,omitempty"`
	Role     *string  `json:"role,omitempty"`
	Bio      *string  `json:"bio,omitempty"`
	Location *string  `json:"location,omitempty"`
	Skills   []string `json:"skills,omitempty"`
}

// Session is the persisted snapshot of an authenticated identity.
type Session struct {
	Identity  Identity  `json:"identity"`
	Remember  bool      `json:"remember"`
	StartedAt time.Time `json:"started_at"`
}

// Valid reports whether the snapshot carries the required identity fields.
func (s Session) Valid() bool {
	return s.Identity.ID != "" && s.Identity.Name != "" && s.Identity.Email != ""
}

// Tenant returns the tenant key of the session.
func (s Session) Tenant() string {
	return s.Identity.Email
}

// NormalizeEmail trims and lower-cases an email so it can be used as a tenant key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package session

import (
	"encoding/json"
	"strings"
	"time"
)

// Role is a user's privilege level. Values are canonical lowercase.
type Role string

const (
	RoleNone  Role = ""
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// ParseRole normalises a backend role value; "OWNER" and "owner" are the same role.
// Unknown values map to RoleNone.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleOwner):
		return RoleOwner
	case string(RoleAdmin):
		return RoleAdmin
	default:
		return RoleNone
	}
}

// Privileged reports whether the role grants access to the admin area.
func (r Role) Privileged() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = ParseRole(s)
	return nil
}

// User is the profile snapshot of the signed-in user.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	Bio       string     `json:"bio,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// IsAdmin reports whether u holds the owner or admin role. A nil user is never an admin.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role.Privileged()
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

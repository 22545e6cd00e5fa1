package directory

import "github.com/drago-vuckovic/sso/internal/provider"

const (
	// DefaultPageSize applies when ListOptions.Max is zero.
	DefaultPageSize = 100
	// MaxPageSize caps ListOptions.Max.
	MaxPageSize = 1000
)

// User is a user record with its effective realm roles.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Enabled  bool     `json:"enabled"`
	Roles    []string `json:"roles"`
}

// UserSummary is one row of a user listing.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// fields exposes the summary to filter expressions.
func (s UserSummary) fields() map[string]any {
	return map[string]any{
		"id":       s.ID,
		"username": s.Username,
		"email":    s.Email,
		"enabled":  s.Enabled,
	}
}

// Role is a realm role as shown to callers.
type Role struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite"`
}

// ListOptions selects a page of users.
type ListOptions struct {
	First int
	Max   int
	// Filter is an optional boolean expression over id, username, email and
	// enabled, e.g. `enabled == true and username matches "^a"`. It is applied
	// to the fetched page.
	Filter string
}

// NewUser is the input of Create.
type NewUser struct {
	Username string
	Email    string
	Password string
	Roles    []string
}

// UserUpdate is the input of Update. Nil fields are left unchanged. A non-nil
// Roles, even an empty one, replaces the user's managed roles.
type UserUpdate struct {
	Username *string
	Email    *string
	Enabled  *bool
	Roles    *[]string
}

func (u UserUpdate) touchesProfile() bool {
	return u.Username != nil || u.Email != nil || u.Enabled != nil
}

// CreateResult reports a created account. The account exists even when
// RolesErr is set; the initial role assignment is not rolled back.
type CreateResult struct {
	ID       string
	Roles    Changes
	RolesErr error
}

// Complete reports whether the account and all initial roles were created.
func (r *CreateResult) Complete() bool {
	return r.RolesErr == nil
}

func summarize(u provider.User) UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email, Enabled: u.Enabled}
}

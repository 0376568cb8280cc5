package users

import (
	"net/url"
	"strings"
)

const defaultAvatarBase = "https://ui-avatars.com/api/"

// GoogleProfile is the identity asserted by a Google sign-in.
type GoogleProfile struct {
	Name    string
	Email   string
	Avatar  string
	Subject string
}

// Registration carries the fields accepted by Register.
type Registration struct {
	Name     string
	Email    string
	Avatar   *string
	Password string
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}

// NormalizeEmail trims and lower-cases an address so lookups are
// case-insensitive.
func NormalizeEmail(value string) string {
	return strings.ToLower(normalize(value))
}

func optionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := normalize(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// DefaultAvatarURL returns the generated initials avatar for name.
func DefaultAvatarURL(name string) string {
	query := url.Values{}
	query.Set("name", normalize(name))
	query.Set("background", "10b981")
	query.Set("color", "ffffff")
	return defaultAvatarBase + "?" + query.Encode()
}

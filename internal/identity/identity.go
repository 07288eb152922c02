// Package identity holds the user identifier shared by every component.
package identity

import (
	"fmt"
	"strconv"
)

// UserID identifies a platform user. Zero means "nobody".
type UserID int64

// Valid reports whether id names a real user.
func (id UserID) Valid() bool {
	return id > 0
}

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseUserID parses a positive decimal user id.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid user id %q: must be positive", s)
	}
	return UserID(n), nil
}

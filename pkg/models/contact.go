package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	phonePattern = regexp.MustCompile(`^[1-9][0-9]{9}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

type Contact struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email"`
	Address   string     `json:"address"`
	Skills    string     `json:"skills"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Validate checks the fields a contact must carry before insertion.
// Phone numbers are exactly 10 digits without a country code.
func (c *Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("contact name is required")
	}
	if !phonePattern.MatchString(c.Phone) {
		return fmt.Errorf("phone %q must be exactly 10 digits", c.Phone)
	}
	if c.Email != "" && !emailPattern.MatchString(c.Email) {
		return fmt.Errorf("email %q is not a valid address", c.Email)
	}
	return nil
}

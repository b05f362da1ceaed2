package middleware

import (
	"regexp"
	"strings"

	"sparknexora-backend/models"
)

var contactEmailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// ValidateContact checks the contact-form fields and returns the list of
// problems; an empty slice means the submission is acceptable.
func ValidateContact(c *models.Contact) []string {
	var errs []string

	name := strings.TrimSpace(c.Name)
	if name == "" {
		errs = append(errs, "Name is required")
	} else if len(name) > 100 {
		errs = append(errs, "Name cannot exceed 100 characters")
	}

	email := strings.TrimSpace(c.Email)
	if email == "" {
		errs = append(errs, "Email is required")
	} else if !contactEmailPattern.MatchString(email) {
		errs = append(errs, "Please enter a valid email address")
	}

	message := strings.TrimSpace(c.Message)
	if message == "" {
		errs = append(errs, "Message is required")
	} else if len(message) > 2000 {
		errs = append(errs, "Message cannot exceed 2000 characters")
	}

	if len(strings.TrimSpace(c.Phone)) > 20 {
		errs = append(errs, "Phone number cannot exceed 20 characters")
	}
	if len(strings.TrimSpace(c.Company)) > 100 {
		errs = append(errs, "Company name cannot exceed 100 characters")
	}

	return errs
}

package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/homegate/server/internal/apperr"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lower-cases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email looks like an address
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// PasswordProblems lists every strength rule the password breaks. Only ASCII letters and digits count.
func PasswordProblems(password string) []string {
	var problems []string
	if utf8.RuneCountInString(password) < 8 {
		problems = append(problems, "Password must be at least 8 characters long")
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	if !lower {
		problems = append(problems, "Password must contain lowercase letters")
	}
	if !upper {
		problems = append(problems, "Password must contain uppercase letters")
	}
	if !digit {
		problems = append(problems, "Password must contain numbers")
	}
	return problems
}

// ValidName reports whether the trimmed name is 2 to 255 characters
func ValidName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= 2 && n <= 255
}

// ValidateSignup checks a signup request before any store access
func ValidateSignup(email, password, name string) error {
	if email == "" || !ValidEmail(email) {
		return apperr.Validation("Invalid email format")
	}
	if password == "" {
		return apperr.Validation("Password is required")
	}
	if problems := PasswordProblems(password); len(problems) > 0 {
		return apperr.Validation(strings.Join(problems, ", "))
	}
	if !ValidName(name) {
		return apperr.Validation("Name must be between 2 and 255 characters")
	}
	return nil
}

// ValidateLogin checks a login request before any store access
func ValidateLogin(email, password string) error {
	if email == "" || !ValidEmail(email) {
		return apperr.Validation("Invalid email format")
	}
	if password == "" {
		return apperr.Validation("Password is required")
	}
	return nil
}

package service

import (
	"errors"
	"fmt"
	"regexp"

	"authcore/internal/identity/domain"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ErrEmailAlreadyRegistered is returned by Register when the email belongs to an existing account.
var ErrEmailAlreadyRegistered = errors.New("email already registered")

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrMalformedInput)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", domain.ErrMalformedInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("%w: password must be at least 12 characters", domain.ErrMalformedInput)
	}
	if len(password) > 72 {
		// bcrypt ignores everything past 72 bytes.
		return fmt.Errorf("%w: password must be at most 72 bytes", domain.ErrMalformedInput)
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return fmt.Errorf("%w: password must contain at least one uppercase letter", domain.ErrMalformedInput)
	case !hasLower:
		return fmt.Errorf("%w: password must contain at least one lowercase letter", domain.ErrMalformedInput)
	case !hasNumber:
		return fmt.Errorf("%w: password must contain at least one number", domain.ErrMalformedInput)
	case !hasSymbol:
		return fmt.Errorf("%w: password must contain at least one symbol", domain.ErrMalformedInput)
	}
	return nil
}

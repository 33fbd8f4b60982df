package validation

import (
	"errors"
	"fmt"
	"regexp"
)

// Ограничения учетных данных
const (
	MinUsernameLen = 3
	MaxUsernameLen = 32
	MinPasswordLen = 8
	// MaxPasswordLen bcrypt игнорирует все после 72 байт
	MaxPasswordLen = 72
)

var usernameChars = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateUsername: латиница, цифры и '_', от MinUsernameLen до MaxUsernameLen символов
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return errors.New("username cannot be empty")
	case !usernameChars.MatchString(username):
		return errors.New("username can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_)")
	case len(username) < MinUsernameLen:
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	case len(username) > MaxUsernameLen:
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	}
	return nil
}

// ValidatePassword проверяет длину пароля в байтах
func ValidatePassword(password string) error {
	switch {
	case password == "":
		return errors.New("password cannot be empty")
	case len(password) < MinPasswordLen:
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	case len(password) > MaxPasswordLen:
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordLen)
	}
	return nil
}

package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/iudanet/boardsync/internal/ids"
)

// Максимальная длина названий и текста строк
const (
	MaxBoardNameLen = 50
	MaxListNameLen  = 60
	MaxTextLen      = 60
)

var (
	// IDPattern формат идентификатора строки, который может прислать клиент
	IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

	publicIDPattern = regexp.MustCompile(
		fmt.Sprintf(`^[%s]{%d}$`, ids.PublicIDAlphabet, ids.PublicIDLength))
)

// ValidateID проверяет идентификатор строки
func ValidateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if !IDPattern.MatchString(id) {
		return fmt.Errorf("%s must be 1-64 characters of letters, digits, '_' or '-'", field)
	}
	return nil
}

// ValidatePublicID проверяет публичный идентификатор строки
func ValidatePublicID(publicID string) error {
	if !publicIDPattern.MatchString(publicID) {
		return fmt.Errorf("public_id must be %d characters from %q", ids.PublicIDLength, ids.PublicIDAlphabet)
	}
	return nil
}

// ValidateText проверяет текстовое поле: непустое после trim, не длиннее max символов
func ValidateText(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s must not exceed %d characters", field, max)
	}
	return nil
}

// ValidateOrder проверяет порядковый номер строки
func ValidateOrder(order float64) error {
	if math.IsNaN(order) || math.IsInf(order, 0) {
		return fmt.Errorf("order must be a finite number")
	}
	if order < 0 {
		return fmt.Errorf("order must not be negative")
	}
	return nil
}

package classification

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/echoledger/platform/internal/shared/errors"
)

// Normalize cleans raw directive text for keyword matching: case-folds,
// turns tabs and newlines into spaces, collapses whitespace runs and
// trims. Text over maxChars or with a malformed encoding is rejected
// before any processing.
func Normalize(text string, maxChars int) (string, error) {
	if !utf8.ValidString(text) {
		return "", errors.InvalidInput("directive text is not valid UTF-8", nil)
	}
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		return "", errors.InvalidInput(
			fmt.Sprintf("directive text exceeds %d characters", maxChars),
			map[string]string{"length": fmt.Sprintf("%d", utf8.RuneCountInString(text))},
		)
	}

	cleaned := strings.ToLower(text)
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	return cleaned, nil
}

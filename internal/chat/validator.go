package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

// Validation failures returned by ValidateBody.
var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message too long")
	ErrInvalidUTF8    = errors.New("message contains invalid UTF-8")
)

// ValidateBody trims surrounding whitespace and checks that what remains may
// be sent. It returns the trimmed text.
func ValidateBody(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", ErrInvalidUTF8
	}
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return "", ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return "", errors.Wrapf(ErrMessageTooLong, "exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return "", errors.Wrapf(ErrMessageTooLong, "exceeds %d character limit", MaxTextChars)
	}
	return text, nil
}

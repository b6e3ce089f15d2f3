// Package dispatch routes callback action tokens to handlers. A token
// is the raw callback data of an inline button: a short opaque ASCII
// string resolved first against exact-match actions and then against
// an ordered list of prefix rules.
package dispatch

import (
	"errors"
	"fmt"
)

// MaxTokenLen is the Bot API limit on callback data length in bytes.
const MaxTokenLen = 64

var (
	// ErrInvalidToken marks callback data that cannot be a well-formed action token.
	ErrInvalidToken = errors.New("invalid action token")
	// ErrUnknownAction marks a well-formed token with no matching rule.
	ErrUnknownAction = errors.New("unknown action")
)

// ValidateToken checks that raw callback data is a usable action token:
// non-empty, within the Bot API length limit and made of printable
// ASCII without spaces. Anything else is rejected before lookup so a
// forged or truncated payload never reaches a handler.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if len(token) > MaxTokenLen {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", ErrInvalidToken, len(token), MaxTokenLen)
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c <= 0x20 || c >= 0x7f {
			return fmt.Errorf("%w: byte 0x%02x at %d", ErrInvalidToken, c, i)
		}
	}
	return nil
}

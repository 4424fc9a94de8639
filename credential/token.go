package credential

import (
	"encoding/base64"
	"fmt"
	"io"
)

// TokenSize is the number of random bytes of a voting token.
const TokenSize = 32

// Token is the voter's secret one-time voting token: TokenSize random bytes
// encoded as unpadded base64url (43 chars).
type Token string

// GenToken draws a new token from rand, which must be a cryptographically
// secure source.
func GenToken(rand io.Reader) (Token, error) {
	b := make([]byte, TokenSize)
	if _, err := io.ReadFull(rand, b); err != nil {
		return "", fmt.Errorf("read token bytes: %w", err)
	}
	return Token(base64.RawURLEncoding.EncodeToString(b)), nil
}

// Validate checks the token decodes to TokenSize bytes of unpadded base64url.
func (t Token) Validate() error {
	b, err := base64.RawURLEncoding.DecodeString(string(t))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(b) != TokenSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidToken, len(b))
	}
	return nil
}

// String returns the token. It exists so a Token can never be confused with
// a plain string by accident; callers must not log it.
func (t Token) String() string {
	return string(t)
}

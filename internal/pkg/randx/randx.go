/*
Package randx generates cryptographically secure random identifiers.

Chat tokens are fixed-length Base62 strings drawn from crypto/rand; connection ids are
UUID v4 values.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars is the alphabet used for chat tokens (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the size of the Base62 alphabet.
	Base62Len = int64(len(Base62Chars))

	// ChatTokenLength is the fixed length of a chat token.
	ChatTokenLength = 8
)

// Reader is the entropy source. Tests may swap it for a deterministic reader.
var Reader io.Reader = rand.Reader

// ChatToken returns a new ChatTokenLength-character Base62 token.
func ChatToken() (string, error) {
	return base62(ChatTokenLength)
}

func base62(length int) (string, error) {
	result := make([]byte, length)
	limit := big.NewInt(Base62Len)

	for i := range length {
		num, err := rand.Int(Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for chat token: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// IsValidChatToken reports whether token has the chat token length and alphabet.
func IsValidChatToken(token string) bool {
	if len(token) != ChatTokenLength {
		return false
	}

	for _, char := range token {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// ConnectionID returns a UUID v4 string identifying one websocket connection.
func ConnectionID() string {
	return uuid.NewString()
}

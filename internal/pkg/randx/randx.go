/*
Package randx provides generators for unique identifiers.

Message ids and connection keys are UUID v4 strings; connection keys additionally
carry a short Base62 prefix so they are easy to tell apart from message ids in logs.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	connectionPrefixLength = 4
)

// MessageID generates a UUID v4 string to serve as a unique message identifier.
func MessageID() string {
	return uuid.New().String()
}

// ConnectionKey generates an opaque key for one live transport connection.
func ConnectionKey() (string, error) {
	prefix, err := Base62(connectionPrefixLength)
	if err != nil {
		return "", err
	}
	return prefix + "-" + uuid.New().String(), nil
}

// Base62 returns n characters drawn from crypto/rand.
func Base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

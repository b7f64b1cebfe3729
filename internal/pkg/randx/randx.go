/*
Package randx generates cryptographically secure random strings.

It is used to assign display names to guests who do not choose one.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// GuestNamePrefix starts every generated guest name.
	GuestNamePrefix = "Guest_"

	guestNameRandomLength = 6
)

var base62Len = big.NewInt(int64(len(Base62Chars)))

// Base62 returns n random characters from Base62Chars using crypto/rand.
func Base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, base62Len)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// GuestName generates a display name with a "Guest_" prefix and 6 random Base62 characters.
func GuestName() (string, error) {
	suffix, err := Base62(guestNameRandomLength)
	if err != nil {
		return "", err
	}
	return GuestNamePrefix + suffix, nil
}

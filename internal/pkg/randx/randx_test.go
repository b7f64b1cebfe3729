package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase62(t *testing.T) {
	s, err := Base62(32)
	require.NoError(t, err)
	assert.Len(t, s, 32)
	for _, c := range s {
		assert.True(t, strings.ContainsRune(Base62Chars, c))
	}

	empty, err := Base62(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGuestName(t *testing.T) {
	a, err := GuestName()
	require.NoError(t, err)
	b, err := GuestName()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, GuestNamePrefix))
	assert.Len(t, a, len(GuestNamePrefix)+guestNameRandomLength)
	assert.NotEqual(t, a, b)
}

package sharelink

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("tokens are unique", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 100 {
			token, err := GenerateToken()
			require.NoError(t, err)
			_, dup := seen[token]
			require.False(t, dup)
			seen[token] = struct{}{}
		}
	})

	t.Run("tokens survive a URL path unescaped", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		require.Equal(t, token, url.PathEscape(token))
	})
}

func TestDigestToken(t *testing.T) {
	t.Run("digest is deterministic and not the token", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)

		digest := DigestToken(token)
		require.Equal(t, digest, DigestToken(token))
		require.NotEqual(t, token, digest)
		require.Len(t, digest, 64)
	})

	t.Run("different tokens have different digests", func(t *testing.T) {
		require.NotEqual(t, DigestToken("a"), DigestToken("b"))
	})
}

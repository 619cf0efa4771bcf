package auth_test

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"

	"github.com/ashita-ai/kioku/internal/auth"
)

func TestHashAPIKey_PHCFormat(t *testing.T) {
	hash, err := auth.HashAPIKey("k")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"), hash)
	assert.False(t, auth.NeedsRehash(hash))

	other, err := auth.HashAPIKey("k")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts differ")
}

func TestVerifyAPIKey_UsesStoredParameters(t *testing.T) {
	salt := []byte("0123456789abcdef")
	sum := argon2.IDKey([]byte("old-key"), salt, 2, 16*1024, 1, 32)
	enc := base64.RawStdEncoding
	stored := fmt.Sprintf("$argon2id$v=19$m=16384,t=2,p=1$%s$%s", enc.EncodeToString(salt), enc.EncodeToString(sum))

	ok, err := auth.VerifyAPIKey("old-key", stored)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, auth.NeedsRehash(stored))

	ok, err = auth.VerifyAPIKey("new-key", stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAPIKey_Malformed(t *testing.T) {
	for _, stored := range []string{
		"",
		"c2FsdA==$aGFzaA==",
		"$argon2i$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=16$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdA$",
	} {
		ok, err := auth.VerifyAPIKey("k", stored)
		assert.Error(t, err, stored)
		assert.False(t, ok)
		assert.True(t, auth.NeedsRehash(stored))
	}
}

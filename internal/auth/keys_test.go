package auth_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kioku/internal/auth"
	"github.com/ashita-ai/kioku/internal/model"
)

func TestWriteKeyPair_LoadsIntoJWTManager(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	privPath, pubPath, err := auth.WriteKeyPair(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, auth.PrivateKeyFile), privPath)

	info, err := os.Stat(privPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken(model.Member{ID: uuid.New(), ProjectID: uuid.New(), Name: "genkey", Role: model.RoleViewer})
	require.NoError(t, err)
	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "genkey", claims.MemberName)
}

func TestWriteKeyPair_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	privPath, _, err := auth.WriteKeyPair(dir)
	require.NoError(t, err)
	before, err := os.ReadFile(privPath)
	require.NoError(t, err)

	_, _, err = auth.WriteKeyPair(dir)
	require.ErrorIs(t, err, auth.ErrKeyExists)

	after, err := os.ReadFile(privPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SetupLoginVerify(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	assert.False(t, m.Enabled())

	token, err := m.SetPassword("correcthorse")
	require.NoError(t, err)
	assert.True(t, m.Enabled())
	assert.True(t, m.VerifyToken(token))

	_, err = m.SetPassword("again")
	assert.ErrorIs(t, err, ErrAlreadyEnabled)

	_, err = m.Login("wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)

	loginToken, err := m.Login("correcthorse")
	require.NoError(t, err)
	assert.True(t, m.VerifyToken(loginToken))

	assert.False(t, m.VerifyToken("not-a-token"))
}

func TestManager_PasswordTooShort(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.SetPassword("abc")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestManager_LoginWithoutSetup(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.Login("anything")
	assert.ErrorIs(t, err, ErrAuthNotEnabled)
}

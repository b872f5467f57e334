// Package auth implements a single-operator password/session scheme,
// redesigned as a stateless JWT session cookie, grounded on
// original_source/multitaskflow/web/api/auth.py.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTTL = 24 * time.Hour

var (
	ErrAuthNotEnabled   = errors.New("auth: no password configured")
	ErrAlreadyEnabled   = errors.New("auth: password already configured")
	ErrWrongPassword    = errors.New("auth: incorrect password")
	ErrPasswordTooShort = errors.New("auth: password must be at least 4 characters")
)

type store struct {
	PasswordHash string `json:"password_hash"`
	Secret       string `json:"secret"`
}

// Manager owns the on-disk password hash and the HMAC key used to sign
// session_token JWTs, both stored at <workspace_dir>/.auth.
type Manager struct {
	path string
}

// NewManager binds a Manager to <workspaceDir>/.auth, generating the
// file lazily on first SetPassword call.
func NewManager(workspaceDir string) *Manager {
	return &Manager{path: filepath.Join(workspaceDir, ".auth")}
}

func hashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) load() (*store, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read auth store: %w", err)
	}
	var s store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode auth store: %w", err)
	}
	return &s, nil
}

func (m *Manager) save(s *store) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode auth store: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write auth store: %w", err)
	}
	return os.Rename(tmp, m.path)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Enabled reports whether a password has been configured.
func (m *Manager) Enabled() bool {
	s, err := m.load()
	return err == nil && s != nil
}

// SetPassword is the one-time bootstrap: it errors if a password is
// already configured (callers must require a valid session first in
// that case).
func (m *Manager) SetPassword(password string) (string, error) {
	if len(password) < 4 {
		return "", ErrPasswordTooShort
	}
	if m.Enabled() {
		return "", ErrAlreadyEnabled
	}
	secret, err := randomSecret()
	if err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	s := &store{PasswordHash: hashPassword(password), Secret: secret}
	if err := m.save(s); err != nil {
		return "", err
	}
	return m.issueToken(s.Secret)
}

// Login verifies password and, on success, issues a fresh session_token.
func (m *Manager) Login(password string) (string, error) {
	s, err := m.load()
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", ErrAuthNotEnabled
	}
	if hashPassword(password) != s.PasswordHash {
		return "", ErrWrongPassword
	}
	return m.issueToken(s.Secret)
}

// VerifyToken reports whether token is a currently-valid session_token.
func (m *Manager) VerifyToken(token string) bool {
	if token == "" {
		return false
	}
	s, err := m.load()
	if err != nil || s == nil {
		return false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.Secret), nil
	})
	return err == nil && parsed.Valid
}

func (m *Manager) issueToken(secret string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// SessionTTL is the cookie Max-Age in seconds.
func SessionTTL() int { return int(sessionTTL.Seconds()) }

// Package session carries the selected database through each request as a
// signed token instead of process-wide state: /connect verifies the
// credentials and issues a token, every later request re-derives its own DSN
// from that token and opens (and closes) its own handle.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// Credentials identify one database selection. The password never leaves the
// token unencrypted.
type Credentials struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// DSN renders the keyword/value connection string for the postgres driver.
func (c Credentials) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

type Manager struct {
	secret []byte
	aead   cipher.AEAD
	ttl    time.Duration
}

// NewManager builds a session manager. The cipher key is stretched to a
// 256-bit AES-GCM key; the secret signs the HS256 session tokens.
func NewManager(secret, cipherKey string, ttl time.Duration) (*Manager, error) {
	key := sha256.Sum256([]byte(cipherKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to build session cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to build session cipher: %w", err)
	}
	return &Manager{
		secret: []byte(secret),
		aead:   aead,
		ttl:    ttl,
	}, nil
}

// IssueToken signs a token carrying the database selection, valid for the
// configured TTL.
func (m *Manager) IssueToken(creds Credentials) (string, error) {
	encrypted, err := m.encrypt(creds.Password)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"db_host":     creds.Host,
		"db_port":     creds.Port,
		"db_name":     creds.Name,
		"db_user":     creds.User,
		"db_password": encrypted,
		"iat":         now.Unix(),
		"exp":         now.Add(m.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and recovers the credentials.
func (m *Manager) ParseToken(raw string) (*Credentials, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	password, err := m.decrypt(stringClaim(claims, "db_password"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	return &Credentials{
		Host:     stringClaim(claims, "db_host"),
		Port:     stringClaim(claims, "db_port"),
		Name:     stringClaim(claims, "db_name"),
		User:     stringClaim(claims, "db_user"),
		Password: password,
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func (m *Manager) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to encrypt password: %w", err)
	}
	sealed := m.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (m *Manager) decrypt(encoded string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < m.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:m.aead.NonceSize()], sealed[m.aead.NonceSize():]
	plaintext, err := m.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned for malformed or tampered document tokens.
	ErrInvalidToken = errors.New("invalid document token")
	// ErrTokenExpired is returned when the token validity window has passed.
	ErrTokenExpired = errors.New("document token expired")
)

// DocumentRef is the metadata the file storage service binds into a token.
type DocumentRef struct {
	OwnerID   string
	Path      string
	ExpiresAt time.Time
}

// DocumentSigner creates and validates signed document-reference tokens exchanged with file storage.
type DocumentSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDocumentSigner constructs a signer with the provided secret and TTL.
func NewDocumentSigner(secret string, ttl time.Duration) *DocumentSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DocumentSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a signed token referencing the owning record and stored path.
func (s *DocumentSigner) Generate(ownerID, path string) (string, time.Time, error) {
	if ownerID == "" || path == "" {
		return "", time.Time{}, fmt.Errorf("ownerID and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(path))
	ts := fmt.Sprintf("%d", expiresAt.Unix())
	token := strings.Join([]string{ownerID, ts, encodedPath, s.sign(ownerID, ts, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Verify validates a token and returns the embedded reference.
func (s *DocumentSigner) Verify(token string) (DocumentRef, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return DocumentRef{}, ErrInvalidToken
	}
	ownerID, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("%w: decode path: %v", ErrInvalidToken, err)
	}
	var expUnix int64
	if _, err := fmt.Sscanf(ts, "%d", &expUnix); err != nil {
		return DocumentRef{}, fmt.Errorf("%w: invalid timestamp", ErrInvalidToken)
	}
	if !hmac.Equal([]byte(s.sign(ownerID, ts, encodedPath)), []byte(signature)) {
		return DocumentRef{}, fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return DocumentRef{}, ErrTokenExpired
	}
	return DocumentRef{OwnerID: ownerID, Path: string(rawPath), ExpiresAt: expiresAt}, nil
}

func (s *DocumentSigner) sign(ownerID, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(ownerID + "|" + ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionIssuer = "minicatalog-session"

var ErrInvalidToken = errors.New("invalid session token")

// TokenMaker signs the token that carries a session's identity and expiry.
type TokenMaker struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenMaker uses secret as the HMAC key. An empty secret gets a random
// per-process key, which is enough since sessions are never persisted.
func NewTokenMaker(secret string) *TokenMaker {
	key := []byte(secret)
	if len(key) == 0 {
		key = randomKey()
	}
	return &TokenMaker{
		secret: key,
		issuer: sessionIssuer,
		now:    time.Now,
	}
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (t *TokenMaker) New(sessionID, username string, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(ttl)

	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   username,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (t *TokenMaker) Parse(tokenStr string) (Claims, error) {
	var c Claims

	token, err := jwt.ParseWithClaims(tokenStr, &c, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || token == nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if c.Username == "" {
		return Claims{}, ErrInvalidToken
	}

	return c, nil
}

func randomKey() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("auth: read random key: " + err.Error())
	}
	return []byte(hex.EncodeToString(b))
}

package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 15 * time.Minute

var errTokenInvalid = errors.New("token invalid")

// Tokens issues and verifies identity tokens with a shared HMAC key. Any
// service holding the key verifies offline; nothing calls back to the issuer.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token whose subject is the account id.
func (t *Tokens) Issue(accountID int64) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return signTokenFn(jwt.NewWithClaims(jwt.SigningMethodHS256, claims), t.secret)
}

// Verify checks signature, algorithm and expiry and returns the account id.
func (t *Tokens) Verify(token string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := parseWithClaimsFn(token, claims, func(_ *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, err
	}
	if !parsed.Valid {
		return 0, errTokenInvalid
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errTokenInvalid
	}
	return id, nil
}

var (
	parseWithClaimsFn = jwt.ParseWithClaims
	signTokenFn       = func(token *jwt.Token, key []byte) (string, error) {
		return token.SignedString(key)
	}
)

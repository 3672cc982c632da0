package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidTicket = errors.New("invalid_ticket")
	ErrExpiredTicket = errors.New("expired_ticket")
)

// Claims is the join-ticket payload binding a connection to a stable
// player identity.
type Claims struct {
	PlayerID string `json:"pid"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 join tickets. With an empty secret verification is
// disabled and the client-reported identity is trusted, which is the
// development default.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

func (v *Verifier) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidTicket
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredTicket
		}
		return Claims{}, ErrInvalidTicket
	}
	if !parsed.Valid || claims.PlayerID == "" {
		return Claims{}, ErrInvalidTicket
	}
	return claims, nil
}

// Sign mints a ticket, used by the admin surface and tests.
func (v *Verifier) Sign(playerID, name string, ttl time.Duration) (string, error) {
	claims := Claims{
		PlayerID: playerID,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Package redirect carries a user's intended destination across the OTP
// verification detour. The destination travels in a short-lived HS256 token
// bound to the user instead of server-side session state; Redis, when
// available, makes each token usable once.
package redirect

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// TokenTTL bounds how long an intended destination stays usable.
	TokenTTL  = 30 * time.Minute
	audience  = "intended-destination"
	keyPrefix = "intended:"
)

var (
	ErrInvalid  = errors.New("intended destination token invalid")
	ErrConsumed = errors.New("intended destination token already used")
)

// Claims is the payload of an intended destination token.
type Claims struct {
	Dest      string `json:"dest"`
	VehicleID uint64 `json:"vid,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and redeems intended destination tokens.
type Signer struct {
	secret []byte
	rdb    *redis.Client
	now    func() time.Time
}

type Option func(*Signer)

// WithClock replaces the wall clock used for issuing and validating tokens.
func WithClock(now func() time.Time) Option { return func(s *Signer) { s.now = now } }

// NewSigner returns a signer. rdb may be nil, in which case tokens can be
// redeemed repeatedly until they expire.
func NewSigner(secret string, rdb *redis.Client, opts ...Option) *Signer {
	s := &Signer{secret: []byte(secret), rdb: rdb, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sign binds dest to the user. Destinations that are not local paths are
// rejected.
func (s *Signer) Sign(userID uint64, dest string, vehicleID uint64) (string, error) {
	if !SafePath(dest) {
		return "", ErrInvalid
	}
	now := s.now()
	claims := Claims{
		Dest:      dest,
		VehicleID: vehicleID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies the token and that it was issued to userID.
func (s *Signer) Parse(token string, userID uint64) (*Claims, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalid
	}
	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalid
	}
	if claims.Subject != strconv.FormatUint(userID, 10) || !SafePath(claims.Dest) {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Consume parses the token and marks it used.
func (s *Signer) Consume(ctx context.Context, token string, userID uint64) (*Claims, error) {
	claims, err := s.Parse(token, userID)
	if err != nil {
		return nil, err
	}
	if s.rdb == nil {
		return claims, nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	first, err := s.rdb.SetNX(ctx, keyPrefix+claims.ID, userID, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, ErrConsumed
	}
	return claims, nil
}

// Resolve picks where a freshly verified user goes next: the intended
// destination when the token is valid and unused, otherwise the booking page
// of the vehicle, otherwise the booking index.
func (s *Signer) Resolve(ctx context.Context, token string, userID, vehicleID uint64) string {
	if token != "" {
		if claims, err := s.Consume(ctx, token, userID); err == nil {
			return claims.Dest
		}
	}
	return Fallback(vehicleID)
}

// Fallback is the destination used when no intended destination applies.
func Fallback(vehicleID uint64) string {
	if vehicleID > 0 {
		return "/client/booking/" + strconv.FormatUint(vehicleID, 10)
	}
	return "/client/booking"
}

// SafePath reports whether p is a path on this host. Absolute and
// scheme-relative URLs are refused.
func SafePath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

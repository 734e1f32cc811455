package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

//Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	//ErrMissingToken is returned when a request carries no Authorization header
	ErrMissingToken = errors.New("not authenticated")
	//ErrInvalidScheme is returned for Authorization headers that are not bearer tokens
	ErrInvalidScheme = errors.New("invalid authentication scheme")
	//ErrInvalidToken is returned for tokens that fail verification or have expired
	ErrInvalidToken = errors.New("invalid token or expired token")
)

//Claims is the payload of an access token
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	CompanyID uuid.UUID `json:"company_id"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}

//Identity is the verified caller of a request
type Identity struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
}

//HasRole reports whether the identity holds one of the given roles
func (i *Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

//Verifier checks HS256 signed access tokens
type Verifier struct {
	secret []byte
}

//NewVerifier returns a Verifier for tokens signed with secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

//FromAuthorizationHeader extracts and verifies the bearer token in header
func (v *Verifier) FromAuthorizationHeader(header string) (*Identity, error) {
	if header == "" {
		return nil, ErrMissingToken
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidScheme
	}

	return v.Verify(strings.TrimSpace(token))
}

//Verify parses token and returns the identity it carries
func (v *Verifier) Verify(token string) (*Identity, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.ExpiresAt == nil || claims.CompanyID == uuid.Nil || claims.Role == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: claims.UserID, CompanyID: claims.CompanyID, Role: claims.Role}, nil
}

//NewToken signs an access token for identity that expires after ttl
func (v *Verifier) NewToken(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := &Claims{
		UserID:    identity.UserID,
		CompanyID: identity.CompanyID,
		Role:      identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type identityKey struct{}

//WithIdentity returns a copy of ctx carrying identity
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

//FromContext returns the identity stored in ctx, if any
func FromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}

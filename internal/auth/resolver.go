package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is the cookie that carries the session token.
const DefaultCookieName = "token"

var (
	ErrMissingResolverSigningKey = errors.New("auth resolver: signing key required")
	ErrMissingResolverIssuer     = errors.New("auth resolver: issuer required")
	ErrMissingToken              = errors.New("auth resolver: token required")
	ErrInvalidToken              = errors.New("auth resolver: invalid token")
	ErrExpiredToken              = errors.New("auth resolver: token expired")
	ErrInvalidSubject            = errors.New("auth resolver: subject must be an integer user id")
)

// State is the outcome of decoding a request's token. The zero value is unauthenticated.
type State struct {
	subject int64
	reason  error
}

// Authorized builds the authorized state for subject.
func Authorized(subject int64) State {
	return State{subject: subject}
}

// Unauthenticated builds the unauthenticated state, keeping reason for diagnostics.
func Unauthenticated(reason error) State {
	if reason == nil {
		reason = ErrMissingToken
	}
	return State{reason: reason}
}

// Authorized reports whether the request carried a valid, unexpired token.
func (s State) Authorized() bool {
	return s.subject > 0
}

// Subject returns the user id from the token; zero when unauthenticated.
func (s State) Subject() int64 {
	return s.subject
}

// Reason explains why the state is unauthenticated. It is never shown to clients.
func (s State) Reason() error {
	if s.Authorized() {
		return nil
	}
	if s.reason == nil {
		return ErrMissingToken
	}
	return s.reason
}

// ResolverConfig describes how tokens are located and verified.
type ResolverConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// Resolver turns the token cookie of a request into a State.
type Resolver struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	clock         func() time.Time
}

// NewResolver constructs a Resolver with the provided configuration.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingResolverSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingResolverIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		clock:         clock,
	}, nil
}

// CookieName returns the cookie name the resolver reads.
func (r *Resolver) CookieName() string {
	return r.cookieName
}

// ResolveToken decodes a raw token string. Any failure yields an unauthenticated state.
func (r *Resolver) ResolveToken(tokenString string) State {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Unauthenticated(ErrMissingToken)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return r.signingSecret, nil
		},
		jwt.WithTimeFunc(r.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(r.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Unauthenticated(ErrExpiredToken)
		}
		return Unauthenticated(fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}
	if parsed == nil || !parsed.Valid {
		return Unauthenticated(ErrInvalidToken)
	}

	subject, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || subject <= 0 {
		return Unauthenticated(ErrInvalidSubject)
	}
	return Authorized(subject)
}

// Resolve reads the configured cookie from the request and decodes it.
func (r *Resolver) Resolve(request *http.Request) State {
	if request == nil {
		return Unauthenticated(ErrMissingToken)
	}
	cookie, err := request.Cookie(r.cookieName)
	if err != nil || cookie == nil {
		return Unauthenticated(ErrMissingToken)
	}
	return r.ResolveToken(cookie.Value)
}

package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	userContextKey      = "user.id"
	bearerScheme        = "Bearer "
	// exp and nbf are checked with this much tolerance for clock skew.
	clockSkew = time.Minute
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// AuthOptions configures token verification. A non-empty SharedSecret
// switches to HS256 tokens signed with it; otherwise RS256 keys come from the
// JWKS.
type AuthOptions struct {
	Audience     string
	Issuer       string
	SharedSecret string
	KeyCacheTTL  time.Duration
}

// Auth verifies bearer tokens. The token subject is the board owner id.
type Auth struct {
	audience string
	issuer   string
	shared   bool

	jwks        *keyfunc.JWKS
	parser      *jwt.Parser
	keyFunc     jwt.Keyfunc
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance. jwks may be nil when a shared secret is
// configured.
func NewAuth(jwks *keyfunc.JWKS, opts AuthOptions) *Auth {
	a := &Auth{audience: opts.Audience, issuer: opts.Issuer, jwks: jwks, keyCacheTTL: opts.KeyCacheTTL}
	if a.keyCacheTTL <= 0 {
		a.keyCacheTTL = defaultJWKSCacheTTL
	}
	if opts.SharedSecret != "" {
		secret := []byte(opts.SharedSecret)
		a.shared = true
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
		a.keyFunc = func(*jwt.Token) (any, error) { return secret, nil }
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
		a.keyFunc = a.keyForToken
	}
	return a
}

// SharedSecret reports whether tokens are verified with an HS256 secret.
func (a *Auth) SharedSecret() bool { return a.shared }

// UserIDFromAuthHeader returns the owner id carried by an Authorization
// header value.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerToken(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromToken(token)
}

// UserIDFromToken verifies a compact JWT and returns its subject.
func (a *Auth) UserIDFromToken(token string) (string, error) {
	parsed, err := a.parser.Parse(token, a.keyFunc)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	return a.ownerFromClaims(claims, time.Now())
}

func (a *Auth) ownerFromClaims(claims jwt.MapClaims, now time.Time) (string, error) {
	skewed := now.Add(clockSkew).Unix()
	if !claims.VerifyExpiresAt(skewed, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(skewed, false) {
		return "", errors.New("token not valid yet")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, false) {
		return "", errors.New("invalid issuer")
	}
	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

// keyForToken resolves RS256 keys through the JWKS, caching them by kid.
func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

// bearerToken extracts the compact JWT from a "Bearer <jwt>" header value.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(header, bearerScheme)
	if !ok || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// requireUser rejects requests without a valid bearer token and stores the
// token subject for the board handlers.
func requireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := metricsFrom(c)
			start := time.Now()
			userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			m.ObserveAuth(time.Since(start))
			if err != nil {
				m.SetErrorStage("auth")
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			c.Set(userContextKey, userID)
			return next(c)
		}
	}
}

// userFrom returns the owner id stored by requireUser.
func userFrom(c echo.Context) string {
	id, _ := c.Get(userContextKey).(string)
	return id
}

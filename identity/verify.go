package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"company-tasks-api/domain"
)

const (
	DefaultJWKSURL   = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	issuerPrefix     = "https://securetoken.google.com/"
	verifiedTokenTTL = 120 * time.Second
	defaultKeyTTL    = 15 * time.Minute
	maxCachedTokens  = 10000
)

var (
	ErrMissingToken = domain.E(domain.KindUnauthenticated, "authorization header required")
	ErrTokenExpired = domain.E(domain.KindUnauthenticated, "token expired")
	ErrInvalidToken = domain.E(domain.KindUnauthenticated, "invalid token")
	ErrAuthFailed   = domain.E(domain.KindUnauthenticated, "authentication failed")
)

// VerifierConfig configures a Verifier. A non-empty TestSecret switches
// verification to HS256 for local runs and JWKS is then ignored.
type VerifierConfig struct {
	JWKS        *keyfunc.JWKS
	ProjectID   string
	TestSecret  []byte
	KeyCacheTTL time.Duration
}

// Verifier resolves ID tokens to user ids. Successful verifications are
// remembered for up to 120s so repeated requests skip signature checks.
type Verifier struct {
	jwks       *keyfunc.JWKS
	audience   string
	issuer     string
	testSecret []byte
	parser     *jwt.Parser
	now        func() time.Time

	keyCache    sync.Map
	keyCacheTTL time.Duration

	mu       sync.Mutex
	verified map[string]verifiedToken
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

type verifiedToken struct {
	userID    string
	expiresAt time.Time
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	v := &Verifier{
		jwks:        cfg.JWKS,
		audience:    cfg.ProjectID,
		testSecret:  cfg.TestSecret,
		keyCacheTTL: cfg.KeyCacheTTL,
		now:         time.Now,
		verified:    make(map[string]verifiedToken),
	}
	if cfg.ProjectID != "" {
		v.issuer = issuerPrefix + cfg.ProjectID
	}
	if v.keyCacheTTL == 0 {
		v.keyCacheTTL = defaultKeyTTL
	}
	methods := []string{"RS256"}
	if len(v.testSecret) > 0 {
		methods = []string{"HS256"}
	}
	v.parser = jwt.NewParser(jwt.WithValidMethods(methods))
	return v
}

// Verify resolves an Authorization header value to a user id. The header
// may carry the token with or without the "Bearer " prefix.
func (v *Verifier) Verify(_ context.Context, header string) (string, error) {
	token := bearerToken(header)
	if token == "" {
		return "", ErrMissingToken
	}

	now := v.now()
	if uid, ok := v.lookup(token, now); ok {
		return uid, nil
	}

	parsed, err := v.parser.Parse(token, v.keyFor)
	if err != nil {
		return "", classifyParseError(err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return "", domain.Wrap(domain.KindUnauthenticated, ErrInvalidToken.Message, errors.New("invalid audience"))
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return "", domain.Wrap(domain.KindUnauthenticated, ErrInvalidToken.Message, errors.New("invalid issuer"))
	}
	sub, _ := claims["sub"].(string)
	if sub == "" || len(sub) > 128 {
		return "", domain.Wrap(domain.KindUnauthenticated, ErrInvalidToken.Message, errors.New("missing sub"))
	}

	expiresAt := now.Add(verifiedTokenTTL)
	if exp, ok := claims["exp"].(float64); ok {
		if tokenExp := time.Unix(int64(exp), 0); tokenExp.Before(expiresAt) {
			expiresAt = tokenExp
		}
	}
	v.remember(token, sub, now, expiresAt)
	return sub, nil
}

// bearerToken strips an optional case-insensitive "Bearer" scheme. A header
// holding only the scheme yields "".
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const scheme = "bearer"
	if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		rest := header[len(scheme):]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}
	return header
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.Wrap(domain.KindUnauthenticated, ErrTokenExpired.Message, err)
	case errors.Is(err, errKeysUnavailable):
		return domain.Wrap(domain.KindUnauthenticated, ErrAuthFailed.Message, err)
	default:
		return domain.Wrap(domain.KindUnauthenticated, ErrInvalidToken.Message, err)
	}
}

var errKeysUnavailable = errors.New("jwks not configured")

func (v *Verifier) keyFor(token *jwt.Token) (any, error) {
	if len(v.testSecret) > 0 {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.testSecret, nil
	}
	if v.jwks == nil {
		return nil, errKeysUnavailable
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && v.keyCacheTTL > 0 {
		if cached, ok := v.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if v.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			v.keyCache.Delete(kid)
		}
	}

	key, err := v.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" && v.keyCacheTTL > 0 {
		v.keyCache.Store(kid, cachedKey{key: key, expiresAt: v.now().Add(v.keyCacheTTL)})
	}
	return key, nil
}

func (v *Verifier) lookup(token string, now time.Time) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.verified[token]
	if !ok {
		return "", false
	}
	if !now.Before(entry.expiresAt) {
		delete(v.verified, token)
		return "", false
	}
	return entry.userID, true
}

func (v *Verifier) remember(token, userID string, now, expiresAt time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.verified) >= maxCachedTokens {
		for k, e := range v.verified {
			if !now.Before(e.expiresAt) {
				delete(v.verified, k)
			}
		}
	}
	if len(v.verified) < maxCachedTokens {
		v.verified[token] = verifiedToken{userID: userID, expiresAt: expiresAt}
	}
}

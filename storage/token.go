package storage

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"

	"company-tasks-api/domain"
)

const (
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	DatastoreScope  = "https://www.googleapis.com/auth/datastore"

	jwtBearerGrant   = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL     = time.Hour
	refreshMargin    = 300 * time.Second
	defaultTokenLife = time.Hour
)

// ServiceAccount holds the signing credentials for the assertion grant.
type ServiceAccount struct {
	Email      string
	PrivateKey string
}

// TokenSource caches the service access token and refreshes it once it is
// within refreshMargin of expiry. Concurrent refreshes are allowed; the lock
// only guards the cached pair and is never held across the exchange.
type TokenSource struct {
	account  ServiceAccount
	tokenURL string
	scope    string
	pl       runtime.Pipeline
	now      func() time.Time

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// NewTokenSource builds a token source exchanging assertions at tokenURL.
func NewTokenSource(account ServiceAccount, tokenURL string, httpClient *http.Client) *TokenSource {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &TokenSource{
		account:  account,
		tokenURL: tokenURL,
		scope:    DatastoreScope,
		pl:       NewPipeline(httpClient),
		now:      time.Now,
	}
}

func (s *TokenSource) cached(now time.Time) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token != "" && now.Before(s.expiry.Add(-refreshMargin)) {
		return s.token, true
	}
	return "", false
}

// Token returns a valid access token, exchanging a fresh assertion when needed.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	now := s.now()
	if tok, ok := s.cached(now); ok {
		return tok, nil
	}

	if s.account.Email == "" || s.account.PrivateKey == "" {
		return "", domain.E(domain.KindUnauthenticated, "missing service credentials")
	}
	assertion, err := s.sign(now)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)
	status, body, err := Send(ctx, s.pl, http.MethodPost, s.tokenURL, []byte(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", domain.E(domain.KindUnauthenticated, "failed to get access token")
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := sonic.Unmarshal(body, &resp); err != nil || resp.AccessToken == "" {
		return "", domain.E(domain.KindUnauthenticated, "failed to get access token")
	}
	life := defaultTokenLife
	if resp.ExpiresIn > 0 {
		life = time.Duration(resp.ExpiresIn) * time.Second
	}

	s.mu.Lock()
	s.token = resp.AccessToken
	s.expiry = now.Add(life)
	s.mu.Unlock()
	return resp.AccessToken, nil
}

func (s *TokenSource) sign(now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.account.PrivateKey))
	if err != nil {
		return "", domain.Wrap(domain.KindUnauthenticated, "invalid service private key", err)
	}
	claims := jwt.MapClaims{
		"iss":   s.account.Email,
		"scope": s.scope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", domain.Wrap(domain.KindUnauthenticated, "sign assertion", err)
	}
	return signed, nil
}

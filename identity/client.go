package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"company-tasks-api/domain"
	"company-tasks-api/storage"
)

const DefaultBaseURL = "https://identitytoolkit.googleapis.com"

var (
	ErrEmailExists        = domain.E(domain.KindConflict, "Email already exists")
	ErrInvalidCredentials = domain.E(domain.KindUnauthenticated, "invalid credentials")
)

// UserRecorder persists the bookkeeping document written after sign-up.
type UserRecorder interface {
	UpsertUserRecord(ctx context.Context, userID, email string, createdAt time.Time) error
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Records    UserRecorder
	Logger     *log.Logger
}

// Client calls the identity provider's password sign-up and sign-in endpoints.
type Client struct {
	pl      runtime.Pipeline
	base    string
	apiKey  string
	records UserRecorder
	logger  *log.Logger
	now     func() time.Time
}

func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("identity: api key is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		pl:      storage.NewPipeline(opts.HTTPClient),
		base:    base,
		apiKey:  opts.APIKey,
		records: opts.Records,
		logger:  logger,
		now:     time.Now,
	}, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type passwordResponse struct {
	LocalID string `json:"localId"`
	IDToken string `json:"idToken"`
}

func (c *Client) endpoint(method string) string {
	return c.base + "/v1/accounts:" + method + "?key=" + url.QueryEscape(c.apiKey)
}

func (c *Client) post(ctx context.Context, method string, creds domain.Credentials) (int, []byte, error) {
	body, err := sonic.Marshal(passwordRequest{Email: creds.Email, Password: creds.Password, ReturnSecureToken: true})
	if err != nil {
		return 0, nil, domain.Wrap(domain.KindInternal, "encode identity request", err)
	}
	return storage.Send(ctx, c.pl, http.MethodPost, c.endpoint(method), body, "application/json")
}

// SignUp registers a new account and returns its first session. The
// bookkeeping record is best effort: a failed write is logged only.
func (c *Client) SignUp(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
	status, body, err := c.post(ctx, "signUp", creds)
	if err != nil {
		return domain.Session{}, err
	}
	if status != http.StatusOK {
		if strings.Contains(string(body), "EMAIL_EXISTS") {
			return domain.Session{}, ErrEmailExists
		}
		return domain.Session{}, domain.E(domain.KindInternal, fmt.Sprintf("identity signup failed: %d", status))
	}
	session, err := decodeSession(body)
	if err != nil {
		return domain.Session{}, err
	}

	if c.records != nil {
		if err := c.records.UpsertUserRecord(ctx, session.UserID, creds.Email, c.now()); err != nil {
			c.logger.WithFields(log.Fields{
				"user_id": session.UserID,
				"error":   err.Error(),
			}).Warn("user record write failed")
		}
	}
	return session, nil
}

// SignIn exchanges credentials for a session. Any rejection by the provider
// is reported as ErrInvalidCredentials.
func (c *Client) SignIn(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
	status, body, err := c.post(ctx, "signInWithPassword", creds)
	if err != nil {
		return domain.Session{}, err
	}
	if status != http.StatusOK {
		c.logger.WithField("status", status).Debug("sign in rejected")
		return domain.Session{}, ErrInvalidCredentials
	}
	return decodeSession(body)
}

func decodeSession(body []byte) (domain.Session, error) {
	var resp passwordResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return domain.Session{}, domain.Wrap(domain.KindInternal, "decode identity response", err)
	}
	if resp.LocalID == "" || resp.IDToken == "" {
		return domain.Session{}, domain.E(domain.KindInternal, "identity response missing token")
	}
	return domain.Session{UserID: resp.LocalID, BearerToken: resp.IDToken}, nil
}

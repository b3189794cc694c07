package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"company-tasks-api/domain"
)

// Store is the uncached surface of the remote store used by handlers.
type Store interface {
	ListCompanies(ctx context.Context, userID string) ([]domain.Company, error)
	GetCompany(ctx context.Context, userID, companyID string) (*domain.Company, error)
	UpsertCompany(ctx context.Context, userID string, company domain.Company) error
	DeleteCompany(ctx context.Context, userID, companyID string) error
	FindTask(ctx context.Context, userID, taskID string) (*domain.Task, error)
	UpsertTask(ctx context.Context, userID string, task domain.Task) error
	DeleteTask(ctx context.Context, userID, companyID, taskID string) error
}

// Lister answers the cached per-user listings.
type Lister interface {
	ListCompanies(ctx context.Context, userID string) ([]domain.Company, error)
	ListAllTasks(ctx context.Context, userID string) ([]domain.Task, error)
}

// Accounts creates and signs in users at the identity provider.
type Accounts interface {
	SignUp(ctx context.Context, creds domain.Credentials) (domain.Session, error)
	SignIn(ctx context.Context, creds domain.Credentials) (domain.Session, error)
}

// Authenticator resolves an Authorization header value to a user id.
type Authenticator interface {
	Verify(ctx context.Context, header string) (string, error)
}

// Deps carries the process-wide collaborators built once in main.
type Deps struct {
	Store    Store
	Lister   Lister
	Accounts Accounts
	Auth     Authenticator
	Limiter  *RateLimiter
	Logger   *log.Logger

	// NewID and Now default to uuid.NewString and time.Now.
	NewID func() string
	Now   func() time.Time
}

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"company-tasks-api/domain"
	"company-tasks-api/identity"
)

const (
	testUser  = "user-1"
	testToken = "good-token"
)

// memStore keeps companies and tasks per user in insertion order.
type memStore struct {
	mu        sync.Mutex
	companies map[string][]domain.Company
	tasks     map[string][]domain.Task
	err       error
	taskErr   map[string]error
	calls     int
}

func newMemStore() *memStore {
	return &memStore{
		companies: make(map[string][]domain.Company),
		tasks:     make(map[string][]domain.Task),
		taskErr:   make(map[string]error),
	}
}

func (m *memStore) touch() error {
	m.calls++
	return m.err
}

func (m *memStore) ListCompanies(_ context.Context, uid string) ([]domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.touch(); err != nil {
		return nil, err
	}
	return append([]domain.Company{}, m.companies[uid]...), nil
}

func (m *memStore) GetCompany(_ context.Context, uid, cid string) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.touch(); err != nil {
		return nil, err
	}
	for _, c := range m.companies[uid] {
		if c.ID == cid {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpsertCompany(_ context.Context, uid string, company domain.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.touch(); err != nil {
		return err
	}
	for i, c := range m.companies[uid] {
		if c.ID == company.ID {
			m.companies[uid][i] = company
			return nil
		}
	}
	m.companies[uid] = append(m.companies[uid], company)
	return nil
}

func (m *memStore) DeleteCompany(_ context.Context, uid, cid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.touch(); err != nil {
		return err
	}
	kept := m.companies[uid][:0]
	for _, c := range m.companies[uid] {
		if c.ID != cid {
			kept = append(kept, c)
		}
	}
	m.companies[uid] = kept
	return nil
}

func (m *memStore) FindTask(_ context.Context, uid, tid string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.touch(); err != nil {
		return nil, err
	}
	for _, t := range m.tasks[uid] {
		if t.ID == tid {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

// UpsertTask keys tasks by (company, id) like the nested document layout.
func (m *memStore) UpsertTask(_ context.Context, uid string, task domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.touch(); err != nil {
		return err
	}
	if err := m.taskErr[task.CompanyID]; err != nil {
		return err
	}
	for i, t := range m.tasks[uid] {
		if t.ID == task.ID && t.CompanyID == task.CompanyID {
			m.tasks[uid][i] = task
			return nil
		}
	}
	m.tasks[uid] = append(m.tasks[uid], task)
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, uid, cid, tid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.touch(); err != nil {
		return err
	}
	kept := m.tasks[uid][:0]
	for _, t := range m.tasks[uid] {
		if !(t.ID == tid && t.CompanyID == cid) {
			kept = append(kept, t)
		}
	}
	m.tasks[uid] = kept
	return nil
}

func (m *memStore) ListAllTasks(_ context.Context, uid string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.touch(); err != nil {
		return nil, err
	}
	return append([]domain.Task{}, m.tasks[uid]...), nil
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeAuth struct{}

func (fakeAuth) Verify(_ context.Context, header string) (string, error) {
	token := strings.TrimPrefix(header, "Bearer ")
	switch token {
	case testToken:
		return testUser, nil
	case "other-token":
		return "user-2", nil
	case "expired":
		return "", identity.ErrTokenExpired
	case "revoked":
		return "", fmt.Errorf("token has been revoked")
	case "keys-down":
		return "", identity.ErrAuthFailed
	default:
		return "", identity.ErrInvalidToken
	}
}

type fakeAccounts struct {
	users map[string]string
	err   error
}

func (f *fakeAccounts) SignUp(_ context.Context, creds domain.Credentials) (domain.Session, error) {
	if f.err != nil {
		return domain.Session{}, f.err
	}
	if _, ok := f.users[creds.Email]; ok {
		return domain.Session{}, identity.ErrEmailExists
	}
	f.users[creds.Email] = creds.Password
	return domain.Session{UserID: "uid-" + creds.Email, BearerToken: "token-" + creds.Email}, nil
}

func (f *fakeAccounts) SignIn(_ context.Context, creds domain.Credentials) (domain.Session, error) {
	if f.err != nil {
		return domain.Session{}, f.err
	}
	if pw, ok := f.users[creds.Email]; !ok || pw != creds.Password {
		return domain.Session{}, identity.ErrInvalidCredentials
	}
	return domain.Session{UserID: "uid-" + creds.Email, BearerToken: "token-" + creds.Email}, nil
}

type testServer struct {
	e        *echo.Echo
	store    *memStore
	accounts *fakeAccounts
	hook     *test.Hook
	now      time.Time
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	ts := &testServer{
		e:        echo.New(),
		store:    newMemStore(),
		accounts: &fakeAccounts{users: map[string]string{}},
		hook:     hook,
		now:      time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	var seq int
	var seqMu sync.Mutex
	Register(ts.e, Deps{
		Store:    ts.store,
		Lister:   ts.store,
		Accounts: ts.accounts,
		Auth:     fakeAuth{},
		Limiter:  limiter,
		Logger:   logger,
		NewID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
		Now: func() time.Time { return ts.now },
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func expectDetail(t *testing.T, rec *httptest.ResponseRecorder, status int, detail string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var resp detailResponse
	decodeJSON(t, rec, &resp)
	if resp.Detail != detail {
		t.Fatalf("expected detail %q, got %q", detail, resp.Detail)
	}
}

func expectMessage(t *testing.T, rec *httptest.ResponseRecorder, message, id string) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp messageResponse
	decodeJSON(t, rec, &resp)
	if resp.Message != message || resp.ID != id {
		t.Fatalf("expected {%q, %q}, got %#v", message, id, resp)
	}
}

const companyBody = `{"name":"Acme","EIN":"12-3456789","startDate":"2020-01-01","stateIncorporated":"DE",
"contactPersonName":"Ann","contactPersonPhNumber":"555-0100","address1":"1 Main St","address2":"Suite 2",
"city":"Springfield","state":"IL","zip":"62701"}`

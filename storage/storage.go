package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"company-tasks-api/domain"
)

const (
	DefaultBaseURL = "https://firestore.googleapis.com/v1"

	moduleName    = "company-tasks-api/storage"
	moduleVersion = "v1.0.0"

	connectTimeout = 2 * time.Second
	requestTimeout = 5 * time.Second
	listPageSize   = 300

	companiesCollection = "companies"
	tasksCollection     = "Task"
	usersCollection     = "company-management-users"
)

// AccessTokener yields the service access token sent to the document store.
type AccessTokener interface {
	Token(ctx context.Context) (string, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	ProjectID  string
	HTTPClient *http.Client
	Tokens     AccessTokener
	Logger     *log.Logger
}

// Client talks to the document store REST surface. It is safe for concurrent
// use and is meant to be built once per process.
type Client struct {
	pl        runtime.Pipeline
	documents string
	logger    *log.Logger
}

// NewHTTPClient builds the pooled client shared by every remote call.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          500,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       500,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Timeout: requestTimeout}
}

// NewPipeline returns an azcore pipeline over the shared client with retries
// disabled: a failed remote call is a single failed request.
func NewPipeline(httpClient *http.Client, perCall ...policy.Policy) runtime.Pipeline {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return runtime.NewPipeline(moduleName, moduleVersion, runtime.PipelineOptions{PerCall: perCall}, &policy.ClientOptions{
		Transport: httpClient,
		Retry:     policy.RetryOptions{MaxRetries: -1},
		Telemetry: policy.TelemetryOptions{Disabled: true},
	})
}

// New creates a Client for the given project.
func New(opts Options) (*Client, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("storage: project id is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("storage: token source is required")
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
		pl:        NewPipeline(opts.HTTPClient, &bearerPolicy{tokens: opts.Tokens}),
		documents: base + "/projects/" + url.PathEscape(opts.ProjectID) + "/databases/(default)/documents",
		logger:    logger,
	}, nil
}

type bearerPolicy struct {
	tokens AccessTokener
}

func (p *bearerPolicy) Do(req *policy.Request) (*http.Response, error) {
	token, err := p.tokens.Token(req.Raw().Context())
	if err != nil {
		return nil, err
	}
	req.Raw().Header.Set("Authorization", "Bearer "+token)
	return req.Next()
}

func (c *Client) companiesPath(userID string) string {
	return c.documents + "/users/" + url.PathEscape(userID) + "/" + companiesCollection
}

func (c *Client) companyPath(userID, companyID string) string {
	return c.companiesPath(userID) + "/" + url.PathEscape(companyID)
}

func (c *Client) tasksPath(userID, companyID string) string {
	return c.companyPath(userID, companyID) + "/" + tasksCollection
}

func (c *Client) taskPath(userID, companyID, taskID string) string {
	return c.tasksPath(userID, companyID) + "/" + url.PathEscape(taskID)
}

func (c *Client) userRecordPath(userID string) string {
	return c.documents + "/" + usersCollection + "/" + url.PathEscape(userID)
}

// Send issues a request over pl and returns the status code and the downloaded body.
func Send(ctx context.Context, pl runtime.Pipeline, method, endpoint string, body []byte, contentType string) (int, []byte, error) {
	req, err := runtime.NewRequest(ctx, method, endpoint)
	if err != nil {
		return 0, nil, domain.Wrap(domain.KindInternal, "build request", err)
	}
	if body != nil {
		if err := req.SetBody(streaming.NopCloser(bytes.NewReader(body)), contentType); err != nil {
			return 0, nil, domain.Wrap(domain.KindInternal, "set request body", err)
		}
	}
	resp, err := pl.Do(req)
	if err != nil {
		return 0, nil, transportError(err)
	}
	payload, err := runtime.Payload(resp)
	if err != nil {
		return resp.StatusCode, nil, transportError(err)
	}
	return resp.StatusCode, payload, nil
}

func transportError(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Wrap(domain.KindTimeout, "request timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.Wrap(domain.KindTimeout, "request timeout", err)
	}
	return domain.Wrap(domain.KindNetwork, "network error", err)
}

func statusError(op string, status int, body []byte) error {
	msg := remoteMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return domain.E(domain.KindFromStatus(status), fmt.Sprintf("%s: remote status %d: %s", op, status, msg))
}

// remoteMessage pulls error.message out of a Google-style error body.
func remoteMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := sonic.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Error.Message
}

func isAbsent(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func (c *Client) getDocument(ctx context.Context, op, endpoint string) (*document, error) {
	status, body, err := Send(ctx, c.pl, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}
	if isAbsent(status) {
		return nil, nil
	}
	if !isSuccess(status) {
		return nil, statusError(op, status, body)
	}
	var doc document
	if err := sonic.Unmarshal(body, &doc); err != nil {
		c.logger.WithError(err).WithField("op", op).Warn("malformed document skipped")
		return nil, nil
	}
	return &doc, nil
}

// listDocuments follows nextPageToken until the collection is exhausted.
// Absent collections yield no documents and no error.
func (c *Client) listDocuments(ctx context.Context, op, endpoint string) ([]document, error) {
	var docs []document
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprint(listPageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		status, body, err := Send(ctx, c.pl, http.MethodGet, endpoint+"?"+q.Encode(), nil, "")
		if err != nil {
			return nil, err
		}
		if isAbsent(status) {
			return docs, nil
		}
		if !isSuccess(status) {
			return nil, statusError(op, status, body)
		}
		var page listResponse
		if err := sonic.Unmarshal(body, &page); err != nil {
			return nil, domain.Wrap(domain.KindInternal, op+": decode list", err)
		}
		for _, raw := range page.Documents {
			var doc document
			if err := sonic.Unmarshal(raw, &doc); err != nil {
				c.logger.WithError(err).WithField("op", op).Warn("malformed document skipped")
				continue
			}
			docs = append(docs, doc)
		}
		if page.NextPageToken == "" {
			return docs, nil
		}
		pageToken = page.NextPageToken
	}
}

// patchDocument creates or fully replaces the document at endpoint.
func (c *Client) patchDocument(ctx context.Context, op, endpoint string, fields map[string]value) error {
	body, err := sonic.Marshal(document{Fields: fields})
	if err != nil {
		return domain.Wrap(domain.KindInternal, op+": encode document", err)
	}
	status, resp, err := Send(ctx, c.pl, http.MethodPatch, endpoint, body, "application/json")
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return statusError(op, status, resp)
	}
	return nil
}

func (c *Client) deleteDocument(ctx context.Context, op, endpoint string) error {
	status, resp, err := Send(ctx, c.pl, http.MethodDelete, endpoint, nil, "")
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return statusError(op, status, resp)
	}
	return nil
}

package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const testProject = "proj"

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// fakeStore is a minimal in-memory document store speaking the REST wire format.
type fakeStore struct {
	t      *testing.T
	prefix string

	mu       sync.Mutex
	docs     map[string]document
	order    []string
	requests []string
	fail     map[string]int
}

func newFakeStore(t *testing.T) (*fakeStore, *httptest.Server) {
	t.Helper()
	fs := &fakeStore{
		t:      t,
		prefix: "/projects/" + testProject + "/databases/(default)/documents/",
		docs:   make(map[string]document),
		fail:   make(map[string]int),
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)
	c, err := New(Options{BaseURL: srv.URL, ProjectID: testProject, HTTPClient: srv.Client(), Tokens: staticToken("svc-token"), Logger: logger})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// failPath makes every request whose path ends with suffix answer with status.
func (f *fakeStore) failPath(suffix string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[suffix] = status
}

func (f *fakeStore) put(path string, fields map[string]value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[path]; !ok {
		f.order = append(f.order, path)
	}
	f.docs[path] = document{Name: strings.TrimPrefix(f.prefix, "/") + path, Fields: fields}
}

func (f *fakeStore) putRaw(path string, doc document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[path]; !ok {
		f.order = append(f.order, path)
	}
	f.docs[path] = doc
}

func (f *fakeStore) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[path]
	return ok
}

func (f *fakeStore) requestCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer svc-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !strings.HasPrefix(r.URL.Path, f.prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, f.prefix)

	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+path)
	for suffix, status := range f.fail {
		if strings.HasSuffix(path, suffix) {
			f.mu.Unlock()
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"injected failure"}}`))
			return
		}
	}
	f.mu.Unlock()

	isCollection := len(strings.Split(path, "/"))%2 == 1
	switch {
	case r.Method == http.MethodGet && isCollection:
		f.list(w, path)
	case r.Method == http.MethodGet:
		f.mu.Lock()
		doc, ok := f.docs[path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, doc)
	case r.Method == http.MethodPatch:
		var doc document
		body, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(body, &doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.put(path, doc.Fields)
		f.mu.Lock()
		stored := f.docs[path]
		f.mu.Unlock()
		writeJSON(w, stored)
	case r.Method == http.MethodDelete:
		f.mu.Lock()
		delete(f.docs, path)
		f.mu.Unlock()
		writeJSON(w, map[string]any{})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeStore) list(w http.ResponseWriter, collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := listPage{}
	for _, p := range f.order {
		doc, ok := f.docs[p]
		if !ok {
			continue
		}
		parent := p[:strings.LastIndexByte(p, '/')]
		if parent == collection {
			resp.Documents = append(resp.Documents, doc)
		}
	}
	if len(resp.Documents) == 0 {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, resp)
}

// listPage is the wire shape of a list response as the remote writes it.
type listPage struct {
	Documents     []any  `json:"documents"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	data, _ := sonic.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("list companies: %w", E(KindUnavailable, "service unavailable"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected wrapped error to match kind sentinel")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("did not expect timeout match")
	}
	if !errors.Is(err, E(KindUnavailable, "service unavailable")) {
		t.Fatalf("expected exact message match")
	}
	if errors.Is(err, E(KindUnavailable, "other")) {
		t.Fatalf("did not expect match on different message")
	}
	if k, ok := KindOf(err); !ok || k != KindUnavailable {
		t.Fatalf("unexpected kind %v %v", k, ok)
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	if got := Wrap(KindNetwork, "network error", cause).Error(); got != "network error: dial tcp: refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := (&Error{Kind: KindConflict}).Error(); got != "conflict" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestKindFromStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusUnauthorized:        KindUnauthenticated,
		http.StatusForbidden:           KindForbidden,
		http.StatusNotFound:            KindNotFound,
		http.StatusConflict:            KindConflict,
		http.StatusTooManyRequests:     KindRateLimited,
		http.StatusBadGateway:          KindNetwork,
		http.StatusServiceUnavailable:  KindUnavailable,
		http.StatusGatewayTimeout:      KindGatewayTimeout,
		http.StatusInternalServerError: KindInternal,
		http.StatusTeapot:              KindInternal,
	}
	for code, want := range cases {
		if got := KindFromStatus(code); got != want {
			t.Fatalf("status %d: expected %v got %v", code, want, got)
		}
	}
}

func TestCredentialsValidate(t *testing.T) {
	cases := map[string]struct {
		creds Credentials
		ok    bool
	}{
		"valid":        {Credentials{Email: "ann@example.com", Password: "pw"}, true},
		"unicode":      {Credentials{Email: "jörg@bücher.de", Password: "pw"}, true},
		"empty_email":  {Credentials{Email: " ", Password: "pw"}, false},
		"empty_pw":     {Credentials{Email: "a@b.co", Password: ""}, false},
		"no_at":        {Credentials{Email: "invalid-email", Password: "pw"}, false},
		"two_at":       {Credentials{Email: "a@b@c.com", Password: "pw"}, false},
		"no_dot":       {Credentials{Email: "a@localhost", Password: "pw"}, false},
		"empty_local":  {Credentials{Email: "@example.com", Password: "pw"}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.creds.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCompanyValidate(t *testing.T) {
	c := Company{
		Name: "Acme", EIN: "12-3456789", StartDate: "2020-01-01", StateIncorporated: "DE",
		ContactPersonName: "Ann", ContactPersonPhNumber: "555-0100", Address1: "1 Main St",
		Address2: "Suite 2", City: "Springfield", State: "IL", Zip: "62701",
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Name = "  "
	err := c.Validate()
	if err == nil || err.Error() != "Company name is required and cannot be empty" {
		t.Fatalf("unexpected error: %v", err)
	}
}

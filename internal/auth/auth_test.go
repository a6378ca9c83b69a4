package auth

import (
	"net/http/httptest"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid token", "Bearer abc123", "abc123", false},
		{"trims whitespace", "Bearer  abc123 ", "abc123", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic abc123", "", true},
		{"empty token", "Bearer ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticateLegacyKeyGetsAdminScope(t *testing.T) {
	p, ok := Authenticate("admin-key", "admin-key", nil)
	if !ok {
		t.Fatal("legacy key should authenticate")
	}
	if !HasAnyScope(p, "*") {
		t.Error("legacy key should hold scope *")
	}
}

func TestAuthenticateScopedToken(t *testing.T) {
	tokens := []TokenConfig{
		{Token: "watch-token", Scopes: []string{"workspace:ro", " "}},
	}

	p, ok := Authenticate("watch-token", "admin-key", tokens)
	if !ok {
		t.Fatal("scoped token should authenticate")
	}
	if !HasAnyScope(p, "workspace:ro") {
		t.Error("missing workspace:ro scope")
	}
	if HasAnyScope(p, "chat:rw", "*") {
		t.Error("scoped token must not hold unrelated scopes")
	}
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	if _, ok := Authenticate("nope", "admin-key", nil); ok {
		t.Fatal("unknown token authenticated")
	}
	// Empty configured key must never match an empty presented token.
	if _, ok := Authenticate("", "", nil); ok {
		t.Fatal("empty token authenticated against empty key")
	}
}

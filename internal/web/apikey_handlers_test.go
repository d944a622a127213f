package web

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
)

func TestAPIKeyLifecycle(t *testing.T) {
	srv := testServer(t)
	cookie := sessionCookie(t, srv, alice)

	w := doJSON(t, srv, "POST", "/api/keys", map[string]string{"name": "laptop"}, withCookie(cookie))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var created apiKeyCreateResponse
	decode(t, w, &created)
	if !strings.HasPrefix(created.Key, "em_") {
		t.Errorf("key = %q, want em_ prefix", created.Key)
	}
	if created.APIKeyResponse.Name != "laptop" {
		t.Errorf("name = %q, want laptop", created.APIKeyResponse.Name)
	}

	// The new key authenticates as the same wallet.
	w = do(t, srv, "GET", "/api/keys", nil, withBearer(created.Key))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var keys []apiKeyResponse
	decode(t, w, &keys)
	if len(keys) != 1 || keys[0].ID != created.APIKeyResponse.ID {
		t.Fatalf("keys = %+v", keys)
	}
	if keys[0].LastUsedAt == nil {
		t.Error("expected last_used_at after use")
	}

	// Another wallet sees none of them and cannot delete them.
	bobCookie := sessionCookie(t, srv, bob)
	w = do(t, srv, "GET", "/api/keys", nil, withCookie(bobCookie))
	decode(t, w, &keys)
	if len(keys) != 0 {
		t.Errorf("bob sees %d keys, want 0", len(keys))
	}
	id := strconv.FormatInt(created.APIKeyResponse.ID, 10)
	if w := do(t, srv, "DELETE", "/api/keys/"+id, nil, withCookie(bobCookie)); w.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want %d", w.Code, http.StatusNotFound)
	}

	if w := do(t, srv, "DELETE", "/api/keys/"+id, nil, withCookie(cookie)); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := do(t, srv, "GET", "/api/keys", nil, withBearer(created.Key)); w.Code != http.StatusUnauthorized {
		t.Errorf("revoked key status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAPIKeysRequireAccount(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"list", "GET", "/api/keys"},
		{"create", "POST", "/api/keys"},
		{"delete", "DELETE", "/api/keys/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestBearerTokenInvalid(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/me", nil, withBearer("em_invalid"))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestDeleteKeyInvalidID(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "DELETE", "/api/keys/abc", nil, withCookie(sessionCookie(t, srv, alice)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func withForwardedFor(ip string) reqOption {
	return func(r *http.Request) { r.Header.Set("X-Forwarded-For", ip) }
}

func TestKeyFailureLimitIgnoresForwardedFor(t *testing.T) {
	srv := testServer(t)

	var last int
	for i := 0; i < 20; i++ {
		w := do(t, srv, "GET", "/api/me", nil, withBearer("em_wrong"), withForwardedFor("203.0.113."+strconv.Itoa(i+1)))
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after rotating X-Forwarded-For = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestKeyFailureLimitBehindTrustedProxy(t *testing.T) {
	srv, err := NewServer(Options{
		DB:         testDB(t),
		Network:    testNetwork,
		BaseURL:    "http://localhost:8080",
		Secret:     testSecret,
		TrustProxy: true,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	for i := 0; i < 20; i++ {
		w := do(t, srv, "GET", "/api/me", nil, withBearer("em_wrong"), withForwardedFor("203.0.113."+strconv.Itoa(i+1)))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("client %d: status = %d, want %d", i+1, w.Code, http.StatusUnauthorized)
		}
	}
}

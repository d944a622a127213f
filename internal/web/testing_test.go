package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/chain/chaintest"
	"github.com/evcraddock/estate-market/internal/config"
	"github.com/evcraddock/estate-market/internal/db"
	"github.com/evcraddock/estate-market/internal/property"
)

const (
	alice = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	bob   = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	carol = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"

	testSecret = "0123456789abcdef0123456789abcdef"
)

var errTransport = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")

var testNetwork = config.Network{
	Name:        "localhost",
	ChainID:     31337,
	RPCURL:      "http://127.0.0.1:8545",
	ExplorerURL: "https://explorer.test",
	Currency:    "ETH",
	Contracts: config.Contracts{
		PropertyToken: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
	},
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return d
}

func newTestServer(t *testing.T, backend chain.Backend) *Server {
	t.Helper()
	srv, err := NewServer(Options{
		DB:      testDB(t),
		Network: testNetwork,
		Backend: backend,
		BaseURL: "http://localhost:8080",
		Secret:  testSecret,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

// testServer has no chain; properties come from the local index only.
func testServer(t *testing.T) *Server {
	t.Helper()
	return newTestServer(t, nil)
}

func testChainServer(t *testing.T) (*Server, *chaintest.Backend) {
	t.Helper()
	backend := chaintest.New(testNetwork.ChainID)
	return newTestServer(t, backend), backend
}

func insertProperty(t *testing.T, srv *Server, tokenID, name, city, owner string, valuation int64) *property.Property {
	t.Helper()
	p, err := srv.props.Upsert(&property.Property{
		TokenID:   tokenID,
		Name:      name,
		Location:  property.Location{Address: "1 Main St", City: city},
		Valuation: valuation,
		Owner:     owner,
	})
	if err != nil {
		t.Fatalf("insert property: %v", err)
	}
	return p
}

// sessionCookie connects address and returns its session cookie.
func sessionCookie(t *testing.T, srv *Server, address string) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	if err := srv.sessions.Create(w, address); err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}
	return cookies[0]
}

// apiKey creates an API key for address.
func apiKey(t *testing.T, srv *Server, address string) string {
	t.Helper()
	raw, _, err := srv.apiKeys.Create("test", address)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	return raw
}

type reqOption func(*http.Request)

func withCookie(c *http.Cookie) reqOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withBearer(key string) reqOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+key) }
}

func withHTMX() reqOption {
	return func(r *http.Request) { r.Header.Set("HX-Request", "true") }
}

func withForm() reqOption {
	return func(r *http.Request) { r.Header.Set("Content-Type", "application/x-www-form-urlencoded") }
}

func do(t *testing.T, srv *Server, method, path string, body io.Reader, opts ...reqOption) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, body)
	for _, opt := range opts {
		opt(r)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}, opts ...reqOption) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}
	opts = append(opts, func(r *http.Request) { r.Header.Set("Content-Type", "application/json") })
	return do(t, srv, method, path, reader, opts...)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

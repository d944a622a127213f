package web

import (
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evcraddock/estate-market/internal/chain/chaintest"
)

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %q, want status ok", w.Body.String())
	}
}

func TestStaticFiles(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/static/style.css", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "css") {
		t.Errorf("content-type = %q, want css", w.Header().Get("Content-Type"))
	}
}

func TestDashboardDisconnectedShowsConnectPrompt(t *testing.T) {
	srv, _ := testChainServer(t)

	w := do(t, srv, "GET", "/", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `id="connect-prompt"`) {
		t.Error("expected connect prompt")
	}
	if strings.Contains(body, "Owned properties") {
		t.Error("disconnected dashboard should not show holdings")
	}
	if strings.Contains(body, "error-state") {
		t.Error("disconnected dashboard should not show an error")
	}
}

func TestDashboardConnected(t *testing.T) {
	srv, backend := testChainServer(t)
	backend.Mint(chaintest.Token{
		Owner:     common.HexToAddress(alice),
		Name:      "Harbor Loft",
		Location:  "12 Quay St, Lisbon, Portugal",
		Valuation: 450000,
	})
	backend.SetBalance(common.HexToAddress(alice), new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17)))

	w := do(t, srv, "GET", "/", nil, withCookie(sessionCookie(t, srv, alice)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{"Harbor Loft", "1.5 ETH", "$450,000", alice} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in dashboard", want)
		}
	}
	if strings.Contains(body, `id="connect-prompt"`) {
		t.Error("connected dashboard should not show the connect prompt")
	}
}

func TestDashboardChainFailureIsInline(t *testing.T) {
	srv, backend := testChainServer(t)
	backend.Err = errTransport

	w := do(t, srv, "GET", "/", nil, withCookie(sessionCookie(t, srv, alice)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "Couldn&#39;t reach the blockchain") {
		t.Errorf("expected inline chain error, got %s", w.Body.String())
	}
}

func TestDashboardWithoutWalletProvider(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/", nil, withCookie(sessionCookie(t, srv, alice)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "No wallet provider is available") {
		t.Error("expected missing wallet provider message")
	}
}

func TestMarketplace(t *testing.T) {
	srv := testServer(t)
	insertProperty(t, srv, "1", "Harbor Loft", "Lisbon", alice, 450000)
	insertProperty(t, srv, "2", "Ribeira House", "Porto", bob, 320000)

	t.Run("all", func(t *testing.T) {
		w := do(t, srv, "GET", "/marketplace", nil)
		body := w.Body.String()
		if !strings.Contains(body, "Harbor Loft") || !strings.Contains(body, "Ribeira House") {
			t.Error("expected both properties")
		}
		if !strings.Contains(body, "2 properties") {
			t.Error("expected summary count")
		}
	})

	t.Run("filter by city", func(t *testing.T) {
		w := do(t, srv, "GET", "/marketplace?city=porto", nil)
		body := w.Body.String()
		if strings.Contains(body, "Harbor Loft") || !strings.Contains(body, "Ribeira House") {
			t.Error("expected only the Porto property")
		}
	})

	t.Run("invalid filter shows inline error", func(t *testing.T) {
		w := do(t, srv, "GET", "/marketplace?min=cheap", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		body := w.Body.String()
		if !strings.Contains(body, "error-state") {
			t.Error("expected inline error")
		}
		if !strings.Contains(body, "Harbor Loft") {
			t.Error("expected unfiltered listings")
		}
	})

	t.Run("empty", func(t *testing.T) {
		w := do(t, srv, "GET", "/marketplace?city=Madrid", nil)
		if !strings.Contains(w.Body.String(), "No properties match") {
			t.Error("expected empty state")
		}
	})
}

func TestDetail(t *testing.T) {
	srv := testServer(t)
	p := insertProperty(t, srv, "1", "Harbor Loft", "Lisbon", alice, 450000)

	t.Run("disconnected", func(t *testing.T) {
		w := do(t, srv, "GET", "/property/1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		body := w.Body.String()
		if !strings.Contains(body, "Harbor Loft") {
			t.Error("expected property name")
		}
		if !strings.Contains(body, "Connect your wallet to make an offer") {
			t.Error("expected connect hint")
		}
	})

	t.Run("buyer sees offer form", func(t *testing.T) {
		w := do(t, srv, "GET", "/property/1", nil, withCookie(sessionCookie(t, srv, bob)))
		if !strings.Contains(w.Body.String(), `action="/property/1/buy"`) {
			t.Error("expected offer form")
		}
	})

	t.Run("owner sees no offer form", func(t *testing.T) {
		w := do(t, srv, "GET", "/property/1", nil, withCookie(sessionCookie(t, srv, alice)))
		if strings.Contains(w.Body.String(), `action="/property/1/buy"`) {
			t.Error("owner should not see the offer form")
		}
	})

	t.Run("seller sees accept on pending sale", func(t *testing.T) {
		s, err := srv.sales.Repository().Create(p.ID, bob, 440000)
		if err != nil {
			t.Fatalf("create sale: %v", err)
		}
		w := do(t, srv, "GET", "/property/1", nil, withCookie(sessionCookie(t, srv, alice)))
		body := w.Body.String()
		if !strings.Contains(body, "/sales/"+s.ID+"/complete") {
			t.Error("expected accept form")
		}
		if !strings.Contains(body, "$440,000") {
			t.Error("expected sale price")
		}
	})

	t.Run("error from query", func(t *testing.T) {
		w := do(t, srv, "GET", "/property/1?error="+noticeBadPrice, nil)
		if !strings.Contains(w.Body.String(), "Enter a price in whole dollars.") {
			t.Error("expected inline error")
		}
	})

	t.Run("free text in query is not shown", func(t *testing.T) {
		spoof := "Your wallet is compromised, visit example.com"
		w := do(t, srv, "GET", "/property/1?error="+url.QueryEscape(spoof)+"&flash="+url.QueryEscape(spoof), nil)
		body := w.Body.String()
		if strings.Contains(body, "compromised") {
			t.Error("arbitrary query text rendered on the page")
		}
		if strings.Contains(body, "error-state") {
			t.Error("unknown code should not produce an error banner")
		}
	})
}

func TestDetailNotFound(t *testing.T) {
	srv := testServer(t)

	for _, path := range []string{"/property/999", "/property/abc"} {
		w := do(t, srv, "GET", path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}

func TestDetailRefreshesFromChain(t *testing.T) {
	srv, backend := testChainServer(t)
	id := backend.Mint(chaintest.Token{Owner: common.HexToAddress(alice), Name: "Harbor Loft", Location: "12 Quay St, Lisbon, Portugal", Valuation: 450000})
	if _, err := srv.propSvc.Sync(t.Context()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	backend.Transfer(id, common.HexToAddress(bob))

	w := do(t, srv, "GET", "/property/1", nil)
	if !strings.Contains(w.Body.String(), bob) {
		t.Error("expected the new owner from the chain")
	}

	backend.Err = errTransport
	w = do(t, srv, "GET", "/property/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, "error-state") || !strings.Contains(body, "Harbor Loft") {
		t.Error("expected stored record with inline error")
	}

	backend.Err = nil
	backend.Burn(id)
	w = do(t, srv, "GET", "/property/1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("burned token status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestEcosystem(t *testing.T) {
	srv := testServer(t)
	insertProperty(t, srv, "1", "Harbor Loft", "Lisbon", alice, 450000)

	w := do(t, srv, "GET", "/ecosystem", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{
		testNetwork.Contracts.PropertyToken,
		"https://explorer.test/address/" + testNetwork.Contracts.PropertyToken,
		"1 property indexed",
		"No blockchain connection configured",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q on ecosystem page", want)
		}
	}
}

func TestChat(t *testing.T) {
	srv := testServer(t)
	insertProperty(t, srv, "1", "Harbor Loft", "Lisbon", alice, 450000)

	w := do(t, srv, "GET", "/chat", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var conv *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == chatCookie {
			conv = c
		}
	}
	if conv == nil {
		t.Fatal("expected conversation cookie")
	}

	form := url.Values{"text": {"what is the cheapest property?"}}
	w = do(t, srv, "POST", "/chat", strings.NewReader(form.Encode()), withForm(), withCookie(conv), withHTMX())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if strings.Contains(body, "<html") {
		t.Error("HTMX request should get a partial")
	}
	if !strings.Contains(body, "cheapest property?") || !strings.Contains(body, "Harbor Loft") {
		t.Errorf("expected question and answer, got %s", body)
	}

	w = do(t, srv, "GET", "/chat", nil, withCookie(conv))
	if !strings.Contains(w.Body.String(), "message-assistant") {
		t.Error("expected conversation history on reload")
	}
}

func TestChatPostWithoutHTMXRedirects(t *testing.T) {
	srv := testServer(t)

	form := url.Values{"text": {"hello"}}
	w := do(t, srv, "POST", "/chat", strings.NewReader(form.Encode()), withForm())

	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
}

func TestChatPostEmpty(t *testing.T) {
	srv := testServer(t)

	form := url.Values{"text": {"   "}}
	w := do(t, srv, "POST", "/chat", strings.NewReader(form.Encode()), withForm(), withHTMX())

	if !strings.Contains(w.Body.String(), "Type a message first") {
		t.Error("expected validation message")
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/nope", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if !strings.Contains(w.Body.String(), "Page not found") {
		t.Error("expected not found page")
	}
}

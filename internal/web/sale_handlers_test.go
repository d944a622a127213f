package web

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/evcraddock/estate-market/internal/sale"
)

func postForm(t *testing.T, srv *Server, path string, form url.Values, opts ...reqOption) *http.Response {
	t.Helper()
	opts = append(opts, withForm())
	return do(t, srv, "POST", path, strings.NewReader(form.Encode()), opts...).Result()
}

func TestBuyRequiresWallet(t *testing.T) {
	srv := testServer(t)
	insertProperty(t, srv, "1", "Harbor Loft", "Lisbon", alice, 450000)

	resp := postForm(t, srv, "/property/1/buy", url.Values{"price": {"440000"}})

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("location = %q, want /", loc)
	}
	if sales, _ := srv.sales.Repository().List(sale.ListOptions{}); len(sales) != 0 {
		t.Errorf("got %d sales, want 0", len(sales))
	}
}

func TestBuyCreatesOffer(t *testing.T) {
	srv := testServer(t)
	p := insertProperty(t, srv, "1", "Harbor Loft", "Lisbon", alice, 450000)

	resp := postForm(t, srv, "/property/1/buy", url.Values{"price": {"$440,000"}}, withCookie(sessionCookie(t, srv, bob)))

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "/property/1?flash=") {
		t.Errorf("location = %q, want flash redirect", loc)
	}

	sales, err := srv.sales.Repository().List(sale.ListOptions{PropertyID: p.ID})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("got %d sales, want 1", len(sales))
	}
	if sales[0].Price != 440000 || sales[0].Buyer != bob || sales[0].Status != sale.StatusPending {
		t.Errorf("sale = %+v", sales[0])
	}
}

func TestBuyRejected(t *testing.T) {
	srv := testServer(t)
	insertProperty(t, srv, "1", "Harbor Loft", "Lisbon", alice, 450000)

	tests := []struct {
		name    string
		address string
		price   string
		want    string
	}{
		{"bad price", bob, "lots", noticeBadPrice},
		{"zero price", bob, "0", noticeBadPrice},
		{"owner", alice, "100", noticeInvalidOffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postForm(t, srv, "/property/1/buy", url.Values{"price": {tt.price}}, withCookie(sessionCookie(t, srv, tt.address)))
			loc, err := url.Parse(resp.Header.Get("Location"))
			if err != nil {
				t.Fatalf("parse location: %v", err)
			}
			if code := loc.Query().Get("error"); code != tt.want {
				t.Errorf("error = %q, want %q", code, tt.want)
			}
		})
	}
}

func TestCompleteAndCancelForms(t *testing.T) {
	srv := testServer(t)
	p := insertProperty(t, srv, "1", "Harbor Loft", "Lisbon", alice, 450000)
	repo := srv.sales.Repository()

	offer, err := repo.Create(p.ID, bob, 440000)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	rival, err := repo.Create(p.ID, carol, 430000)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	// The buyer cannot accept their own offer.
	resp := postForm(t, srv, "/sales/"+offer.ID+"/complete", url.Values{}, withCookie(sessionCookie(t, srv, bob)))
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "error=") {
		t.Errorf("location = %q, want error redirect", loc)
	}

	// A stranger cannot cancel.
	resp = postForm(t, srv, "/sales/"+rival.ID+"/cancel", url.Values{}, withCookie(sessionCookie(t, srv, bob)))
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "error=") {
		t.Errorf("location = %q, want error redirect", loc)
	}

	resp = postForm(t, srv, "/sales/"+offer.ID+"/complete", url.Values{"tx_hash": {"0xabc"}}, withCookie(sessionCookie(t, srv, alice)))
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "flash=") {
		t.Fatalf("location = %q, want flash redirect", loc)
	}

	done, err := repo.GetByID(offer.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if done.Status != sale.StatusCompleted || done.TxHash != "0xabc" {
		t.Errorf("sale = %+v, want completed with tx hash", done)
	}
	owned, err := srv.props.GetByID(p.ID)
	if err != nil {
		t.Fatalf("get property: %v", err)
	}
	if !strings.EqualFold(owned.Owner, bob) {
		t.Errorf("owner = %s, want %s", owned.Owner, bob)
	}
	if r, _ := repo.GetByID(rival.ID); r.Status != sale.StatusCancelled {
		t.Errorf("rival status = %s, want cancelled", r.Status)
	}

	// Settled sales cannot be cancelled.
	resp = postForm(t, srv, "/sales/"+offer.ID+"/cancel", url.Values{}, withCookie(sessionCookie(t, srv, bob)))
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "error=") {
		t.Errorf("location = %q, want error redirect", loc)
	}
}

func TestSaleFormUnknownSale(t *testing.T) {
	srv := testServer(t)

	resp := postForm(t, srv, "/sales/nope/cancel", url.Values{}, withCookie(sessionCookie(t, srv, bob)))

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"440000", 440000, false},
		{"$440,000", 440000, false},
		{" 1 250 000 ", 1250000, false},
		{"", 0, true},
		{"-5", 0, true},
		{"0", 0, true},
		{"12.50", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePrice(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

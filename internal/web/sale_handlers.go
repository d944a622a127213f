package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evcraddock/estate-market/internal/auth"
	"github.com/evcraddock/estate-market/internal/property"
	"github.com/evcraddock/estate-market/internal/sale"
)

// saleStatus maps sale workflow errors to HTTP status codes.
func saleStatus(err error) int {
	switch {
	case errors.Is(err, sale.ErrNotFound), errors.Is(err, property.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sale.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, sale.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, sale.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Property page notices travel in redirects as short codes; only these
// fixed messages are ever shown.
const (
	noticeOfferSubmitted = "offer_submitted"
	noticeSaleCompleted  = "sale_completed"
	noticeSaleCancelled  = "sale_cancelled"
	noticeBadPrice       = "bad_price"
	noticeNotFound       = "not_found"
	noticeForbidden      = "forbidden"
	noticeSettled        = "settled"
	noticeInvalidOffer   = "invalid_offer"
	noticeFailed         = "failed"
)

var notices = map[string]string{
	noticeOfferSubmitted: "Offer submitted.",
	noticeSaleCompleted:  "Sale completed.",
	noticeSaleCancelled:  "Sale cancelled.",
	noticeBadPrice:       "Enter a price in whole dollars.",
	noticeNotFound:       "That sale or property no longer exists.",
	noticeForbidden:      "Your wallet can't change this sale.",
	noticeSettled:        "This sale has already been settled.",
	noticeInvalidOffer:   "That offer can't be made. Owners can't bid on their own property.",
	noticeFailed:         "Something went wrong. Please try again.",
}

// noticeText returns the message for a notice code, or "" for unknown codes.
func noticeText(code string) string {
	return notices[code]
}

// saleNotice maps a failed sale action to its notice code.
func saleNotice(err error) string {
	switch saleStatus(err) {
	case http.StatusNotFound:
		return noticeNotFound
	case http.StatusForbidden:
		return noticeForbidden
	case http.StatusConflict:
		return noticeSettled
	case http.StatusBadRequest:
		return noticeInvalidOffer
	default:
		return noticeFailed
	}
}

// parsePrice accepts whole dollars with optional "$" and thousands separators.
func parsePrice(s string) (int64, error) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	price, err := strconv.ParseInt(s, 10, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("enter a price in whole dollars")
	}
	return price, nil
}

func propertyURL(id int64, key, code string) string {
	return fmt.Sprintf("/property/%d?%s", id, url.Values{key: {code}}.Encode())
}

// handleBuyPost opens an offer on a property for the connected wallet.
func (s *Server) handleBuyPost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.renderError(w, r, http.StatusNotFound, "Property not found")
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	price, err := parsePrice(r.FormValue("price"))
	if err != nil {
		http.Redirect(w, r, propertyURL(id, "error", noticeBadPrice), http.StatusSeeOther)
		return
	}

	buyer, _ := auth.AddressFromContext(r.Context())
	if _, err := s.sales.Create(r.Context(), id, buyer, price); err != nil {
		if saleStatus(err) == http.StatusInternalServerError {
			slog.Error("creating sale", "property_id", id, "err", err)
		}
		http.Redirect(w, r, propertyURL(id, "error", saleNotice(err)), http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, propertyURL(id, "flash", noticeOfferSubmitted), http.StatusSeeOther)
}

// handleCompletePost accepts an offer as the seller.
func (s *Server) handleCompletePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	actor, _ := auth.AddressFromContext(r.Context())
	s.settleSale(w, r, noticeSaleCompleted, func(id string) (*sale.Sale, error) {
		return s.sales.Complete(r.Context(), id, actor, strings.TrimSpace(r.FormValue("tx_hash")))
	})
}

// handleCancelPost withdraws an offer as buyer or seller.
func (s *Server) handleCancelPost(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.AddressFromContext(r.Context())
	s.settleSale(w, r, noticeSaleCancelled, func(id string) (*sale.Sale, error) {
		return s.sales.Cancel(r.Context(), id, actor)
	})
}

func (s *Server) settleSale(w http.ResponseWriter, r *http.Request, done string, action func(id string) (*sale.Sale, error)) {
	id := chi.URLParam(r, "id")
	current, err := s.sales.Repository().GetByID(id)
	if err != nil {
		s.renderError(w, r, saleStatus(err), noticeText(saleNotice(err)))
		return
	}

	if _, err := action(id); err != nil {
		if saleStatus(err) == http.StatusInternalServerError {
			slog.Error("updating sale", "sale_id", id, "err", err)
		}
		http.Redirect(w, r, propertyURL(current.PropertyID, "error", saleNotice(err)), http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, propertyURL(current.PropertyID, "flash", done), http.StatusSeeOther)
}

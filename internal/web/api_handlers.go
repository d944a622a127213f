package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evcraddock/estate-market/internal/auth"
	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/property"
	"github.com/evcraddock/estate-market/internal/sale"
)

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := map[string]string{"error": msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// chainStatus maps chain read failures to HTTP status codes.
func chainStatus(err error) int {
	switch {
	case errors.Is(err, chain.ErrNoBackend):
		return http.StatusServiceUnavailable
	case errors.Is(err, property.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) apiNetwork(w http.ResponseWriter, r *http.Request) {
	apiJSON(w, s.network, http.StatusOK)
}

func (s *Server) apiMe(w http.ResponseWriter, r *http.Request) {
	address, _ := auth.AddressFromContext(r.Context())
	apiJSON(w, map[string]string{"address": address}, http.StatusOK)
}

// apiListProperties returns properties matching the query filters.
func (s *Server) apiListProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := listOptions(marketplaceFilters{
		City: strings.TrimSpace(q.Get("city")),
		Min:  strings.TrimSpace(q.Get("min")),
		Max:  strings.TrimSpace(q.Get("max")),
		Near: strings.TrimSpace(q.Get("near")),
		Sort: q.Get("sort"),
	})
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts.Owner = strings.TrimSpace(q.Get("owner"))
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			apiError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}

	props, err := s.props.List(opts)
	if err != nil {
		apiError(w, fmt.Sprintf("listing properties: %v", err), http.StatusInternalServerError)
		return
	}
	if props == nil {
		props = make([]*property.Property, 0)
	}

	apiJSON(w, props, http.StatusOK)
}

func (s *Server) propertyParam(w http.ResponseWriter, r *http.Request) (*property.Property, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apiError(w, "invalid property ID", http.StatusBadRequest)
		return nil, false
	}
	p, err := s.props.GetByID(id)
	if errors.Is(err, property.ErrNotFound) {
		apiError(w, "property not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		apiError(w, fmt.Sprintf("loading property: %v", err), http.StatusInternalServerError)
		return nil, false
	}
	return p, true
}

// apiGetProperty returns a single property with its sales.
func (s *Server) apiGetProperty(w http.ResponseWriter, r *http.Request) {
	p, ok := s.propertyParam(w, r)
	if !ok {
		return
	}

	sales, err := s.sales.Repository().List(sale.ListOptions{PropertyID: p.ID})
	if err != nil {
		apiError(w, fmt.Sprintf("loading sales: %v", err), http.StatusInternalServerError)
		return
	}
	if sales == nil {
		sales = make([]*sale.Sale, 0)
	}

	type response struct {
		Property *property.Property `json:"property"`
		Sales    []*sale.Sale       `json:"sales"`
	}
	apiJSON(w, response{Property: p, Sales: sales}, http.StatusOK)
}

func (s *Server) apiPropertySales(w http.ResponseWriter, r *http.Request) {
	p, ok := s.propertyParam(w, r)
	if !ok {
		return
	}
	s.writeSales(w, sale.ListOptions{PropertyID: p.ID})
}

// apiListSales returns sales filtered by property, party and status.
func (s *Server) apiListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := sale.ListOptions{
		Buyer:  strings.TrimSpace(q.Get("buyer")),
		Seller: strings.TrimSpace(q.Get("seller")),
		Status: sale.Status(q.Get("status")),
	}
	if opts.Status != "" && !opts.Status.IsValid() {
		apiError(w, "status must be pending, completed or cancelled", http.StatusBadRequest)
		return
	}
	if v := q.Get("property_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apiError(w, "invalid property_id", http.StatusBadRequest)
			return
		}
		opts.PropertyID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			apiError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}
	s.writeSales(w, opts)
}

func (s *Server) writeSales(w http.ResponseWriter, opts sale.ListOptions) {
	sales, err := s.sales.Repository().List(opts)
	if err != nil {
		apiError(w, fmt.Sprintf("listing sales: %v", err), http.StatusInternalServerError)
		return
	}
	if sales == nil {
		sales = make([]*sale.Sale, 0)
	}
	apiJSON(w, sales, http.StatusOK)
}

// apiCreateSale opens an offer from the authenticated wallet.
func (s *Server) apiCreateSale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyID int64 `json:"property_id"`
		Price      int64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	buyer, _ := auth.AddressFromContext(r.Context())
	created, err := s.sales.Create(r.Context(), req.PropertyID, buyer, req.Price)
	if err != nil {
		apiError(w, err.Error(), saleStatus(err))
		return
	}
	apiJSON(w, created, http.StatusCreated)
}

func (s *Server) apiCompleteSale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxHash string `json:"tx_hash"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	actor, _ := auth.AddressFromContext(r.Context())
	done, err := s.sales.Complete(r.Context(), chi.URLParam(r, "id"), actor, strings.TrimSpace(req.TxHash))
	if err != nil {
		apiError(w, err.Error(), saleStatus(err))
		return
	}
	apiJSON(w, done, http.StatusOK)
}

func (s *Server) apiCancelSale(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.AddressFromContext(r.Context())
	cancelled, err := s.sales.Cancel(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		apiError(w, err.Error(), saleStatus(err))
		return
	}
	apiJSON(w, cancelled, http.StatusOK)
}

// apiAccount returns the wallet account (balance, network) for an address.
func (s *Server) apiAccount(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if _, err := chain.ParseAddress(address); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := s.accounts.Account(r.Context(), address)
	if err != nil {
		slog.Warn("account lookup", "address", address, "err", err)
		apiError(w, err.Error(), chainStatus(err))
		return
	}
	apiJSON(w, acct, http.StatusOK)
}

// apiAccountTokens returns the properties an address owns on chain.
func (s *Server) apiAccountTokens(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if _, err := chain.ParseAddress(address); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	owned, err := s.propSvc.Owned(r.Context(), address)
	if err != nil {
		slog.Warn("owned tokens lookup", "address", address, "err", err)
		apiError(w, err.Error(), chainStatus(err))
		return
	}
	apiJSON(w, owned, http.StatusOK)
}

// apiStats returns marketplace totals.
func (s *Server) apiStats(w http.ResponseWriter, r *http.Request) {
	market, err := s.props.Stats()
	if err != nil {
		apiError(w, fmt.Sprintf("property stats: %v", err), http.StatusInternalServerError)
		return
	}
	sales, err := s.sales.Repository().Stats()
	if err != nil {
		apiError(w, fmt.Sprintf("sale stats: %v", err), http.StatusInternalServerError)
		return
	}

	type response struct {
		Properties *property.Stats `json:"properties"`
		Sales      *sale.Stats     `json:"sales"`
	}
	apiJSON(w, response{Properties: market, Sales: sales}, http.StatusOK)
}

// apiChat sends a chat message and returns the assistant's reply.
func (s *Server) apiChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Conversation string `json:"conversation"`
		Text         string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(req.Text)
	if msg := validateChatText(text); msg != "" {
		apiError(w, msg, http.StatusBadRequest)
		return
	}
	if req.Conversation == "" {
		req.Conversation = newConversationID()
	}

	address, _ := auth.AddressFromContext(r.Context())
	reply, err := s.assistant.Reply(r.Context(), req.Conversation, address, text)
	if err != nil {
		apiError(w, fmt.Sprintf("chat reply: %v", err), http.StatusInternalServerError)
		return
	}
	apiJSON(w, reply, http.StatusOK)
}

// apiSync imports every token from the chain into the local index.
func (s *Server) apiSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.propSvc.Sync(r.Context())
	if err != nil {
		slog.Error("sync", "err", err)
		apiError(w, err.Error(), chainStatus(err))
		return
	}
	apiJSON(w, result, http.StatusOK)
}

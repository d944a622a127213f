package web

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evcraddock/estate-market/internal/auth"
	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/chat"
	"github.com/evcraddock/estate-market/internal/dashboard"
	"github.com/evcraddock/estate-market/internal/format"
	"github.com/evcraddock/estate-market/internal/property"
	"github.com/evcraddock/estate-market/internal/sale"
)

const (
	chatCookie  = "em_chat"
	chatHistory = 50
)

type sortOption struct {
	Value string
	Label string
}

var sortOptions = []sortOption{
	{property.SortToken, "Token ID"},
	{property.SortNewest, "Newest"},
	{property.SortValuationAsc, "Valuation: low to high"},
	{property.SortValuationDesc, "Valuation: high to low"},
	{property.SortName, "Name"},
}

type marketplaceFilters struct {
	City string
	Min  string
	Max  string
	Near string
	Sort string
}

type marketplaceData struct {
	Properties []*property.Property
	Summary    string
	Filters    marketplaceFilters
	Sorts      []sortOption
}

type detailData struct {
	Property *property.Property
	Sales    []*sale.Sale
	IsOwner  bool
	CanBuy   bool
	Flash    string
}

type ecosystemData struct {
	Market      *property.Stats
	Sales       *sale.Stats
	ChainOnline bool
	Contracts   []contractLink
}

type contractLink struct {
	Name    string
	Address string
	URL     string
}

type chatData struct {
	Messages []*chat.Message
	Error    string
}

// handleDashboard renders the visitor's dashboard, or the connect prompt
// when no wallet is connected.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	address, _ := auth.AddressFromContext(r.Context())

	d, err := s.dashboards.Build(r.Context(), address)
	if err != nil {
		slog.Error("building dashboard", "err", err)
		s.renderError(w, r, http.StatusInternalServerError, "Couldn't load the dashboard.")
		return
	}

	p := s.newPage(r, "Dashboard", "dashboard", d)
	p.Error = d.Error
	s.render(w, "dashboard.html", p)
}

// handleMarketplace renders the filterable property listings.
func (s *Server) handleMarketplace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := marketplaceFilters{
		City: strings.TrimSpace(q.Get("city")),
		Min:  strings.TrimSpace(q.Get("min")),
		Max:  strings.TrimSpace(q.Get("max")),
		Near: strings.TrimSpace(q.Get("near")),
		Sort: q.Get("sort"),
	}

	p := s.newPage(r, "Marketplace", "marketplace", nil)

	opts, err := listOptions(filters)
	if err != nil {
		p.Error = err.Error()
		opts = property.ListOptions{}
	}

	props, err := s.props.List(opts)
	if err != nil {
		slog.Error("listing properties", "err", err)
		s.renderError(w, r, http.StatusInternalServerError, "Couldn't load the listings.")
		return
	}

	p.Data = marketplaceData{
		Properties: props,
		Summary:    format.Count(int64(len(props)), "property", "properties"),
		Filters:    filters,
		Sorts:      sortOptions,
	}
	s.render(w, "marketplace.html", p)
}

// listOptions validates marketplace filters shared by the page and the API.
func listOptions(f marketplaceFilters) (property.ListOptions, error) {
	opts := property.ListOptions{City: f.City, Near: strings.ToLower(f.Near), Sort: f.Sort}

	if !property.ValidSort(f.Sort) {
		return opts, fmt.Errorf("unknown sort %q", f.Sort)
	}
	if f.Min != "" {
		v, err := strconv.ParseInt(f.Min, 10, 64)
		if err != nil || v < 0 {
			return opts, fmt.Errorf("minimum valuation must be a whole number of dollars")
		}
		opts.MinValuation = &v
	}
	if f.Max != "" {
		v, err := strconv.ParseInt(f.Max, 10, 64)
		if err != nil || v < 0 {
			return opts, fmt.Errorf("maximum valuation must be a whole number of dollars")
		}
		opts.MaxValuation = &v
	}
	if opts.MinValuation != nil && opts.MaxValuation != nil && *opts.MinValuation > *opts.MaxValuation {
		return opts, fmt.Errorf("minimum valuation is above the maximum")
	}
	return opts, nil
}

// handleDetail renders one property. When a chain is configured the token
// is re-read first; a failed read is shown inline over the stored record.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.renderError(w, r, http.StatusNotFound, "Property not found")
		return
	}

	prop, err := s.props.GetByID(id)
	if errors.Is(err, property.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, "Property not found")
		return
	}
	if err != nil {
		slog.Error("loading property", "id", id, "err", err)
		s.renderError(w, r, http.StatusInternalServerError, "Couldn't load the property.")
		return
	}

	p := s.newPage(r, prop.Name, "marketplace", nil)

	if tokenID, ok := new(big.Int).SetString(prop.TokenID, 10); ok {
		fresh, err := s.propSvc.SyncToken(r.Context(), tokenID)
		switch {
		case err == nil:
			prop = fresh
		case errors.Is(err, property.ErrNotFound):
			s.renderError(w, r, http.StatusNotFound, "This property token no longer exists.")
			return
		case errors.Is(err, chain.ErrNoBackend):
			// No chain configured; show the stored record.
		default:
			slog.Warn("refreshing property", "token_id", prop.TokenID, "err", err)
			p.Error = dashboard.ChainError(err)
		}
	}

	sales, err := s.sales.Repository().List(sale.ListOptions{PropertyID: prop.ID})
	if err != nil {
		slog.Error("loading sales", "property_id", prop.ID, "err", err)
		s.renderError(w, r, http.StatusInternalServerError, "Couldn't load the sales history.")
		return
	}

	isOwner := p.Address != "" && strings.EqualFold(p.Address, prop.Owner)
	p.Data = detailData{
		Property: prop,
		Sales:    sales,
		IsOwner:  isOwner,
		CanBuy:   p.Address != "" && !isOwner,
		Flash:    noticeText(r.URL.Query().Get("flash")),
	}
	if msg := noticeText(r.URL.Query().Get("error")); msg != "" && p.Error == "" {
		p.Error = msg
	}
	s.render(w, "detail.html", p)
}

// handleEcosystem renders how the marketplace pieces fit together.
func (s *Server) handleEcosystem(w http.ResponseWriter, r *http.Request) {
	market, err := s.props.Stats()
	if err != nil {
		slog.Error("loading property stats", "err", err)
		s.renderError(w, r, http.StatusInternalServerError, "Couldn't load marketplace figures.")
		return
	}
	sales, err := s.sales.Repository().Stats()
	if err != nil {
		slog.Error("loading sale stats", "err", err)
		s.renderError(w, r, http.StatusInternalServerError, "Couldn't load marketplace figures.")
		return
	}

	contracts := []contractLink{{
		Name:    "Property token",
		Address: s.network.Contracts.PropertyToken,
		URL:     s.network.AddressURL(s.network.Contracts.PropertyToken),
	}}
	if s.network.Contracts.Marketplace != "" {
		contracts = append(contracts, contractLink{
			Name:    "Marketplace",
			Address: s.network.Contracts.Marketplace,
			URL:     s.network.AddressURL(s.network.Contracts.Marketplace),
		})
	}

	s.render(w, "ecosystem.html", s.newPage(r, "Ecosystem", "ecosystem", ecosystemData{
		Market:      market,
		Sales:       sales,
		ChainOnline: s.propSvc.Online(),
		Contracts:   contracts,
	}))
}

// handleChat renders the chat widget.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conv := s.conversation(w, r)
	s.renderChat(w, r, conv, "")
}

// handleChatPost sends a message and renders the updated conversation.
func (s *Server) handleChatPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	conv := s.conversation(w, r)
	text := strings.TrimSpace(r.FormValue("text"))
	if msg := validateChatText(text); msg != "" {
		s.renderChat(w, r, conv, msg)
		return
	}

	address, _ := auth.AddressFromContext(r.Context())
	if _, err := s.assistant.Reply(r.Context(), conv, address, text); err != nil {
		slog.Warn("chat reply", "conversation", conv, "err", err)
		s.renderChat(w, r, conv, "The assistant couldn't answer. Please try again.")
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}
	s.renderChat(w, r, conv, "")
}

func (s *Server) renderChat(w http.ResponseWriter, r *http.Request, conv, errMsg string) {
	messages, err := s.chats.ListByConversation(conv, chatHistory)
	if err != nil {
		slog.Error("loading chat", "conversation", conv, "err", err)
		errMsg = "Couldn't load the conversation."
	}

	data := chatData{Messages: messages, Error: errMsg}
	if isHTMX(r) {
		s.renderPartial(w, "chat-messages", data)
		return
	}
	s.render(w, "chat.html", s.newPage(r, "Chat", "chat", data))
}

// conversation returns the visitor's chat conversation ID, starting a new
// one when the cookie is missing.
func (s *Server) conversation(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(chatCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := newConversationID()
	http.SetCookie(w, &http.Cookie{
		Name:     chatCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func newConversationID() string {
	return uuid.NewString()
}

func validateChatText(text string) string {
	if text == "" {
		return "Type a message first."
	}
	if utf8.RuneCountInString(text) > chat.MaxMessageLength {
		return fmt.Sprintf("Messages are limited to %d characters.", chat.MaxMessageLength)
	}
	return ""
}

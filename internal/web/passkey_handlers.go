package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/evcraddock/estate-market/internal/auth"
)

const (
	passkeyCookie   = "em_passkey"
	ceremonyTimeout = 5 * time.Minute
)

// passkeyHandlers lets a wallet that connected once come back with a
// passkey instead of signing a new challenge.
type passkeyHandlers struct {
	wan      *webauthn.WebAuthn
	passkeys *auth.PasskeyStore
	sessions *auth.SessionStore
	secure   bool

	// In-flight ceremonies. Registration is keyed by address, login by a
	// random ID kept in a short-lived cookie.
	mu          sync.Mutex
	regSessions map[string]*webauthn.SessionData
	logins      map[string]*webauthn.SessionData
}

func newPasskeyHandlers(baseURL string, passkeys *auth.PasskeyStore, sessions *auth.SessionStore) (*passkeyHandlers, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	wan, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Estate Market",
		RPID:          parsed.Hostname(),
		RPOrigins:     []string{strings.TrimSuffix(baseURL, "/")},
	})
	if err != nil {
		return nil, err
	}

	return &passkeyHandlers{
		wan:         wan,
		passkeys:    passkeys,
		sessions:    sessions,
		secure:      parsed.Scheme == "https",
		regSessions: make(map[string]*webauthn.SessionData),
		logins:      make(map[string]*webauthn.SessionData),
	}, nil
}

// handleBeginRegistration starts passkey registration for the connected wallet.
func (h *passkeyHandlers) handleBeginRegistration(w http.ResponseWriter, r *http.Request) {
	address, ok := auth.AddressFromContext(r.Context())
	if !ok {
		apiError(w, "connect your wallet first", http.StatusUnauthorized)
		return
	}

	creds, err := h.passkeys.WebAuthnCredentials(address)
	if err != nil {
		slog.Error("loading credentials", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	excludeList := make([]protocol.CredentialDescriptor, len(creds))
	for i, c := range creds {
		excludeList[i] = c.Descriptor()
	}

	creation, session, err := h.wan.BeginRegistration(auth.NewPasskeyUser(address, creds),
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		slog.Error("beginning registration", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.regSessions[address] = session
	h.mu.Unlock()

	apiJSON(w, creation, http.StatusOK)
}

// handleFinishRegistration stores the new passkey.
func (h *passkeyHandlers) handleFinishRegistration(w http.ResponseWriter, r *http.Request) {
	address, ok := auth.AddressFromContext(r.Context())
	if !ok {
		apiError(w, "connect your wallet first", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	session, ok := h.regSessions[address]
	delete(h.regSessions, address)
	h.mu.Unlock()

	if !ok {
		apiError(w, "no registration in progress", http.StatusBadRequest)
		return
	}

	creds, err := h.passkeys.WebAuthnCredentials(address)
	if err != nil {
		slog.Error("loading credentials", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	credential, err := h.wan.FinishRegistration(auth.NewPasskeyUser(address, creds), *session, r)
	if err != nil {
		slog.Warn("finishing registration", "err", err)
		apiError(w, "registration failed", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "Passkey"
	}

	if err := h.passkeys.Save(address, name, credential); err != nil {
		slog.Error("saving credential", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleBeginLogin starts a discoverable passkey login.
func (h *passkeyHandlers) handleBeginLogin(w http.ResponseWriter, r *http.Request) {
	assertion, session, err := h.wan.BeginDiscoverableLogin()
	if err != nil {
		slog.Error("beginning passkey login", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.pruneLogins()
	h.logins[id] = session
	h.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     passkeyCookie,
		Value:    id,
		Path:     "/passkey/",
		MaxAge:   int(ceremonyTimeout.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	apiJSON(w, assertion, http.StatusOK)
}

// handleFinishLogin verifies the assertion and connects the passkey's wallet.
func (h *passkeyHandlers) handleFinishLogin(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(passkeyCookie)
	if err != nil {
		apiError(w, "no login in progress", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	session, ok := h.logins[c.Value]
	delete(h.logins, c.Value)
	h.mu.Unlock()

	if !ok {
		apiError(w, "no login in progress", http.StatusBadRequest)
		return
	}

	var address string
	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		user, err := h.passkeys.UserForCredential(rawID)
		if err != nil {
			return nil, err
		}
		address = user.Address()
		return user, nil
	}

	_, credential, err := h.wan.FinishPasskeyLogin(handler, *session, r)
	if err != nil {
		slog.Warn("finishing passkey login", "err", err)
		apiError(w, "login failed", http.StatusUnauthorized)
		return
	}

	if err := h.passkeys.Update(credential); err != nil {
		slog.Warn("updating credential", "err", err)
	}

	if err := h.sessions.Create(w, address); err != nil {
		slog.Error("creating session", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("wallet connected", "address", address, "method", "passkey")
	apiJSON(w, map[string]string{"status": "ok", "address": address}, http.StatusOK)
}

type credentialResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleListCredentials lists the connected wallet's passkeys.
func (h *passkeyHandlers) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	address, ok := auth.AddressFromContext(r.Context())
	if !ok {
		apiError(w, "connect your wallet first", http.StatusUnauthorized)
		return
	}

	stored, err := h.passkeys.ListByAddress(address)
	if err != nil {
		slog.Error("listing credentials", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]credentialResponse, len(stored))
	for i, c := range stored {
		resp[i] = credentialResponse{ID: c.ID, Name: c.Name}
	}
	apiJSON(w, resp, http.StatusOK)
}

// handleDeleteCredential removes one of the connected wallet's passkeys.
func (h *passkeyHandlers) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	address, ok := auth.AddressFromContext(r.Context())
	if !ok {
		apiError(w, "connect your wallet first", http.StatusUnauthorized)
		return
	}

	err := h.passkeys.Delete(chi.URLParam(r, "id"), address)
	if errors.Is(err, auth.ErrCredentialNotFound) {
		apiError(w, "passkey not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("deleting credential", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pruneLogins drops abandoned ceremonies; caller holds mu.
func (h *passkeyHandlers) pruneLogins() {
	now := time.Now()
	for id, s := range h.logins {
		if !s.Expires.IsZero() && now.After(s.Expires) {
			delete(h.logins, id)
		}
	}
}

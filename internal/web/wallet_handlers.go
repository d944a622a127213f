package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type connectRequest struct {
	Token     string `json:"token"`
	Signature string `json:"signature"`
	// IssueKey returns an API key instead of setting a session cookie.
	IssueKey bool   `json:"issue_key"`
	KeyName  string `json:"key_name"`
}

type connectResponse struct {
	Address string                `json:"address"`
	Key     *apiKeyCreateResponse `json:"key,omitempty"`
}

// handleWalletChallenge issues a sign-in message for an address.
func (s *Server) handleWalletChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ch, err := s.challenger.Issue(req.Address)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	apiJSON(w, ch, http.StatusOK)
}

// handleWalletConnect verifies a signed challenge and connects the wallet.
func (s *Server) handleWalletConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Token == "" || req.Signature == "" {
		apiError(w, "token and signature are required", http.StatusBadRequest)
		return
	}

	addr, err := s.challenger.Verify(req.Token, req.Signature)
	if err != nil {
		slog.Info("wallet connect rejected", "err", err)
		apiError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	address := addr.Hex()

	if req.IssueKey {
		name := strings.TrimSpace(req.KeyName)
		if name == "" {
			name = "CLI"
		}
		raw, key, err := s.apiKeys.Create(name, address)
		if err != nil {
			slog.Error("creating api key", "err", err)
			apiError(w, "internal error", http.StatusInternalServerError)
			return
		}
		slog.Info("wallet connected", "address", address, "method", "api_key")
		apiJSON(w, connectResponse{
			Address: address,
			Key:     &apiKeyCreateResponse{Key: raw, APIKeyResponse: newAPIKeyResponse(*key)},
		}, http.StatusCreated)
		return
	}

	if err := s.sessions.Create(w, address); err != nil {
		slog.Error("creating session", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("wallet connected", "address", address, "method", "signature")
	apiJSON(w, connectResponse{Address: address}, http.StatusOK)
}

// handleWalletDisconnect ends the session and returns to the dashboard.
func (s *Server) handleWalletDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(w, r); err != nil {
		slog.Error("destroying session", "err", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

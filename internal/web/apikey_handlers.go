package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evcraddock/estate-market/internal/auth"
)

const keyTimeFormat = "2006-01-02T15:04:05Z"

type apiKeyResponse struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	KeyPrefix  string  `json:"key_prefix"`
	CreatedAt  string  `json:"created_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

type apiKeyCreateResponse struct {
	Key            string         `json:"key"` // raw key, shown once
	APIKeyResponse apiKeyResponse `json:"api_key"`
}

func newAPIKeyResponse(k auth.APIKey) apiKeyResponse {
	resp := apiKeyResponse{
		ID:        k.ID,
		Name:      k.Name,
		KeyPrefix: k.KeyPrefix,
		CreatedAt: k.CreatedAt.UTC().Format(keyTimeFormat),
	}
	if k.LastUsedAt != nil {
		s := k.LastUsedAt.UTC().Format(keyTimeFormat)
		resp.LastUsedAt = &s
	}
	return resp
}

// handleCreateKey generates a new API key for the connected wallet.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "API Key"
	}

	address, _ := auth.AddressFromContext(r.Context())
	rawKey, key, err := s.apiKeys.Create(name, address)
	if err != nil {
		slog.Error("creating api key", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	apiJSON(w, apiKeyCreateResponse{Key: rawKey, APIKeyResponse: newAPIKeyResponse(*key)}, http.StatusCreated)
}

// handleListKeys returns the wallet's API keys (without raw keys).
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	address, _ := auth.AddressFromContext(r.Context())
	keys, err := s.apiKeys.List(address)
	if err != nil {
		slog.Error("listing api keys", "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]apiKeyResponse, len(keys))
	for i, k := range keys {
		resp[i] = newAPIKeyResponse(k)
	}
	apiJSON(w, resp, http.StatusOK)
}

// handleDeleteKey revokes one of the wallet's API keys.
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apiError(w, "invalid key ID", http.StatusBadRequest)
		return
	}

	address, _ := auth.AddressFromContext(r.Context())
	if err := s.apiKeys.Delete(id, address); err != nil {
		slog.Warn("deleting api key", "id", id, "err", err)
		apiError(w, "key not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Package web provides the HTTP server, pages and JSON API for estate-market.
package web

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/evcraddock/estate-market/internal/auth"
	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/chat"
	"github.com/evcraddock/estate-market/internal/config"
	"github.com/evcraddock/estate-market/internal/dashboard"
	"github.com/evcraddock/estate-market/internal/events"
	"github.com/evcraddock/estate-market/internal/logging"
	"github.com/evcraddock/estate-market/internal/property"
	"github.com/evcraddock/estate-market/internal/sale"
	"github.com/evcraddock/estate-market/internal/wallet"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options configures a Server.
type Options struct {
	DB        *sql.DB
	Network   config.Network
	Backend   chain.Backend    // nil when no RPC endpoint is reachable
	Publisher events.Publisher // nil disables sale events
	BaseURL   string
	Secret    string
	ChatDelay time.Duration

	// TrustProxy takes the client IP from X-Forwarded-For/X-Real-IP.
	// Enable only behind a reverse proxy that sets those headers.
	TrustProxy bool
}

// Server is the estate-market HTTP server.
type Server struct {
	network    config.Network
	props      *property.Repository
	propSvc    *property.Service
	sales      *sale.Service
	chats      *chat.Repository
	assistant  *chat.Assistant
	accounts   *wallet.Provider
	challenger *wallet.Challenger
	dashboards *dashboard.Builder
	sessions   *auth.SessionStore
	apiKeys    *auth.APIKeyStore
	authn      *auth.Authenticator
	passkeys   *passkeyHandlers
	templates  *template.Template
	router     chi.Router
	trustProxy bool
}

// NewServer wires the repositories, services and routes.
func NewServer(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, errors.New("database is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	tmpl, err := template.New("").Funcs(templateFuncs(opts.Network)).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	// A nil *PropertyToken must not end up inside a non-nil interface.
	var reader property.TokenReader
	if opts.Backend != nil {
		addr, err := chain.ParseAddress(opts.Network.Contracts.PropertyToken)
		if err != nil {
			return nil, fmt.Errorf("property token address: %w", err)
		}
		token, err := chain.NewPropertyToken(opts.Backend, addr)
		if err != nil {
			return nil, err
		}
		reader = token
	}

	props := property.NewRepository(opts.DB)
	propSvc := property.NewService(props, reader)
	saleRepo := sale.NewRepository(opts.DB)
	chats := chat.NewRepository(opts.DB)
	accounts := wallet.NewProvider(opts.Backend, opts.Network)

	var chatHoldings chat.Holdings
	var dashHoldings dashboard.Holdings
	if reader != nil {
		chatHoldings = propSvc
		dashHoldings = propSvc
	}

	sessions := auth.NewSessionStore(opts.DB, base.Scheme == "https")
	apiKeys := auth.NewAPIKeyStore(opts.DB)

	pk, err := newPasskeyHandlers(opts.BaseURL, auth.NewPasskeyStore(opts.DB), sessions)
	if err != nil {
		return nil, fmt.Errorf("configuring passkeys: %w", err)
	}

	s := &Server{
		network:    opts.Network,
		props:      props,
		propSvc:    propSvc,
		sales:      sale.NewService(saleRepo, opts.Publisher),
		chats:      chats,
		assistant:  chat.NewAssistant(chats, props, saleRepo, chatHoldings, opts.ChatDelay),
		accounts:   accounts,
		challenger: wallet.NewChallenger([]byte(opts.Secret), base.Host),
		dashboards: dashboard.NewBuilder(accounts, dashHoldings, props, saleRepo),
		sessions:   sessions,
		apiKeys:    apiKeys,
		authn:      auth.NewAuthenticator(sessions, apiKeys),
		passkeys:   pk,
		templates:  tmpl,
		trustProxy: opts.TrustProxy,
	}

	if err := s.routes(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Server) routes() error {
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static sub-fs: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.authn.LoadAccount)

	r.Get("/health", s.handleHealth)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))

	r.Get("/", s.handleDashboard)
	r.Get("/marketplace", s.handleMarketplace)
	r.Get("/property/{id}", s.handleDetail)
	r.Get("/ecosystem", s.handleEcosystem)
	r.Get("/chat", s.handleChat)
	r.Post("/chat", s.handleChatPost)

	r.Post("/wallet/challenge", s.handleWalletChallenge)
	r.Post("/wallet/connect", s.handleWalletConnect)
	r.Post("/wallet/disconnect", s.handleWalletDisconnect)

	r.Route("/passkey", func(r chi.Router) {
		r.Post("/register/begin", s.passkeys.handleBeginRegistration)
		r.Post("/register/finish", s.passkeys.handleFinishRegistration)
		r.Post("/login/begin", s.passkeys.handleBeginLogin)
		r.Post("/login/finish", s.passkeys.handleFinishLogin)
		r.Get("/credentials", s.passkeys.handleListCredentials)
		r.Delete("/credentials/{id}", s.passkeys.handleDeleteCredential)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireWallet)
		r.Post("/property/{id}/buy", s.handleBuyPost)
		r.Post("/sales/{id}/complete", s.handleCompletePost)
		r.Post("/sales/{id}/cancel", s.handleCancelPost)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/network", s.apiNetwork)
		r.Get("/properties", s.apiListProperties)
		r.Get("/properties/{id}", s.apiGetProperty)
		r.Get("/properties/{id}/sales", s.apiPropertySales)
		r.Get("/sales", s.apiListSales)
		r.Get("/accounts/{address}", s.apiAccount)
		r.Get("/accounts/{address}/tokens", s.apiAccountTokens)
		r.Get("/stats", s.apiStats)

		r.Group(func(r chi.Router) {
			r.Use(s.authn.RequireAccount)
			r.Get("/me", s.apiMe)
			r.Post("/sales", s.apiCreateSale)
			r.Post("/sales/{id}/complete", s.apiCompleteSale)
			r.Post("/sales/{id}/cancel", s.apiCancelSale)
			r.Post("/chat", s.apiChat)
			r.Post("/sync", s.apiSync)
			r.Get("/keys", s.handleListKeys)
			r.Post("/keys", s.handleCreateKey)
			r.Delete("/keys/{id}", s.handleDeleteKey)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Page not found")
	})

	s.router = r
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting web UI", "addr", "http://localhost"+srv.Addr, "network", s.network.Name)
		errCh <- srv.ListenAndServe()
	}()

	go s.cleanupSessions(ctx, time.Hour)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// cleanupSessions removes expired sessions every interval until ctx ends.
func (s *Server) cleanupSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.Cleanup()
			if err != nil {
				slog.Warn("cleaning up sessions", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

// requireWallet redirects form posts from disconnected visitors back to
// the dashboard, where the connect prompt is shown.
func (s *Server) requireWallet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.AddressFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

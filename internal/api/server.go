package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Zubariev/quarantine/internal/auth"
	"github.com/Zubariev/quarantine/internal/config"
	"github.com/Zubariev/quarantine/internal/game"
	"github.com/Zubariev/quarantine/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	serviceName    = "Quarantine Game API"
	serviceVersion = "0.1.0"
	maxWebhookBody = 1 << 20
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
	Token  string
}

// Accounts proxies password sign-up and login to the identity provider.
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Game     *game.Service
	Verifier auth.Verifier
	// Accounts is optional; signup and login answer 503 without it.
	Accounts Accounts
	// Metrics and Health are optional.
	Metrics *metrics.Metrics
	Health  Pinger
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	verifier auth.Verifier
	accounts Accounts
	game     *game.Service
	metrics  *metrics.Metrics
	health   Pinger
	validate *requestValidator
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		verifier: deps.Verifier,
		accounts: deps.Accounts,
		game:     deps.Game,
		metrics:  deps.Metrics,
		health:   deps.Health,
		validate: newRequestValidator(),
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"name": serviceName, "version": serviceVersion, "status": "running"})
	})
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/shop/webhook", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/stats", s.handleGetStats)
			r.Post("/stats", s.handleUpdateStat)
			r.Get("/stats/history", s.handleStatHistory)

			r.Get("/schedule", s.handleGetSchedule)
			r.Post("/schedule", s.handleSaveSchedule)
			r.Get("/schedule/sync", s.handleSyncSchedules)
			r.Get("/schedule/activities", s.handleListActivities)
			r.Post("/schedule/activities", s.handleCreateActivity)

			r.Get("/shop", s.handleListItems)
			r.Get("/shop/inventory", s.handleInventory)
			r.Get("/shop/purchases", s.handlePurchases)
			r.Post("/shop/purchase", s.handlePurchase)
			r.Post("/shop/ingame", s.handlePurchaseInGame)
			r.Post("/shop/use/{item_id}", s.handleUseItem)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.log.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.verifier.VerifyAccessToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				s.log.Warn("token verification failed", "request_id", middleware.GetReqID(r.Context()), "err", err)
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: user.ID,
			Email:  user.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, http.StatusCreated, func(ctx context.Context, in credentialsRequest) (auth.Session, error) {
		return s.accounts.SignUp(ctx, in.Email, in.Password)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, http.StatusOK, func(ctx context.Context, in credentialsRequest) (auth.Session, error) {
		return s.accounts.Login(ctx, in.Email, in.Password)
	})
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request, okStatus int, call func(context.Context, credentialsRequest) (auth.Session, error)) {
	if s.accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "password auth is not configured")
		return
	}
	var in credentialsRequest
	if !s.decodeAndValidate(w, r, &in) {
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	session, err := call(r.Context(), in)
	if err != nil {
		var upstream *auth.UpstreamError
		if errors.As(err, &upstream) && upstream.Status < 500 {
			status := http.StatusBadRequest
			if upstream.Status == http.StatusUnauthorized || okStatus == http.StatusOK {
				status = http.StatusUnauthorized
			}
			writeError(w, status, "authentication failed")
			return
		}
		s.log.Error("auth provider request failed", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeError(w, http.StatusBadGateway, "auth provider unavailable")
		return
	}
	if session.User.ID != "" {
		if _, err := s.game.GetStats(r.Context(), session.User.ID); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	writeJSON(w, okStatus, session)
}

// baseURL is where payment redirects return to: the configured public URL,
// or the origin the request arrived on.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict game.TimeConflictError
		missing  game.ActivitiesNotFoundError
	)
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "hour": conflict.Hour})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "missing_activities": missing.IDs})
	case game.IsValidation(err), game.IsConflict(err), game.IsPaymentRejection(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case game.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrPaymentsDisabled):
		s.log.Error("payment processor misconfigured", "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "payment processor misconfigured")
	default:
		attrs := []any{"request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path, "err", err}
		if user, uerr := userFromContext(r.Context()); uerr == nil {
			attrs = append(attrs, "user_id", user.UserID)
		}
		s.log.Error("request failed", attrs...)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation,
// writing a 400 on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

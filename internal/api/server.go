package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"insta-relay/internal/config"
	"insta-relay/internal/models"
	"insta-relay/internal/telegram"
)

// RelayRequest is the body of POST /relay. UserID is only logged; every
// HTTP request is a one-shot command.
type RelayRequest struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	Text     string `json:"text" validate:"required"`
}

// Server exposes the relay over HTTP next to health and metrics endpoints.
type Server struct {
	Router       chi.Router
	relay        telegram.Relayer
	whitelistIPs []string
	validate     *validator.Validate
	httpServer   *http.Server
}

// NewServer registers the routes.
func NewServer(cfg *config.APIConfig, relay telegram.Relayer) *Server {
	s := &Server{
		relay:        relay,
		whitelistIPs: cfg.WhitelistIPs,
		validate:     validator.New(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Group(func(protected chi.Router) {
		protected.Use(s.ipWhitelistMiddleware)
		protected.Handle("/metrics", promhttp.Handler())
		protected.Post("/relay", s.handleRelay)
	})

	s.Router = r
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof(color.GreenString("HTTP API listening on %s"), s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info(color.YellowString("HTTP API stopped"))
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logrus.WithError(err).Warn("Invalid relay request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	requestID := chimiddleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.New().String()
	}
	logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"chat_id":    req.ChatID,
		"user_id":    req.UserID,
		"user_name":  req.UserName,
		"remote":     getClientIP(r),
	}).Debug("HTTP relay request")

	// HTTP callers are anonymous to the bridge: they never open or cancel
	// the interactive dialogs owned by Telegram users.
	res := s.relay.Handle(r.Context(), models.InboundMessage{
		RequestID:  requestID,
		ChatID:     req.ChatID,
		UserName:   req.UserName,
		Text:       req.Text,
		ReceivedAt: time.Now(),
	})
	writeJSON(w, http.StatusOK, res)
}

// ipWhitelistMiddleware rejects clients outside api.whitelist_ips. Entries
// are plain addresses or CIDR ranges; an empty list allows everyone.
func (s *Server) ipWhitelistMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.whitelistIPs) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)
		if isIPAllowed(clientIP, s.whitelistIPs) {
			next.ServeHTTP(w, r)
			return
		}

		logrus.WithFields(logrus.Fields{
			"client_ip": clientIP,
			"path":      r.URL.Path,
		}).Warn("IP not allowed")
		http.Error(w, "Forbidden: IP not allowed", http.StatusForbidden)
	})
}

func isIPAllowed(clientIP string, whitelist []string) bool {
	ip := net.ParseIP(clientIP)
	for _, allowed := range whitelist {
		allowed = strings.TrimSpace(allowed)
		if strings.Contains(allowed, "/") {
			_, ipNet, err := net.ParseCIDR(allowed)
			if err != nil {
				logrus.Errorf("Failed to parse CIDR %s: %v", allowed, err)
				continue
			}
			if ip != nil && ipNet.Contains(ip) {
				return true
			}
		} else if allowed == clientIP {
			return true
		}
	}
	return false
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

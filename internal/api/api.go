// Package api assembles Livreo's modules and runs the service: the WhatsApp
// channel, the conversation router with its role engines, transcript storage,
// and a small operational HTTP API (health, stats, transcripts, and the
// Twilio webhook when that provider is selected).
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livreo/livreo/internal/auth"
	"github.com/livreo/livreo/internal/classifier"
	"github.com/livreo/livreo/internal/flow"
	"github.com/livreo/livreo/internal/genai"
	"github.com/livreo/livreo/internal/messaging"
	"github.com/livreo/livreo/internal/platform"
	"github.com/livreo/livreo/internal/session"
	"github.com/livreo/livreo/internal/store"
	"github.com/livreo/livreo/internal/twiliowhatsapp"
	"github.com/livreo/livreo/internal/whatsapp"
)

// Messaging providers selectable at startup.
const (
	ProviderWhatsmeow = "whatsmeow"
	ProviderTwilio    = "twilio"
)

// DefaultAddr is the default operational API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string
	Provider string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithProvider selects the messaging provider (whatsmeow or twilio).
func WithProvider(provider string) Option {
	return func(o *Opts) { o.Provider = provider }
}

// Server holds the wired modules behind the HTTP handlers.
type Server struct {
	sessions    *session.Store
	transcripts store.Store
	router      *flow.Router
	msgService  messaging.Service
	startedAt   time.Time
}

// Run wires every module from the given option sets and blocks until the
// process receives SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, platformOpts []platform.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderWhatsmeow
	}
	slog.Info("Livreo starting", "addr", cfg.Addr, "provider", cfg.Provider)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Transcript store: DSN-configured backend, in-memory otherwise.
	var scfg store.Opts
	for _, opt := range storeOpts {
		opt(&scfg)
	}
	var transcripts store.Store
	if scfg.DSN != "" {
		var err error
		transcripts, err = store.NewFromDSN(scfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to open transcript store: %w", err)
		}
	} else {
		slog.Debug("No database DSN provided, using in-memory transcript store")
		transcripts = store.NewInMemoryStore()
	}
	defer transcripts.Close()

	// Fallback classifier: assisted when an OpenAI key is configured,
	// deterministic otherwise.
	var cls classifier.Classifier = classifier.NewDeterministic()
	if genaiClient, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Warn("GenAI client unavailable, fallback classification is deterministic only", "error", err)
	} else {
		cls = classifier.NewAssisted(genaiClient)
	}

	platformClient, err := platform.NewClient(platformOpts...)
	if err != nil {
		return fmt.Errorf("failed to create platform client: %w", err)
	}
	sessions := session.NewStore()
	sessions.Start(ctx)
	defer sessions.Stop()

	gateway := auth.NewGateway(platformClient)
	router := flow.NewRouter(sessions, gateway,
		flow.NewClientEngine(platformClient, cls),
		flow.NewAgentEngine(platformClient, cls),
		flow.NewMerchantEngine(platformClient, cls),
	)

	msgService, twilioService, err := buildMessagingService(cfg.Provider, waOpts)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer msgService.Stop()

	dispatcher := messaging.NewDispatcher(msgService, router, transcripts)
	go dispatcher.Run(ctx)

	server := &Server{
		sessions:    sessions,
		transcripts: transcripts,
		router:      router,
		msgService:  msgService,
		startedAt:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.healthHandler)
	mux.HandleFunc("/stats", server.statsHandler)
	mux.HandleFunc("/transcripts", server.transcriptsHandler)
	if twilioService != nil {
		mux.HandleFunc("/webhook/twilio", twilioService.WebhookHandler)
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Operational API listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}
	slog.Info("Livreo stopped")
	return nil
}

// buildMessagingService constructs the selected provider. The Twilio service
// is returned separately so its webhook can be mounted.
func buildMessagingService(provider string, waOpts []whatsapp.Option) (messaging.Service, *messaging.TwilioService, error) {
	switch provider {
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	default:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, successResponse(map[string]any{
		"uptime": time.Since(s.startedAt).String(),
	}))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, successResponse(map[string]any{
		"active_sessions": s.sessions.Len(),
	}))
}

// transcriptsHandler returns the recent transcript of one user:
// GET /transcripts?user=22507000001&limit=20
func (s *Server) transcriptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("missing user parameter"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit < 1 {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse("invalid limit parameter"))
			return
		}
	}
	entries, err := s.transcripts.RecentTurns(userID, limit)
	if err != nil {
		slog.Error("Server.transcriptsHandler: fetch failed", "user", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("failed to fetch transcripts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, successResponse(entries))
}

// Package server is the HTTP surface of the proxy: the trading and
// portfolio REST endpoints, the live price WebSocket and the metrics
// endpoint, all behind the shared middleware stack.
package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"dexdash-backend/internal/balance"
	"dexdash-backend/internal/chains"
	"dexdash-backend/internal/config"
	"dexdash-backend/internal/dexapi"
	"dexdash-backend/internal/evmrpc"
	"dexdash-backend/internal/pricefeed"
	"dexdash-backend/internal/quote"
	"dexdash-backend/internal/swap"
	"dexdash-backend/internal/wallets"
)

var Logger zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// Deps carries every collaborator the handlers need.
type Deps struct {
	Registry   *chains.Registry
	Pool       *evmrpc.Pool
	Aggregator *balance.Aggregator
	Engine     *quote.Engine
	Executor   *swap.Executor
	Dex        *dexapi.Client
	Prices     *pricefeed.Store
	Wallets    wallets.Discoverer
}

// Server wraps the HTTP server and provides lifecycle management.
type Server struct {
	cfg        *config.Config
	deps       Deps
	httpServer *http.Server
	mux        *chi.Mux
}

// NewServer builds the router and the HTTP server around it.
func NewServer(cfg *config.Config, deps Deps) *Server {
	mux := chi.NewMux()

	mux.Use(zerologMiddleware)
	mux.Use(zerologRecoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Compress(5))
	mux.Use(middleware.Timeout(60 * time.Second))
	if cfg.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(cfg.RatePerMinute, 1*time.Minute))
	}

	s := &Server{cfg: cfg, deps: deps, mux: mux}
	s.routes()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           h2c.NewHandler(corsHandler, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.Get("/health", s.handleHealth)
	s.mux.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.mux.Route("/trading", func(r chi.Router) {
		r.Get("/chains", s.handleChains)
		r.Get("/tokens", s.handleTokens)
		r.Get("/quote", s.handleQuote)
		r.Post("/swap", s.handleSwapData)
		r.Get("/approve", s.handleApprove)
		r.Post("/simulate", s.handleSimulate)
		r.Post("/execute", s.handleExecute)
		r.Get("/swaps", s.handleSwapLog)
	})

	s.mux.Route("/portfolio", func(r chi.Router) {
		r.Get("/balances", s.handleBalances)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/token", s.handleTokenInfo)
	})

	s.mux.Get("/wallets", s.handleWallets)
	s.mux.Get("/prices", s.handlePrices)
	s.mux.Get("/ws/prices", s.handlePriceStream)
}

// Handler exposes the routed mux, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	Logger.Info().Str("address", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// zerologMiddleware logs HTTP requests using zerolog
func zerologMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// zerologRecoverer recovers from panics and logs with zerolog
func zerologRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				Logger.Error().
					Interface("panic", rvr).
					Str("path", r.URL.Path).
					Msg("Recovered from panic")

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

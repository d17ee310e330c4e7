package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"atm-ledger/internal/config"
	"atm-ledger/internal/handler"
	"atm-ledger/internal/repository"
	"atm-ledger/internal/service"
	"atm-ledger/internal/transport"

	"github.com/gorilla/mux"
)

// Server owns the account store and runs the single control loop that
// serves requests from the transport. The optional HTTP gateway is a
// client of that same transport.
type Server struct {
	cfg        *config.Config
	router     *mux.Router
	server     *http.Server
	store      *repository.Store
	dispatcher *handler.Dispatcher
	receiver   transport.Receiver
	caller     transport.Caller
	closers    []func()
	logger     *slog.Logger
	port       string

	cancel  context.CancelFunc
	done    chan error
	running atomic.Bool
}

// NewServer loads the ledger and wires the store, services, dispatcher and
// transport. An unreadable ledger fails startup unless the file is missing
// and cfg.LedgerInitEmpty is set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ledger := repository.NewLedger(cfg.LedgerPath, logger)
	store := repository.NewStore(ledger, logger)

	if err := store.Load(); err != nil {
		if !cfg.LedgerInitEmpty || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		logger.Warn("Ledger not found; starting with no accounts", "path", cfg.LedgerPath)
	}

	accountService := service.NewAccountService(store, logger)
	transactionService := service.NewTransactionService(store, logger)
	dispatcher := handler.NewDispatcher(accountService, transactionService, logger)

	s := &Server{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		done:       make(chan error, 1),
	}

	if err := s.setupTransport(); err != nil {
		return nil, err
	}
	s.setupRouter()

	return s, nil
}

func (s *Server) setupTransport() error {
	switch s.cfg.Transport {
	case config.TransportAMQP:
		srv, err := transport.NewAMQPServer(s.cfg.RabbitMQURL, s.cfg.RequestQueue, s.logger)
		if err != nil {
			return err
		}
		client, err := transport.NewAMQPClient(s.cfg.RabbitMQURL, s.cfg.RequestQueue, s.logger)
		if err != nil {
			srv.Close()
			return err
		}
		s.receiver, s.caller = srv, client
		s.closers = append(s.closers, client.Close, srv.Close)
	default:
		ch := transport.NewChannel(s.cfg.TransportCapacity, s.logger)
		s.receiver, s.caller = ch, ch
		s.closers = append(s.closers, ch.Close)
	}

	s.logger.Info("Transport ready", "transport", s.cfg.Transport)
	return nil
}

func (s *Server) setupRouter() {
	terminalHandler := handler.NewTerminalHandler(s.caller)
	adminHandler := handler.NewAdminHandler(s.caller)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(s.logger))

	router.HandleFunc("/terminal/pin", terminalHandler.ValidatePIN).Methods("POST")
	router.HandleFunc("/terminal/balance", terminalHandler.Balance).Methods("POST")
	router.HandleFunc("/terminal/withdraw", terminalHandler.Withdraw).Methods("POST")
	router.HandleFunc("/admin/accounts/{account_no}", adminHandler.UpsertAccount).Methods("PUT")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !s.running.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "control loop not running"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"transport": s.cfg.Transport,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	s.router = router
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start launches the control loop and, when enabled, the HTTP gateway on
// port. It returns the port actually bound.
func (s *Server) Start(port string) (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.running.Store(true)
	go func() {
		err := s.Run(ctx)
		s.running.Store(false)
		if err != nil {
			s.logger.Error("Control loop stopped", "error", err)
		}
		s.done <- err
	}()

	if !s.cfg.HTTPEnabled {
		return "", nil
	}

	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		cancel()
		for _, closeFn := range s.closers {
			closeFn()
		}
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP gateway", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP gateway failed", "error", err)
		}
	}()

	return s.port, nil
}

// Done delivers the control loop's exit error, nil after a clean Stop.
func (s *Server) Done() <-chan error {
	return s.done
}

// Stop shuts down the gateway, the control loop and the transport.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	for _, closeFn := range s.closers {
		closeFn()
	}
	return err
}

// GetPort returns the port the gateway is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// Caller returns the client side of the server's transport.
func (s *Server) Caller() transport.Caller {
	return s.caller
}

// StartServer builds and starts a server from cfg.
func StartServer(cfg *config.Config, logger *slog.Logger) (*Server, string, error) {
	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return server, port, nil
}

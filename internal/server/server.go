package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/ulak-chat/ulak/internal/chat"
	"github.com/ulak-chat/ulak/internal/logging"
	"github.com/ulak-chat/ulak/internal/raft"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    int
	CORSOrigins  []string
}

// DefaultServerConfig returns default configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:      ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		RateLimit:    100,
		CORSOrigins:  []string{"*"},
	}
}

// Server is the HTTP API server in front of the consensus engine.
type Server struct {
	config   *ServerConfig
	node     *raft.Node
	sm       *chat.StateMachine
	logger   logging.Logger
	handlers *Handlers
	router   *Router
	server   *http.Server
	listener net.Listener
}

// NewServer creates a new HTTP server.
func NewServer(cfg *ServerConfig, node *raft.Node, sm *chat.StateMachine, logger logging.Logger) *Server {
	handlers := NewHandlers(node, sm)
	router := NewRouter()

	s := &Server{
		config:   cfg,
		node:     node,
		sm:       sm,
		logger:   logger,
		handlers: handlers,
		router:   router,
	}

	s.setupRoutes()
	s.setupMiddleware()

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/v1/health", s.handlers.HandleHealth)
	s.router.GET("/v1/status", s.handlers.HandleStatus)

	s.router.POST("/v1/accounts", s.handlers.HandleCreateAccount)
	s.router.GET("/v1/accounts", s.handlers.HandleListAccounts)
	s.router.DELETE("/v1/accounts/{username}", s.handlers.HandleDeleteAccount)
	s.router.GET("/v1/accounts/{username}/unread", s.handlers.HandleUnreadCount)

	s.router.POST("/v1/messages", s.handlers.HandleSendMessage)
	s.router.GET("/v1/messages", s.handlers.HandleListMessages)
	s.router.POST("/v1/messages/read", s.handlers.HandleMarkRead)
	s.router.DELETE("/v1/messages", s.handlers.HandleDeleteMessages)
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(LoggingMiddleware(s.logger))

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(CORSMiddleware(s.config.CORSOrigins))
	}

	if s.config.RateLimit > 0 {
		s.router.Use(RateLimitMiddleware(s.config.RateLimit))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.listener = listener

	s.logger.Info("HTTP server started", "address", listener.Addr().String())

	go s.server.Serve(listener)

	return nil
}

// Addr returns the bound address, useful when the configured address
// picks an ephemeral port.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

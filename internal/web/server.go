package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stratex/tradecore/internal/infrastructure/breaker"
	"github.com/stratex/tradecore/internal/infrastructure/cache"
	"github.com/stratex/tradecore/internal/infrastructure/storage"
	"github.com/stratex/tradecore/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	executor *usecase.OrderExecutor
	gateway  *usecase.MarketDataGateway
	breakers *breaker.Registry
	cache    *cache.MemoryCache
	pool     *storage.Pool
	logger   *zap.Logger
}

func NewServer(
	port int,
	executor *usecase.OrderExecutor,
	gateway *usecase.MarketDataGateway,
	breakers *breaker.Registry,
	memCache *cache.MemoryCache,
	pool *storage.Pool,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		executor: executor,
		gateway:  gateway,
		breakers: breakers,
		cache:    memCache,
		pool:     pool,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Signals
	s.router.HandleFunc("POST /api/execute", s.handleExecute)

	// Positions
	s.router.HandleFunc("GET /api/positions", s.handlePositions)
	s.router.HandleFunc("POST /api/positions/{symbol}/close", s.handleClosePosition)
	s.router.HandleFunc("PUT /api/positions/{symbol}/levels", s.handleUpdateLevels)

	// Portfolio
	s.router.HandleFunc("GET /api/metrics", s.handleMetrics)
	s.router.HandleFunc("POST /api/risk-check", s.handleRiskCheck)

	// Orders
	s.router.HandleFunc("POST /api/orders/cancel-all", s.handleCancelAll)

	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

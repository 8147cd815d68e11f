package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/celer-network/aave-gas-station/aave"
	"github.com/celer-network/aave-gas-station/gasstation"
	"github.com/celer-network/aave-gas-station/log"
)

var logger = log.NewLogger("api")

const shutdownTimeout = 10 * time.Second

// SponsorshipStore is satisfied by storage.Storage.
type SponsorshipStore interface {
	GetSponsorship(hash common.Hash) (*gasstation.Sponsorship, error)
	ListSponsorships(wallet common.Address) ([]*gasstation.Sponsorship, error)
}

// Server exposes the reader, builder, broadcaster and relay over REST.
type Server struct {
	reader      *aave.Reader
	builder     *aave.Builder
	broadcaster *aave.Broadcaster
	relay       aave.Sponsor
	store       SponsorshipStore
	engine      *gin.Engine
}

func NewServer(reader *aave.Reader, builder *aave.Builder, broadcaster *aave.Broadcaster, relay aave.Sponsor, store SponsorshipStore) *Server {
	s := &Server{
		reader:      reader,
		builder:     builder,
		broadcaster: broadcaster,
		relay:       relay,
		store:       store,
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	s.registerRoutes(engine)
	s.engine = engine
	return s
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", healthz)

	r.GET("/reserve", s.getReserve)
	r.GET("/reserve/:coin", s.getCoinReserve)
	r.GET("/balance/:address", s.getBalance)

	r.POST("/deposit", s.postDeposit)
	r.POST("/approve", s.postApprove)
	r.POST("/broadcast", s.postBroadcast)
	r.GET("/tx/:hash", s.getTxStatus)

	r.POST("/gasstation/:address", s.postGasStation)
	r.GET("/sponsorships/:hash", s.getSponsorship)
	r.GET("/wallets/:address/sponsorships", s.listSponsorships)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("REST server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Msg("Shutting down REST server")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		event := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.Str("method", c.Request.Method).Str("path", c.FullPath()).Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).Msg("Handled request")
	}
}

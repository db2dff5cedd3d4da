package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/bsubei/rconbot/internal/config"
	intnet "github.com/bsubei/rconbot/internal/network"
	"github.com/bsubei/rconbot/internal/util"
	"github.com/bsubei/rconbot/internal/voter"
)

// VoteStatus reports the current vote coordinator state.
type VoteStatus interface {
	Snapshot() voter.Snapshot
}

// Server is the HTTP status server.
type Server struct {
	cfg       *config.Config
	votes     VoteStatus
	connected func() bool
	startedAt time.Time

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a status server. The connected callback reports
// whether the RCON connection is currently up.
func NewServer(cfg *config.Config, votes VoteStatus, connected func() bool) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:       cfg,
		votes:     votes,
		connected: connected,
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server, blocking until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// SO_REUSEADDR allows immediate rebinding after a restart.
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("status API listen error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("status API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status API server error: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/sysinfo", s.handleSysInfo)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	if !s.connected() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"connected": s.connected(),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.votes.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"server":    fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port),
		"connected": s.connected(),
		"vote":      snap,
		"settings": gin.H{
			"quorum_threshold": s.cfg.QuorumThreshold,
			"voting_cooldown":  s.cfg.VotingCooldown.String(),
			"voting_duration":  s.cfg.VotingDuration.String(),
			"candidate_count":  s.cfg.CandidateCount,
			"clan_tag":         s.cfg.ClanTag,
		},
	})
}

func (s *Server) handleSysInfo(c *gin.Context) {
	c.JSON(http.StatusOK, util.GetSystemInfo())
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

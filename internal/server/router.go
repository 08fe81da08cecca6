// Package server exposes the analysis engine over HTTP: a JSON API for
// the watchlist, run control, results, and market sentiment, plus a
// WebSocket stream mirroring the controller's events.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/internal/controller"
	"stocksignal/internal/metrics"
	"stocksignal/internal/sentiment"
	"stocksignal/internal/store"
	"stocksignal/models"
)

// Server wires the HTTP surface to the engine components.
type Server struct {
	ctrl      *controller.Controller
	watchlist store.TickerStore
	sentiment *sentiment.Service
	hub       *Hub
	metrics   *metrics.Metrics
	promHTTP  http.Handler
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
}

// Options carries the server's dependencies. MetricsHandler serves
// GET /metrics; Metrics (optional) lets handlers keep gauges current.
type Options struct {
	Controller     *controller.Controller
	Watchlist      store.TickerStore
	Sentiment      *sentiment.Service
	Hub            *Hub
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

func New(opts Options) *Server {
	return &Server{
		ctrl:      opts.Controller,
		watchlist: opts.Watchlist,
		sentiment: opts.Sentiment,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		promHTTP:  opts.MetricsHandler,
		logger:    log.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API serves a browser dashboard from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealthz)
	if s.promHTTP != nil {
		r.GET("/metrics", gin.WrapH(s.promHTTP))
	}
	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	{
		api.GET("/tickers", s.handleListTickers)
		api.POST("/tickers", s.handleAddTicker)
		api.DELETE("/tickers/:symbol", s.handleRemoveTicker)

		api.GET("/results", s.handleResults)
		api.DELETE("/results", s.handleClearResults)
		api.DELETE("/results/:ticker", s.handleRemoveResult)

		api.GET("/status", s.handleStatus)
		api.GET("/progress", s.handleProgress)

		api.POST("/analyze", s.handleAnalyze)
		api.POST("/analyze/pause", s.handlePause)
		api.POST("/analyze/resume", s.handleResume)
		api.POST("/analyze/stop", s.handleStop)
		api.POST("/analyze/retry", s.handleRetry)

		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handlePutSettings)

		api.GET("/market", s.handleMarket)
	}

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"state":      s.ctrl.State(),
		"ws_clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	s.hub.HandleWS(conn)
}

func (s *Server) handleListTickers(c *gin.Context) {
	symbols, err := s.watchlist.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.setWatchlistGauge(len(symbols))
	c.JSON(http.StatusOK, gin.H{"tickers": symbols})
}

func (s *Server) handleAddTicker(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.watchlist.Add(req.Symbol); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.refreshWatchlistGauge()
	c.JSON(http.StatusCreated, gin.H{"symbol": models.NormalizeTicker(req.Symbol)})
}

func (s *Server) handleRemoveTicker(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.watchlist.Remove(symbol); err != nil {
		if errors.Is(err, store.ErrNotWatched) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.refreshWatchlistGauge()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleResults(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"results":        s.ctrl.Results(),
		"failed_tickers": s.ctrl.FailedTickers(),
	})
}

func (s *Server) handleClearResults(c *gin.Context) {
	s.ctrl.ClearResults()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRemoveResult(c *gin.Context) {
	if !s.ctrl.RemoveResult(c.Param("ticker")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no result for ticker"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":          s.ctrl.State(),
		"progress":       s.ctrl.Progress(),
		"failed_tickers": s.ctrl.FailedTickers(),
		"settings":       s.ctrl.Settings(),
	})
}

func (s *Server) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"progress": s.ctrl.Progress()})
}

// handleAnalyze starts a run over the request's tickers, or over the
// whole watchlist when none are given.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req struct {
		Tickers []string `json:"tickers"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	tickers := req.Tickers
	if len(tickers) == 0 {
		var err error
		tickers, err = s.watchlist.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	if err := s.ctrl.Start(tickers); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, controller.ErrRunActive) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"tickers": len(tickers)})
}

func (s *Server) handlePause(c *gin.Context) {
	s.ctrl.Pause()
	c.JSON(http.StatusOK, gin.H{"state": s.ctrl.State()})
}

func (s *Server) handleResume(c *gin.Context) {
	s.ctrl.Resume()
	c.JSON(http.StatusOK, gin.H{"state": s.ctrl.State()})
}

func (s *Server) handleStop(c *gin.Context) {
	s.ctrl.Stop()
	c.JSON(http.StatusOK, gin.H{"state": s.ctrl.State()})
}

func (s *Server) handleRetry(c *gin.Context) {
	if err := s.ctrl.RetryFailed(); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, controller.ErrRunActive) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"tickers": len(s.ctrl.FailedTickers())})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Settings())
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var settings models.AnalysisSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctrl.UpdateSettings(settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Settings())
}

func (s *Server) handleMarket(c *gin.Context) {
	ind, err := s.sentiment.Fetch(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ind)
}

func (s *Server) setWatchlistGauge(n int) {
	if s.metrics != nil {
		s.metrics.WatchlistSize.Set(float64(n))
	}
}

func (s *Server) refreshWatchlistGauge() {
	if s.metrics == nil {
		return
	}
	if symbols, err := s.watchlist.List(); err == nil {
		s.metrics.WatchlistSize.Set(float64(len(symbols)))
	}
}

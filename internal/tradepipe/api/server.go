package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
	"github.com/whalefollow/tradepipe/internal/tradepipe/pipeline"
	"github.com/whalefollow/tradepipe/internal/tradepipe/store"
)

// Server exposes the listener trigger and read-only queries over the store.
type Server struct {
	// baseCtx bounds the listener's lifetime. The trigger endpoint must not
	// use the request context: that dies with the request.
	baseCtx context.Context
	store   store.Store
	sched   *pipeline.Scheduler
	log     *zap.Logger
}

func NewServer(baseCtx context.Context, st store.Store, sched *pipeline.Scheduler, log *zap.Logger) *Server {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		baseCtx: baseCtx,
		store:   st,
		sched:   sched,
		log:     log.With(zap.String("component", "api")),
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tx := r.Group("/transactions")
	{
		tx.POST("/start-listener", s.startListener)
		tx.GET("", s.listTransactions)
		tx.GET("/stats", s.stats)
		tx.GET("/swaps", s.swaps)
		tx.GET("/long-positions", s.longPositions)
		tx.GET("/short-positions", s.shortPositions)
		tx.GET("/sender/:addr", s.bySender)
		tx.GET("/high-value", s.highValue)
		tx.GET("/date-range", s.byDateRange)
	}
	return r
}

// startListener is idempotent: it reports whether a listener was started or
// one was already running, 200 either way.
func (s *Server) startListener(c *gin.Context) {
	if s.sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listener not configured"})
		return
	}
	if s.sched.Start(s.baseCtx) {
		c.JSON(http.StatusOK, gin.H{"status": "Listener started"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Listener already running"})
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) respondList(c *gin.Context, recs []model.TransactionRecord, err error) {
	if err != nil {
		s.log.Error("query failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if recs == nil {
		recs = []model.TransactionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(recs), "transactions": recs})
}

func (s *Server) listTransactions(c *gin.Context) {
	recs, err := s.store.List(c.Request.Context(), intQuery(c, "limit", 0), intQuery(c, "offset", 0))
	s.respondList(c, recs, err)
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.log.Error("stats query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) swaps(c *gin.Context) {
	recs, err := s.store.Swaps(c.Request.Context(), intQuery(c, "limit", 0))
	s.respondList(c, recs, err)
}

func (s *Server) longPositions(c *gin.Context) {
	recs, err := s.store.ByPosition(c.Request.Context(), model.PositionLong, intQuery(c, "limit", 0))
	s.respondList(c, recs, err)
}

func (s *Server) shortPositions(c *gin.Context) {
	recs, err := s.store.ByPosition(c.Request.Context(), model.PositionShort, intQuery(c, "limit", 0))
	s.respondList(c, recs, err)
}

func (s *Server) bySender(c *gin.Context) {
	addr := c.Param("addr")
	if addr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender address required"})
		return
	}
	recs, err := s.store.BySender(c.Request.Context(), addr, intQuery(c, "limit", 0))
	s.respondList(c, recs, err)
}

func (s *Server) highValue(c *gin.Context) {
	min := 10_000.0
	if v := c.Query("min"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min"})
			return
		}
		min = f
	}
	recs, err := s.store.HighValue(c.Request.Context(), min, intQuery(c, "limit", 0))
	s.respondList(c, recs, err)
}

func (s *Server) byDateRange(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from, want RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to, want RFC3339"})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to before from"})
		return
	}
	recs, err := s.store.ByDateRange(c.Request.Context(), from, to, intQuery(c, "limit", 0))
	s.respondList(c, recs, err)
}
